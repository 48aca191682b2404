package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/alarm-gateway/internal/domain"
	"github.com/kursadbilgin/alarm-gateway/internal/observability"
	"github.com/kursadbilgin/alarm-gateway/internal/service"
	"github.com/kursadbilgin/alarm-gateway/internal/transport"
)

type AlarmService interface {
	SendAlarm(ctx context.Context, template *domain.AlarmTemplate) (*domain.ResponseMessage, error)
	Test(ctx context.Context, in domain.AlarmTest) (bool, error)
	Enqueue(ctx context.Context, template *domain.AlarmTemplate) (string, error)
}

// Credentials fill userid and api_key when a request omits them.
type Credentials struct {
	UserID string
	APIKey string
}

type AlarmHandler struct {
	service     AlarmService
	credentials Credentials
}

func NewAlarmHandler(service AlarmService, credentials Credentials) (*AlarmHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("alarm service is required")
	}
	return &AlarmHandler{service: service, credentials: credentials}, nil
}

func RegisterAlarmRoutes(router fiber.Router, service AlarmService, credentials Credentials) error {
	h, err := NewAlarmHandler(service, credentials)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/alarms", h.SendAlarm)
	v1.Post("/alarms/test", h.TestAlarm)

	return nil
}

type enqueueResponse struct {
	DispatchID string `json:"dispatchId"`
	Status     string `json:"status"`
}

type testResponse struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

func (h *AlarmHandler) SendAlarm(c *fiber.Ctx) error {
	var template domain.AlarmTemplate
	if err := c.BodyParser(&template); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if strings.TrimSpace(template.UserID) == "" {
		template.UserID = h.credentials.UserID
	}
	if strings.TrimSpace(template.APIKey) == "" {
		template.APIKey = h.credentials.APIKey
	}

	ctx := requestContext(c)
	if c.QueryBool("async", false) {
		dispatchID, err := h.service.Enqueue(ctx, &template)
		if err != nil {
			if errors.Is(err, service.ErrQueueUnavailable) {
				return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
			}
			return err
		}
		return c.Status(fiber.StatusAccepted).JSON(enqueueResponse{
			DispatchID: dispatchID,
			Status:     "QUEUED",
		})
	}

	response, err := h.service.SendAlarm(ctx, &template)
	if err != nil {
		return err
	}
	if response == nil {
		response = &domain.ResponseMessage{}
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func (h *AlarmHandler) TestAlarm(c *fiber.Ctx) error {
	var in domain.AlarmTest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	accepted, err := h.service.Test(requestContext(c), in)
	if err != nil {
		return c.Status(transport.StatusFor(err)).JSON(testResponse{
			Accepted: false,
			Error:    err.Error(),
			Kind:     transport.KindLabel(err),
		})
	}

	return c.Status(fiber.StatusOK).JSON(testResponse{Accepted: accepted})
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if requestID := transport.RequestID(c); requestID != "" {
		ctx = observability.WithCorrelationID(ctx, requestID)
	}
	return ctx
}
