package transport

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/alarm-gateway/internal/domain"
	"github.com/kursadbilgin/alarm-gateway/internal/provider"
	"github.com/kursadbilgin/alarm-gateway/internal/ratelimit"
	"go.uber.org/zap"
)

func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		code := StatusFor(err)
		kind := KindLabel(err)

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}
		if requestID := RequestID(c); requestID != "" {
			fields = append(fields, zap.String("correlationId", requestID))
		}
		if kind != "" {
			fields = append(fields, zap.String("kind", kind))
		}

		if code >= fiber.StatusInternalServerError {
			logger.Error("request error", fields...)
		} else {
			logger.Warn("request error", fields...)
		}

		body := fiber.Map{
			"error": err.Error(),
		}
		if kind != "" {
			body["kind"] = kind
		}
		return c.Status(code).JSON(body)
	}
}

// StatusFor maps an error to the HTTP status returned to API callers.
func StatusFor(err error) int {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}

	if kind, ok := provider.KindOf(err); ok {
		switch kind {
		case provider.KindInvalidEndpoint:
			return fiber.StatusInternalServerError
		case provider.KindProtocolViolation, provider.KindMalformedResponse:
			return fiber.StatusBadGateway
		case provider.KindIOFailure:
			return fiber.StatusGatewayTimeout
		}
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, ratelimit.ErrNotAcquired):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// KindLabel names the failure class reported to API callers, or "" when none applies.
func KindLabel(err error) string {
	if kind, ok := provider.KindOf(err); ok {
		return kind.String()
	}
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "VALIDATION"
	case errors.Is(err, ratelimit.ErrNotAcquired):
		return ratelimit.Kind
	}
	return ""
}

// RequestID returns the caller-supplied or generated request id.
func RequestID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
