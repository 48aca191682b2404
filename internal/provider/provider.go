package provider

import (
	"context"

	"github.com/kursadbilgin/alarm-gateway/internal/domain"
)

// Provider is the outbound alarm delivery port.
type Provider interface {
	Name() string
	Send(ctx context.Context, template *domain.AlarmTemplate) (*Result, error)
}

// Result is an acknowledged provider call.
type Result struct {
	StatusCode int
	Body       string
	Response   *domain.ResponseMessage
}
