package queue

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/alarm-gateway/internal/domain"
)

// AlarmMessage is the broker payload for an asynchronous dispatch. The
// template travels without its api key; the worker restores it from its own
// configuration.
type AlarmMessage struct {
	DispatchID    string               `json:"dispatchId"`
	CorrelationID string               `json:"correlationId,omitempty"`
	Template      domain.AlarmTemplate `json:"template"`
}

func (m AlarmMessage) Validate(limits domain.Limits) error {
	if strings.TrimSpace(m.DispatchID) == "" {
		return fmt.Errorf("dispatchId is required")
	}
	if m.Template.APIKey != "" {
		return fmt.Errorf("%w: api_key must not be queued", domain.ErrValidation)
	}
	if err := m.Template.ValidateContent(limits); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}
	return nil
}
