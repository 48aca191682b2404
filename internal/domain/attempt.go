package domain

import "time"

// Outcome is the terminal state of one provider call.
type Outcome string

const (
	OutcomeAcknowledged Outcome = "ACKNOWLEDGED"
	OutcomeFailed       Outcome = "FAILED"
)

func (o Outcome) String() string { return string(o) }

// DispatchAttempt records a single provider call made for a dispatch.
type DispatchAttempt struct {
	ID            string
	DispatchID    string
	TemplateID    int
	Recipient     string
	AttemptNumber int
	Outcome       Outcome
	StatusCode    *int
	ProviderCode  *string
	ErrorKind     *string
	Error         *string
	CreatedAt     time.Time
}
