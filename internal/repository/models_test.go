package repository

import (
	"testing"
	"time"

	"github.com/kursadbilgin/alarm-gateway/internal/domain"
)

func TestAttemptModelMapping(t *testing.T) {
	t.Parallel()

	status := 500
	kind := "PROTOCOL_VIOLATION"
	msg := "provider returned status 500"
	createdAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	attempt := &domain.DispatchAttempt{
		ID:            "a-1",
		DispatchID:    "d-1",
		TemplateID:    26077,
		Recipient:     "01045299453",
		AttemptNumber: 2,
		Outcome:       domain.OutcomeFailed,
		StatusCode:    &status,
		ErrorKind:     &kind,
		Error:         &msg,
		CreatedAt:     createdAt,
	}

	model := attemptModelFromDomain(attempt)
	if model.TableName() != "dispatch_attempts" {
		t.Fatalf("TableName() = %q, want dispatch_attempts", model.TableName())
	}

	back := attemptModelToDomain(model)
	if back.DispatchID != "d-1" || back.TemplateID != 26077 || back.AttemptNumber != 2 {
		t.Fatalf("mapped attempt = %+v", back)
	}
	if back.Outcome != domain.OutcomeFailed {
		t.Fatalf("Outcome = %s, want FAILED", back.Outcome)
	}
	if back.StatusCode == nil || *back.StatusCode != 500 {
		t.Fatalf("StatusCode = %v, want 500", back.StatusCode)
	}
	if back.ProviderCode != nil {
		t.Fatalf("ProviderCode = %v, want nil", back.ProviderCode)
	}
	if !back.CreatedAt.Equal(createdAt) {
		t.Fatalf("CreatedAt = %v, want %v", back.CreatedAt, createdAt)
	}

	if attemptModelFromDomain(nil) != nil || attemptModelToDomain(nil) != nil {
		t.Fatal("nil input should map to nil")
	}
}
