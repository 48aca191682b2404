package repository

import (
	"time"

	"github.com/kursadbilgin/alarm-gateway/internal/domain"
)

// DispatchAttemptModel is the persistence model for dispatch_attempts.
type DispatchAttemptModel struct {
	ID            string         `gorm:"type:uuid;primaryKey"`
	DispatchID    string         `gorm:"type:uuid;not null"`
	TemplateID    int            `gorm:"not null"`
	Recipient     string         `gorm:"type:varchar(32);not null"`
	AttemptNumber int            `gorm:"not null"`
	Outcome       domain.Outcome `gorm:"type:varchar(20);not null"`
	StatusCode    *int           `gorm:"type:int"`
	ProviderCode  *string        `gorm:"type:varchar(64)"`
	ErrorKind     *string        `gorm:"type:varchar(32)"`
	Error         *string        `gorm:"type:text"`
	CreatedAt     time.Time
}

func (DispatchAttemptModel) TableName() string {
	return "dispatch_attempts"
}

func attemptModelFromDomain(a *domain.DispatchAttempt) *DispatchAttemptModel {
	if a == nil {
		return nil
	}

	return &DispatchAttemptModel{
		ID:            a.ID,
		DispatchID:    a.DispatchID,
		TemplateID:    a.TemplateID,
		Recipient:     a.Recipient,
		AttemptNumber: a.AttemptNumber,
		Outcome:       a.Outcome,
		StatusCode:    a.StatusCode,
		ProviderCode:  a.ProviderCode,
		ErrorKind:     a.ErrorKind,
		Error:         a.Error,
		CreatedAt:     a.CreatedAt,
	}
}

func attemptModelToDomain(m *DispatchAttemptModel) *domain.DispatchAttempt {
	if m == nil {
		return nil
	}

	return &domain.DispatchAttempt{
		ID:            m.ID,
		DispatchID:    m.DispatchID,
		TemplateID:    m.TemplateID,
		Recipient:     m.Recipient,
		AttemptNumber: m.AttemptNumber,
		Outcome:       m.Outcome,
		StatusCode:    m.StatusCode,
		ProviderCode:  m.ProviderCode,
		ErrorKind:     m.ErrorKind,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
	}
}
