package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/alarm-gateway/internal/domain"
	"gorm.io/gorm"
)

type AttemptRepository interface {
	Create(ctx context.Context, a *domain.DispatchAttempt) error
	ListByDispatchID(ctx context.Context, dispatchID string) ([]domain.DispatchAttempt, error)
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

func (r *GormAttemptRepo) Create(ctx context.Context, a *domain.DispatchAttempt) error {
	if a == nil {
		return fmt.Errorf("%w: attempt is required", domain.ErrValidation)
	}

	model := attemptModelFromDomain(a)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to insert dispatch attempt: %w", err)
	}
	*a = *attemptModelToDomain(model)
	return nil
}

func (r *GormAttemptRepo) ListByDispatchID(ctx context.Context, dispatchID string) ([]domain.DispatchAttempt, error) {
	dispatchID = strings.TrimSpace(dispatchID)
	if dispatchID == "" {
		return nil, fmt.Errorf("%w: dispatch id is required", domain.ErrValidation)
	}

	var models []DispatchAttemptModel
	err := r.db.WithContext(ctx).
		Where("dispatch_id = ?", dispatchID).
		Order("attempt_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("%w: dispatch %s", domain.ErrNotFound, dispatchID)
	}

	attempts := make([]domain.DispatchAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, nil
}
