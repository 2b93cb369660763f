package repository

import (
	"context"
	"fmt"

	"github.com/nioasoft/reminder-engine/internal/domain"
	"gorm.io/gorm"
)

// AlertRepository stores emitted staff alerts. The unique index on
// (tenant_id, category, alerted_on) is the once-per-day dedup key for the
// alert monitor.
type AlertRepository interface {
	// Create appends an alert record. Returns ErrConflict when the tenant
	// already alerted for this category today.
	Create(ctx context.Context, alert *domain.Alert) error
}

type GormAlertRepo struct {
	db *gorm.DB
}

func NewGormAlertRepo(db *gorm.DB) *GormAlertRepo {
	return &GormAlertRepo{db: db}
}

func (r *GormAlertRepo) Create(ctx context.Context, alert *domain.Alert) error {
	if alert == nil {
		return fmt.Errorf("%w: alert is required", domain.ErrValidation)
	}
	if err := alert.Validate(); err != nil {
		return err
	}

	model := alertModelFromDomain(alert)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("failed to append alert record: %w", err)
	}

	return nil
}
