package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/nioasoft/reminder-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RunStateRepository persists per-tenant run metadata.
type RunStateRepository interface {
	Get(ctx context.Context, tenantID string) (*domain.TenantRunState, error)
	Upsert(ctx context.Context, state *domain.TenantRunState) error
	List(ctx context.Context) ([]domain.TenantRunState, error)
}

type GormRunStateRepo struct {
	db *gorm.DB
}

func NewGormRunStateRepo(db *gorm.DB) *GormRunStateRepo {
	return &GormRunStateRepo{db: db}
}

func (r *GormRunStateRepo) Get(ctx context.Context, tenantID string) (*domain.TenantRunState, error) {
	var model TenantRunStateModel
	err := r.db.WithContext(ctx).First(&model, "tenant_id = ?", tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return runStateModelToDomain(&model), nil
}

func (r *GormRunStateRepo) Upsert(ctx context.Context, state *domain.TenantRunState) error {
	if state == nil {
		return fmt.Errorf("%w: run state is required", domain.ErrValidation)
	}

	model := runStateModelFromDomain(state)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			UpdateAll: true,
		}).
		Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to upsert run state: %w", err)
	}

	*state = *runStateModelToDomain(model)
	return nil
}

func (r *GormRunStateRepo) List(ctx context.Context) ([]domain.TenantRunState, error) {
	var models []TenantRunStateModel
	err := r.db.WithContext(ctx).
		Order("tenant_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	states := make([]domain.TenantRunState, 0, len(models))
	for i := range models {
		states = append(states, *runStateModelToDomain(&models[i]))
	}
	return states, nil
}
