package repository

import (
	"context"
	"errors"

	"github.com/nioasoft/reminder-engine/internal/domain"
	"gorm.io/gorm"
)

// TenantStore is the read-only port into tenant provisioning.
type TenantStore interface {
	ListActive(ctx context.Context) ([]domain.Tenant, error)
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
}

type GormTenantStore struct {
	db *gorm.DB
}

func NewGormTenantStore(db *gorm.DB) *GormTenantStore {
	return &GormTenantStore{db: db}
}

func (s *GormTenantStore) ListActive(ctx context.Context) ([]domain.Tenant, error) {
	var models []TenantModel
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	tenants := make([]domain.Tenant, 0, len(models))
	for i := range models {
		tenants = append(tenants, *tenantModelToDomain(&models[i]))
	}
	return tenants, nil
}

func (s *GormTenantStore) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	var model TenantModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tenantModelToDomain(&model), nil
}
