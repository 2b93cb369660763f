package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/nioasoft/reminder-engine/internal/domain"
	"gorm.io/gorm"
)

// CandidateSource is the read-only port into the persistent obligation store.
// Closed candidates and candidates of inactive tenants are filtered here and
// never reach the matcher.
type CandidateSource interface {
	// Stream returns the next batch of eligible candidates ordered by id,
	// resuming after cursor. The returned cursor is empty when the stream is
	// exhausted.
	Stream(ctx context.Context, tenantID string, cursor string, limit int) ([]domain.Candidate, string, error)

	// CountOlderThan counts eligible candidates in the given status whose
	// created_at is at least minDays before now. Used by the alert monitor
	// in read-only aggregate mode.
	CountOlderThan(ctx context.Context, tenantID string, status domain.CandidateStatus, minDays int, now time.Time) (int64, error)
}

type GormCandidateSource struct {
	db *gorm.DB
}

func NewGormCandidateSource(db *gorm.DB) *GormCandidateSource {
	return &GormCandidateSource{db: db}
}

func (s *GormCandidateSource) Stream(ctx context.Context, tenantID string, cursor string, limit int) ([]domain.Candidate, string, error) {
	if limit < 1 {
		limit = 100
	}

	query := s.db.WithContext(ctx).
		Model(&CandidateModel{}).
		Joins("JOIN tenants ON tenants.id = candidates.tenant_id AND tenants.active = ?", true).
		Where("candidates.tenant_id = ? AND candidates.status <> ?", tenantID, domain.StatusClosed)

	if cursor != "" {
		query = query.Where("candidates.id > ?", cursor)
	}

	var models []CandidateModel
	if err := query.Order("candidates.id ASC").Limit(limit).Find(&models).Error; err != nil {
		return nil, "", fmt.Errorf("failed to stream candidates: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(models))
	for i := range models {
		candidate, err := candidateModelToDomain(&models[i])
		if err != nil {
			// Malformed rows are surfaced to the runner as candidate-level
			// errors via a placeholder carrying only the id.
			candidates = append(candidates, domain.Candidate{
				ID:       models[i].ID,
				TenantID: models[i].TenantID,
				Status:   domain.CandidateStatus(models[i].Status),
			})
			continue
		}
		candidates = append(candidates, *candidate)
	}

	nextCursor := ""
	if len(models) == limit {
		nextCursor = models[len(models)-1].ID
	}

	return candidates, nextCursor, nil
}

func (s *GormCandidateSource) CountOlderThan(ctx context.Context, tenantID string, status domain.CandidateStatus, minDays int, now time.Time) (int64, error) {
	threshold := now.UTC().Add(-time.Duration(minDays) * 24 * time.Hour)

	var count int64
	err := s.db.WithContext(ctx).
		Model(&CandidateModel{}).
		Where("tenant_id = ? AND status = ? AND created_at <= ?", tenantID, status, threshold).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count candidates: %w", err)
	}

	return count, nil
}
