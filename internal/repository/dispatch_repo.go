package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nioasoft/reminder-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DispatchRepository is the append-only store for dispatch records and the
// derived per-candidate rate state. Records are never mutated after creation;
// a retry produces a new record.
type DispatchRepository interface {
	// HasSentOn reports whether a SENT record already exists for the
	// (candidate, reminder type, day) dedup key.
	HasSentOn(ctx context.Context, candidateID string, reminderType domain.ReminderType, day string) (bool, error)

	// GetRateState returns the candidate's rate state, or ErrNotFound before
	// the first dispatch attempt.
	GetRateState(ctx context.Context, candidateID string) (*domain.RateState, error)

	// RecordAttempt appends a dispatch record. For a SENT outcome the
	// candidate's sequence number and today-count are advanced atomically
	// with the record write; a concurrent writer losing the unique-index
	// race gets ErrDuplicateDispatch and nothing is written.
	RecordAttempt(ctx context.Context, record *domain.DispatchRecord) error

	// CountByOutcomeOn counts a tenant's records with the given outcome on
	// the given day. Used by the alert monitor.
	CountByOutcomeOn(ctx context.Context, tenantID string, outcome domain.Outcome, day string) (int64, error)

	// ListByCandidate returns a candidate's dispatch history ordered by
	// dispatch time.
	ListByCandidate(ctx context.Context, candidateID string) ([]domain.DispatchRecord, error)
}

type GormDispatchRepo struct {
	db *gorm.DB
}

func NewGormDispatchRepo(db *gorm.DB) *GormDispatchRepo {
	return &GormDispatchRepo{db: db}
}

func (r *GormDispatchRepo) HasSentOn(ctx context.Context, candidateID string, reminderType domain.ReminderType, day string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&DispatchRecordModel{}).
		Where("candidate_id = ? AND reminder_type = ? AND dispatched_on = ? AND outcome = ?",
			candidateID, reminderType.String(), day, domain.OutcomeSent.String()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check dedup key: %w", err)
	}
	return count > 0, nil
}

func (r *GormDispatchRepo) GetRateState(ctx context.Context, candidateID string) (*domain.RateState, error) {
	var model RateStateModel
	err := r.db.WithContext(ctx).First(&model, "candidate_id = ?", candidateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rateStateModelToDomain(&model), nil
}

func (r *GormDispatchRepo) RecordAttempt(ctx context.Context, record *domain.DispatchRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is required", domain.ErrValidation)
	}
	if !record.Outcome.IsValid() {
		return fmt.Errorf("%w: invalid outcome %q", domain.ErrValidation, record.Outcome)
	}

	if record.Outcome != domain.OutcomeSent {
		model := dispatchModelFromDomain(record)
		if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
			return fmt.Errorf("failed to append dispatch record: %w", err)
		}
		*record = *dispatchModelToDomain(model)
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var state RateStateModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&state, "candidate_id = ?", record.CandidateID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Lazily created on first dispatch attempt, never deleted.
			state = RateStateModel{
				CandidateID: record.CandidateID,
				TenantID:    record.TenantID,
			}
			if err := tx.Create(&state).Error; err != nil {
				if isUniqueViolation(err) {
					return domain.ErrDuplicateDispatch
				}
				return fmt.Errorf("failed to create rate state: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to lock rate state: %w", err)
		}

		if state.LastSentOn != record.DispatchedOn {
			state.SentTodayCount = 0
		}
		state.RemindersSentTotal++
		state.SentTodayCount++
		state.LastSentOn = record.DispatchedOn
		sentAt := record.DispatchedAt
		state.LastSentAt = &sentAt

		record.SequenceNumber = state.RemindersSentTotal
		model := dispatchModelFromDomain(record)
		if err := tx.Create(model).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicateDispatch
			}
			return fmt.Errorf("failed to append dispatch record: %w", err)
		}

		if err := tx.Save(&state).Error; err != nil {
			return fmt.Errorf("failed to update rate state: %w", err)
		}

		*record = *dispatchModelToDomain(model)
		return nil
	})
}

func (r *GormDispatchRepo) CountByOutcomeOn(ctx context.Context, tenantID string, outcome domain.Outcome, day string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&DispatchRecordModel{}).
		Where("tenant_id = ? AND outcome = ? AND dispatched_on = ?", tenantID, outcome.String(), day).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count dispatch records: %w", err)
	}
	return count, nil
}

func (r *GormDispatchRepo) ListByCandidate(ctx context.Context, candidateID string) ([]domain.DispatchRecord, error) {
	var models []DispatchRecordModel
	err := r.db.WithContext(ctx).
		Where("candidate_id = ?", candidateID).
		Order("dispatched_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.DispatchRecord, 0, len(models))
	for i := range models {
		records = append(records, *dispatchModelToDomain(&models[i]))
	}
	return records, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
