// Package dedup enforces the engine's idempotency and rate-limit policy: at
// most one sent reminder per (candidate, reminder type, calendar day), a
// per-candidate daily cap, an optional lifetime ceiling, and a per-tenant
// throughput ceiling.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nioasoft/reminder-engine/internal/domain"
	"github.com/nioasoft/reminder-engine/internal/ratelimit"
	"github.com/nioasoft/reminder-engine/internal/repository"
	"go.uber.org/zap"
)

// SkipReason explains why a dispatch was not allowed.
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipDuplicateToday  SkipReason = "duplicate_today"
	SkipDailyCap        SkipReason = "daily_cap"
	SkipLifetimeCap     SkipReason = "lifetime_cap"
	SkipTenantThrottled SkipReason = "tenant_throttled"
	SkipRunCeiling      SkipReason = "run_ceiling"
)

// Verdict is the outcome of a CanSend check.
type Verdict struct {
	Allowed bool
	Reason  SkipReason
}

// AttemptRequest describes one dispatch outcome to append.
type AttemptRequest struct {
	TenantID     string
	CandidateID  string
	RuleID       string
	ReminderType domain.ReminderType
	Channel      domain.Channel
	Outcome      domain.Outcome
	AttemptCount int
	Error        error
}

// Guard combines the append-only dispatch store with the distributed tenant
// throughput limiter. Per-candidate counters are never mutated in place by
// callers; they are advanced inside the store's atomic record write.
type Guard struct {
	dispatches      repository.DispatchRepository
	limiter         ratelimit.RateLimiter
	dailyCap        int
	lifetimeCeiling int
	logger          *zap.Logger
	now             func() time.Time
}

const defaultDailyCap = 3

func NewGuard(
	dispatches repository.DispatchRepository,
	limiter ratelimit.RateLimiter,
	dailyCap int,
	lifetimeCeiling int,
	logger *zap.Logger,
) (*Guard, error) {
	if dispatches == nil {
		return nil, fmt.Errorf("dispatch repository is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if dailyCap < 1 {
		dailyCap = defaultDailyCap
	}
	if lifetimeCeiling < 0 {
		lifetimeCeiling = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Guard{
		dispatches:      dispatches,
		limiter:         limiter,
		dailyCap:        dailyCap,
		lifetimeCeiling: lifetimeCeiling,
		logger:          logger,
		now:             time.Now,
	}, nil
}

// CanSend reports whether a reminder may be dispatched now. The check is
// advisory; the atomic insert in RecordAttempt is the authoritative guard
// against concurrent double-sends.
func (g *Guard) CanSend(ctx context.Context, tenantID, candidateID string, reminderType domain.ReminderType) (Verdict, error) {
	day := g.today()

	sent, err := g.dispatches.HasSentOn(ctx, candidateID, reminderType, day)
	if err != nil {
		return Verdict{}, fmt.Errorf("dedup check failed: %w", err)
	}
	if sent {
		return Verdict{Reason: SkipDuplicateToday}, nil
	}

	state, err := g.dispatches.GetRateState(ctx, candidateID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return Verdict{}, fmt.Errorf("rate state lookup failed: %w", err)
	}
	if state != nil {
		if state.SentToday(day) >= g.dailyCap {
			return Verdict{Reason: SkipDailyCap}, nil
		}
		if g.lifetimeCeiling > 0 && state.RemindersSentTotal >= g.lifetimeCeiling {
			return Verdict{Reason: SkipLifetimeCap}, nil
		}
	}

	allowed, err := g.limiter.Allow(ctx, tenantID)
	if err != nil {
		return Verdict{}, fmt.Errorf("tenant throughput check failed: %w", err)
	}
	if !allowed {
		return Verdict{Reason: SkipTenantThrottled}, nil
	}

	return Verdict{Allowed: true}, nil
}

// RecordAttempt appends a dispatch record. When two workers race to send the
// same reminder, the loser's SENT write trips the unique dedup index and is
// re-recorded as SKIPPED_RATE_LIMITED, never FAILED.
func (g *Guard) RecordAttempt(ctx context.Context, req AttemptRequest) (*domain.DispatchRecord, error) {
	record := g.buildRecord(req)

	err := g.dispatches.RecordAttempt(ctx, record)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, domain.ErrDuplicateDispatch) {
		return nil, err
	}

	g.logger.Info("lost dispatch race, recording as rate limited",
		zap.String("candidateId", req.CandidateID),
		zap.String("reminderType", req.ReminderType.String()),
	)

	loser := req
	loser.Outcome = domain.OutcomeSkippedRateLimited
	loser.Error = fmt.Errorf("%s: %w", SkipDuplicateToday, domain.ErrDuplicateDispatch)
	record = g.buildRecord(loser)
	if err := g.dispatches.RecordAttempt(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record race loser: %w", err)
	}

	return record, nil
}

func (g *Guard) buildRecord(req AttemptRequest) *domain.DispatchRecord {
	now := g.now().UTC()

	var errText *string
	if req.Error != nil {
		value := req.Error.Error()
		errText = &value
	}

	attempts := req.AttemptCount
	if attempts < 1 {
		attempts = 1
	}

	return &domain.DispatchRecord{
		ID:           uuid.NewString(),
		CandidateID:  req.CandidateID,
		RuleID:       req.RuleID,
		TenantID:     req.TenantID,
		ReminderType: req.ReminderType,
		Channel:      req.Channel,
		DispatchedOn: now.Format(domain.DayKey),
		DispatchedAt: now,
		Outcome:      req.Outcome,
		AttemptCount: attempts,
		Error:        errText,
	}
}

func (g *Guard) today() string {
	return g.now().UTC().Format(domain.DayKey)
}
