package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/nioasoft/reminder-engine/internal/dedup"
	"github.com/nioasoft/reminder-engine/internal/domain"
	"github.com/nioasoft/reminder-engine/internal/notifier"
	"github.com/nioasoft/reminder-engine/internal/observability"
	"go.uber.org/zap"
)

const (
	minDispatchAttempts  = 1
	defaultMaxAttempts   = 3
	baseRetryDelay       = time.Second
	maxRetryDelay        = 30 * time.Second
	maxRetryJitterMillis = 250
)

// Dispatcher turns a matched rule + candidate into a notifier call and an
// append-only dispatch record. Transient delivery failures are retried with
// exponential backoff within the same run; a failed outcome never blocks a
// future scan from retrying the candidate the next day.
type Dispatcher struct {
	guard           *dedup.Guard
	notifier        notifier.Notifier
	logger          *zap.Logger
	metrics         *observability.Metrics
	maxAttempts     int
	notifierTimeout time.Duration
	now             func() time.Time
	randIntn        func(n int) int
	sleep           func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(
	guard *dedup.Guard,
	sender notifier.Notifier,
	maxAttempts int,
	notifierTimeout time.Duration,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if guard == nil {
		return nil, fmt.Errorf("dedup guard is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if maxAttempts < minDispatchAttempts {
		maxAttempts = defaultMaxAttempts
	}
	if notifierTimeout <= 0 {
		notifierTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		guard:           guard,
		notifier:        sender,
		logger:          logger,
		maxAttempts:     maxAttempts,
		notifierTimeout: notifierTimeout,
		now:             time.Now,
		randIntn:        rand.Intn,
		sleep:           sleepWithContext,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Dispatch checks rate limits, delivers the reminder, and appends the audit
// record. A nil record with nil error means the reminder was already sent
// today and nothing needed to happen (idempotent re-run).
func (d *Dispatcher) Dispatch(ctx context.Context, candidate *domain.Candidate, rule *domain.Rule) (*domain.DispatchRecord, error) {
	logger := observability.WithContextLogger(d.logger, ctx)

	verdict, err := d.guard.CanSend(ctx, candidate.TenantID, candidate.ID, rule.ReminderType)
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	if !verdict.Allowed {
		// Already-sent-today needs no new record; re-running a scan on
		// unchanged data is a no-op, not a rate-limit event.
		if verdict.Reason == dedup.SkipDuplicateToday {
			logger.Debug("reminder already sent today, skipping",
				zap.String("candidateId", candidate.ID),
				zap.String("reminderType", rule.ReminderType.String()),
			)
			return nil, nil
		}
		return d.RecordSkip(ctx, candidate, rule, verdict.Reason)
	}

	request := notifier.Request{
		TenantID:     candidate.TenantID,
		CandidateID:  candidate.ID,
		ReminderType: rule.ReminderType,
		Channel:      rule.DispatchChannel(candidate),
		Params: map[string]string{
			"status":     candidate.Status.String(),
			"created_at": candidate.CreatedAt.UTC().Format(time.RFC3339),
		},
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		attempts = attempt

		sendStart := d.now()
		receipt, sendErr := d.send(ctx, request)
		if d.metrics != nil {
			d.metrics.ObserveNotifierSendDuration(d.now().Sub(sendStart))
		}

		if sendErr == nil {
			if receipt != nil && receipt.MessageID != "" {
				logger.Debug("notifier accepted reminder",
					zap.String("candidateId", candidate.ID),
					zap.String("messageId", receipt.MessageID),
				)
			}
			record, err := d.guard.RecordAttempt(ctx, dedup.AttemptRequest{
				TenantID:     candidate.TenantID,
				CandidateID:  candidate.ID,
				RuleID:       rule.ID,
				ReminderType: rule.ReminderType,
				Channel:      request.Channel,
				Outcome:      domain.OutcomeSent,
				AttemptCount: attempts,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to record sent dispatch: %w", err)
			}
			if d.metrics != nil {
				if record.Outcome == domain.OutcomeSent {
					d.metrics.IncDispatchSent(candidate.TenantID)
				} else {
					d.metrics.IncDispatchSkipped(candidate.TenantID, string(dedup.SkipDuplicateToday))
				}
			}
			return record, nil
		}

		lastErr = sendErr
		if !notifier.IsTransient(sendErr) {
			logger.Warn("permanent delivery failure, not retrying",
				zap.String("candidateId", candidate.ID),
				zap.Error(sendErr),
			)
			break
		}

		logger.Warn("transient delivery failure",
			zap.String("candidateId", candidate.ID),
			zap.Int("attempt", attempt),
			zap.Error(sendErr),
		)

		if attempt == d.maxAttempts {
			break
		}
		if err := d.sleep(ctx, d.computeRetryDelay(attempt)); err != nil {
			break
		}
	}

	record, err := d.guard.RecordAttempt(ctx, dedup.AttemptRequest{
		TenantID:     candidate.TenantID,
		CandidateID:  candidate.ID,
		RuleID:       rule.ID,
		ReminderType: rule.ReminderType,
		Channel:      request.Channel,
		Outcome:      domain.OutcomeFailed,
		AttemptCount: attempts,
		Error:        lastErr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record failed dispatch: %w", err)
	}
	if d.metrics != nil {
		reason := "permanent_error"
		if notifier.IsTransient(lastErr) {
			reason = "retry_exhausted"
		}
		d.metrics.IncDispatchFailed(candidate.TenantID, reason)
	}

	return record, nil
}

// RecordSkip appends a SKIPPED_RATE_LIMITED record without calling the
// notifier.
func (d *Dispatcher) RecordSkip(ctx context.Context, candidate *domain.Candidate, rule *domain.Rule, reason dedup.SkipReason) (*domain.DispatchRecord, error) {
	record, err := d.guard.RecordAttempt(ctx, dedup.AttemptRequest{
		TenantID:     candidate.TenantID,
		CandidateID:  candidate.ID,
		RuleID:       rule.ID,
		ReminderType: rule.ReminderType,
		Channel:      rule.DispatchChannel(candidate),
		Outcome:      domain.OutcomeSkippedRateLimited,
		Error:        fmt.Errorf("rate limited: %s", reason),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record skipped dispatch: %w", err)
	}
	if d.metrics != nil {
		d.metrics.IncDispatchSkipped(candidate.TenantID, string(reason))
	}
	return record, nil
}

func (d *Dispatcher) send(ctx context.Context, request notifier.Request) (*notifier.Receipt, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.notifierTimeout)
	defer cancel()
	return d.notifier.Send(callCtx, request)
}

func (d *Dispatcher) computeRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := baseRetryDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	jitterMillis := 0
	if d.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = d.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
