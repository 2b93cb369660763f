package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nioasoft/reminder-engine/internal/domain"
	"github.com/nioasoft/reminder-engine/internal/observability"
	"github.com/nioasoft/reminder-engine/internal/queue"
	"github.com/nioasoft/reminder-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultAlertInterval   = time.Hour
	defaultOverdueDays     = 14
	defaultStaleOpenDays   = 30
	disputedAlertThreshold = 1
)

// AlertThresholds configures the backlog sizes that trigger staff alerts.
type AlertThresholds struct {
	// OverdueDays is the minimum candidate age, in days, for the overdue
	// backlog alert.
	OverdueDays int
	// StaleOpenDays is the minimum candidate age, in days, for the stale
	// open alert.
	StaleOpenDays int
}

// AlertMonitor watches per-tenant aggregates and raises staff-facing summary
// alerts: overdue backlogs, stale open candidates, disputed backlogs, same-day
// dispatch failures, and malformed rule configuration. Alerts bypass the
// per-candidate rate limiter entirely; their only dedup is the once-per-day
// unique key enforced by the alert store.
type AlertMonitor struct {
	tenants    repository.TenantStore
	candidates repository.CandidateSource
	rules      repository.RuleStore
	dispatches repository.DispatchRepository
	alerts     repository.AlertRepository
	publisher  queue.Publisher
	thresholds AlertThresholds
	interval   time.Duration
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

func NewAlertMonitor(
	tenants repository.TenantStore,
	candidates repository.CandidateSource,
	rules repository.RuleStore,
	dispatches repository.DispatchRepository,
	alerts repository.AlertRepository,
	publisher queue.Publisher,
	thresholds AlertThresholds,
	interval time.Duration,
	logger *zap.Logger,
) (*AlertMonitor, error) {
	if tenants == nil {
		return nil, fmt.Errorf("tenant store is required")
	}
	if candidates == nil {
		return nil, fmt.Errorf("candidate source is required")
	}
	if rules == nil {
		return nil, fmt.Errorf("rule store is required")
	}
	if dispatches == nil {
		return nil, fmt.Errorf("dispatch repository is required")
	}
	if alerts == nil {
		return nil, fmt.Errorf("alert repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if thresholds.OverdueDays < 1 {
		thresholds.OverdueDays = defaultOverdueDays
	}
	if thresholds.StaleOpenDays < 1 {
		thresholds.StaleOpenDays = defaultStaleOpenDays
	}
	if interval <= 0 {
		interval = defaultAlertInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AlertMonitor{
		tenants:    tenants,
		candidates: candidates,
		rules:      rules,
		dispatches: dispatches,
		alerts:     alerts,
		publisher:  publisher,
		thresholds: thresholds,
		interval:   interval,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (m *AlertMonitor) SetMetrics(metrics *observability.Metrics) {
	if m == nil {
		return
	}
	m.metrics = metrics
}

// Start checks immediately and then on every interval edge until the context
// is canceled.
func (m *AlertMonitor) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := m.CheckAll(ctx); err != nil && ctx.Err() == nil {
		m.logger.Error("initial alert check failed", zap.Error(err))
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.CheckAll(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				m.logger.Error("alert check failed", zap.Error(err))
			}
		}
	}
}

// CheckAll evaluates thresholds for every active tenant. A failing tenant is
// logged and skipped so one broken tenant never silences the rest.
func (m *AlertMonitor) CheckAll(ctx context.Context) error {
	tenants, err := m.tenants.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active tenants: %w", err)
	}

	for i := range tenants {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := m.CheckThresholds(ctx, tenants[i].ID); err != nil {
			m.logger.Error("alert check failed for tenant, continuing",
				zap.String("tenantId", tenants[i].ID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// CheckThresholds evaluates every alert category for one tenant and returns
// the alerts emitted in this pass. Categories already alerted today are
// silently skipped.
func (m *AlertMonitor) CheckThresholds(ctx context.Context, tenantID string) ([]domain.Alert, error) {
	now := m.now().UTC()
	day := now.Format(domain.DayKey)

	checks := []struct {
		category  domain.AlertCategory
		threshold int
		count     func() (int64, error)
	}{
		{
			category:  domain.AlertOverdueBacklog,
			threshold: m.thresholds.OverdueDays,
			count: func() (int64, error) {
				return m.candidates.CountOlderThan(ctx, tenantID, domain.StatusOverdue, m.thresholds.OverdueDays, now)
			},
		},
		{
			category:  domain.AlertStaleOpen,
			threshold: m.thresholds.StaleOpenDays,
			count: func() (int64, error) {
				return m.candidates.CountOlderThan(ctx, tenantID, domain.StatusOpen, m.thresholds.StaleOpenDays, now)
			},
		},
		{
			category:  domain.AlertDisputedBacklog,
			threshold: disputedAlertThreshold,
			count: func() (int64, error) {
				return m.candidates.CountOlderThan(ctx, tenantID, domain.StatusDisputed, 0, now)
			},
		},
		{
			category:  domain.AlertDispatchFailures,
			threshold: 1,
			count: func() (int64, error) {
				return m.dispatches.CountByOutcomeOn(ctx, tenantID, domain.OutcomeFailed, day)
			},
		},
		{
			category:  domain.AlertMalformedRules,
			threshold: 1,
			count:     func() (int64, error) { return m.countMalformedRules(ctx, tenantID) },
		},
	}

	var emitted []domain.Alert
	for _, check := range checks {
		count, err := check.count()
		if err != nil {
			return emitted, fmt.Errorf("%s aggregate failed: %w", check.category, err)
		}
		if count < 1 {
			continue
		}

		alert := domain.Alert{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			Category:  check.category,
			AlertedOn: day,
			Count:     int(count),
			Threshold: check.threshold,
			CreatedAt: now,
		}

		if err := m.emit(ctx, &alert); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				// Already alerted for this category today.
				continue
			}
			return emitted, err
		}
		emitted = append(emitted, alert)
	}

	return emitted, nil
}

// emit persists the alert and, only if it is new for today, publishes it to
// the staff queue. A publish failure after a successful insert is logged but
// not retried; the persisted row keeps the day deduped.
func (m *AlertMonitor) emit(ctx context.Context, alert *domain.Alert) error {
	if err := m.alerts.Create(ctx, alert); err != nil {
		return err
	}

	if err := m.publisher.Publish(ctx, queue.StaffAlertQueue, queue.FromAlert(alert)); err != nil {
		m.logger.Error("alert persisted but publish failed",
			zap.String("tenantId", alert.TenantID),
			zap.String("category", alert.Category.String()),
			zap.Error(err),
		)
	}

	if m.metrics != nil {
		m.metrics.IncAlertEmitted(alert.Category.String())
	}

	m.logger.Info("staff alert emitted",
		zap.String("tenantId", alert.TenantID),
		zap.String("category", alert.Category.String()),
		zap.Int("count", alert.Count),
	)

	return nil
}

func (m *AlertMonitor) countMalformedRules(ctx context.Context, tenantID string) (int64, error) {
	rules, err := m.rules.GetActiveRules(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	var malformed int64
	for i := range rules {
		if rules[i].Malformed() {
			malformed++
		}
	}
	return malformed, nil
}
