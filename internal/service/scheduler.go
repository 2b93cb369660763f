package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nioasoft/reminder-engine/internal/domain"
	"github.com/nioasoft/reminder-engine/internal/observability"
	"github.com/nioasoft/reminder-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultScanInterval  = 24 * time.Hour
	minSchedulerWorkers  = 1
	defaultSchedulerPool = 8
)

// Runner executes one scan for a tenant. Satisfied by TenantRunner.
type Runner interface {
	Run(ctx context.Context, tenantID string) (*domain.TenantRunState, error)
}

// Scheduler fans out tenant runs on a fixed cadence with bounded
// concurrency. One tenant's failure or timeout is recorded and skipped; the
// tick reports a partial-success summary instead of failing whole. A
// per-tenant single-flight guard keeps a slow run from overlapping with the
// next tick for the same tenant.
type Scheduler struct {
	tenants     repository.TenantStore
	runner      Runner
	interval    time.Duration
	concurrency int
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewScheduler(
	tenants repository.TenantStore,
	runner Runner,
	interval time.Duration,
	concurrency int,
	logger *zap.Logger,
) (*Scheduler, error) {
	if tenants == nil {
		return nil, fmt.Errorf("tenant store is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if interval <= 0 {
		interval = defaultScanInterval
	}
	if concurrency < minSchedulerWorkers {
		concurrency = defaultSchedulerPool
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		tenants:     tenants,
		runner:      runner,
		interval:    interval,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
		inflight:    make(map[string]struct{}),
	}, nil
}

func (s *Scheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start ticks immediately and then on every interval edge until the context
// is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduler initial tick failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("scheduler tick failed", zap.Error(err))
			}
		}
	}
}

// Tick runs every active tenant once. Tenants still in flight from a
// previous tick are skipped, not queued, so a tenant never runs concurrently
// with itself.
func (s *Scheduler) Tick(ctx context.Context) (domain.TickSummary, error) {
	summary := domain.TickSummary{Started: s.now().UTC()}

	tenants, err := s.tenants.ListActive(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list active tenants: %w", err)
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i := range tenants {
		tenant := tenants[i]

		if !s.tryAcquire(tenant.ID) {
			mu.Lock()
			summary.TenantsSkipped++
			mu.Unlock()
			s.logger.Info("tenant run still in flight, skipping",
				zap.String("tenantId", tenant.ID),
			)
			continue
		}

		g.Go(func() error {
			defer s.release(tenant.ID)

			state, err := s.runner.Run(ctx, tenant.ID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.TenantsFailed++
				s.logger.Error("tenant run failed, continuing tick",
					zap.String("tenantId", tenant.ID),
					zap.Error(err),
				)
				return nil
			}

			summary.TenantsRun++
			if state != nil && state.DispatchesFailed > 0 {
				s.logger.Warn("tenant run completed with dispatch failures",
					zap.String("tenantId", tenant.ID),
					zap.Int("dispatchesFailed", state.DispatchesFailed),
				)
			}
			return nil
		})
	}

	_ = g.Wait()

	summary.Finished = s.now().UTC()
	if s.metrics != nil {
		s.metrics.ObserveTickDuration(summary.Finished.Sub(summary.Started))
	}

	s.logger.Info("tick completed",
		zap.Int("tenantsRun", summary.TenantsRun),
		zap.Int("tenantsFailed", summary.TenantsFailed),
		zap.Int("tenantsSkipped", summary.TenantsSkipped),
	)

	return summary, nil
}

func (s *Scheduler) tryAcquire(tenantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inflight[tenantID]; busy {
		return false
	}
	s.inflight[tenantID] = struct{}{}
	return true
}

func (s *Scheduler) release(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, tenantID)
}
