package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nioasoft/reminder-engine/internal/dedup"
	"github.com/nioasoft/reminder-engine/internal/domain"
	"github.com/nioasoft/reminder-engine/internal/match"
	"github.com/nioasoft/reminder-engine/internal/observability"
	"github.com/nioasoft/reminder-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultCandidateBatchSize  = 200
	defaultRunBudget           = 30 * time.Minute
	defaultMaxDispatchesPerRun = 10000
)

// TenantRunner orchestrates one full scan-match-dispatch pass for a single
// tenant. A candidate-level error is logged, counted, and skipped; only a
// tenant-level catastrophic error (rule snapshot or candidate stream
// unreachable) aborts the run, and the next scheduled cycle retries it.
type TenantRunner struct {
	rules               repository.RuleStore
	candidates          repository.CandidateSource
	runStates           repository.RunStateRepository
	matcher             *match.Matcher
	dispatcher          *Dispatcher
	batchSize           int
	runBudget           time.Duration
	maxDispatchesPerRun int
	logger              *zap.Logger
	metrics             *observability.Metrics
	now                 func() time.Time
}

func NewTenantRunner(
	rules repository.RuleStore,
	candidates repository.CandidateSource,
	runStates repository.RunStateRepository,
	matcher *match.Matcher,
	dispatcher *Dispatcher,
	batchSize int,
	runBudget time.Duration,
	maxDispatchesPerRun int,
	logger *zap.Logger,
) (*TenantRunner, error) {
	if rules == nil {
		return nil, fmt.Errorf("rule store is required")
	}
	if candidates == nil {
		return nil, fmt.Errorf("candidate source is required")
	}
	if runStates == nil {
		return nil, fmt.Errorf("run state repository is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if batchSize < 1 {
		batchSize = defaultCandidateBatchSize
	}
	if runBudget <= 0 {
		runBudget = defaultRunBudget
	}
	if maxDispatchesPerRun < 1 {
		maxDispatchesPerRun = defaultMaxDispatchesPerRun
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if matcher == nil {
		matcher = match.NewMatcher(logger)
	}

	return &TenantRunner{
		rules:               rules,
		candidates:          candidates,
		runStates:           runStates,
		matcher:             matcher,
		dispatcher:          dispatcher,
		batchSize:           batchSize,
		runBudget:           runBudget,
		maxDispatchesPerRun: maxDispatchesPerRun,
		logger:              logger,
		now:                 time.Now,
	}, nil
}

func (r *TenantRunner) SetMetrics(metrics *observability.Metrics) {
	if r == nil {
		return
	}
	r.metrics = metrics
}

// Run executes one scan for the tenant and persists its run state. Crashed or
// budget-stopped runs resume from the saved cursor; dispatch record dedup
// keys make overlapping re-runs safe.
func (r *TenantRunner) Run(ctx context.Context, tenantID string) (*domain.TenantRunState, error) {
	runID := uuid.NewString()
	ctx = observability.WithRunID(ctx, runID)
	logger := observability.WithContextLogger(r.logger, ctx).With(zap.String("tenantId", tenantID))

	startedAt := r.now().UTC()
	state := &domain.TenantRunState{
		TenantID:         tenantID,
		LastRunStartedAt: startedAt,
		UpdatedAt:        startedAt,
	}

	// Resume from the previous run's cursor when it stopped mid-stream.
	cursor := ""
	if previous, err := r.runStates.Get(ctx, tenantID); err == nil && previous.Cursor != "" {
		cursor = previous.Cursor
		logger.Info("resuming interrupted run", zap.String("cursor", cursor))
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return r.abort(ctx, state, fmt.Errorf("failed to read previous run state: %w", err), logger)
	}

	// Snapshot the active rule set once per run to avoid mid-scan
	// inconsistency while the configuration surface edits rules.
	rules, err := r.rules.GetActiveRules(ctx, tenantID)
	if err != nil {
		return r.abort(ctx, state, fmt.Errorf("failed to snapshot rules: %w", err), logger)
	}

	// A single clock for the whole scan keeps days_since consistent for
	// every candidate in the run.
	scanNow := r.now().UTC()
	deadline := startedAt.Add(r.runBudget)

	logger.Info("tenant run started",
		zap.Int("rules", len(rules)),
		zap.String("cursor", cursor),
	)

	// The cursor always points at the last fully processed candidate, so a
	// resumed run continues exactly where this one stopped.
	lastProcessed := cursor

stream:
	for {
		batch, nextCursor, err := r.candidates.Stream(ctx, tenantID, cursor, r.batchSize)
		if err != nil {
			return r.abort(ctx, state, fmt.Errorf("failed to stream candidates: %w", err), logger)
		}

		for i := range batch {
			if ctx.Err() != nil {
				// Cooperative cancellation: the previous candidate's dispatch
				// already finished atomically; save the cursor and stop.
				state.Cursor = lastProcessed
				logger.Info("run canceled, cursor saved", zap.String("cursor", state.Cursor))
				break stream
			}
			if r.now().UTC().After(deadline) {
				state.Cursor = lastProcessed
				logger.Info("run budget exhausted, cursor saved", zap.String("cursor", state.Cursor))
				break stream
			}

			r.processCandidate(ctx, &batch[i], rules, scanNow, state, logger)
			lastProcessed = batch[i].ID
		}

		if nextCursor == "" {
			state.Cursor = ""
			break
		}
		cursor = nextCursor
	}

	completedAt := r.now().UTC()
	state.LastRunCompletedAt = &completedAt
	state.UpdatedAt = completedAt

	if err := r.runStates.Upsert(ctx, state); err != nil {
		return state, fmt.Errorf("failed to persist run state: %w", err)
	}

	if r.metrics != nil {
		r.metrics.AddCandidatesScanned(tenantID, state.CandidatesScanned)
		r.metrics.ObserveTenantRunDuration(tenantID, completedAt.Sub(startedAt))
		r.metrics.IncTenantRun("completed")
	}

	logger.Info("tenant run completed",
		zap.Int("candidatesScanned", state.CandidatesScanned),
		zap.Int("candidatesSkipped", state.CandidatesSkipped),
		zap.Int("dispatchesSent", state.DispatchesSent),
		zap.Int("dispatchesFailed", state.DispatchesFailed),
	)

	return state, nil
}

func (r *TenantRunner) processCandidate(
	ctx context.Context,
	candidate *domain.Candidate,
	rules []domain.Rule,
	scanNow time.Time,
	state *domain.TenantRunState,
	logger *zap.Logger,
) {
	state.CandidatesScanned++

	if err := candidate.Validate(); err != nil {
		state.CandidatesSkipped++
		logger.Warn("skipping unusable candidate",
			zap.String("candidateId", candidate.ID),
			zap.Error(err),
		)
		return
	}

	features := domain.NewFeatureSet(candidate, scanNow)
	rule, ok := r.matcher.Match(features, rules)
	if !ok {
		return
	}

	if state.DispatchesSent >= r.maxDispatchesPerRun {
		if _, err := r.dispatcher.RecordSkip(ctx, candidate, rule, dedup.SkipRunCeiling); err != nil {
			state.CandidatesSkipped++
			logger.Warn("failed to record run ceiling skip",
				zap.String("candidateId", candidate.ID),
				zap.Error(err),
			)
		}
		return
	}

	record, err := r.dispatcher.Dispatch(ctx, candidate, rule)
	if err != nil {
		state.CandidatesSkipped++
		logger.Warn("candidate dispatch errored, continuing run",
			zap.String("candidateId", candidate.ID),
			zap.String("ruleId", rule.ID),
			zap.Error(err),
		)
		return
	}
	if record == nil {
		// Already sent today; idempotent no-op.
		return
	}

	switch record.Outcome {
	case domain.OutcomeSent:
		state.DispatchesSent++
	case domain.OutcomeFailed:
		state.DispatchesFailed++
		if record.Error != nil {
			state.LastError = record.Error
		}
	}
}

func (r *TenantRunner) abort(ctx context.Context, state *domain.TenantRunState, cause error, logger *zap.Logger) (*domain.TenantRunState, error) {
	message := cause.Error()
	state.LastError = &message
	state.UpdatedAt = r.now().UTC()

	if err := r.runStates.Upsert(ctx, state); err != nil {
		logger.Error("failed to persist aborted run state", zap.Error(err))
	}
	if r.metrics != nil {
		r.metrics.IncTenantRun("failed")
	}

	logger.Error("tenant run aborted", zap.Error(cause))
	return state, cause
}
