package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nioasoft/reminder-engine/internal/dedup"
	"github.com/nioasoft/reminder-engine/internal/domain"
	"github.com/nioasoft/reminder-engine/internal/match"
	"go.uber.org/zap"
)

type runnerFixture struct {
	rules      *fakeRuleStore
	candidates *fakeCandidateSource
	runStates  *fakeRunStateRepo
	dispatches *fakeDispatchRepo
	sender     *fakeNotifier
	runner     *TenantRunner
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()

	f := &runnerFixture{
		rules:      &fakeRuleStore{rules: make(map[string][]domain.Rule)},
		candidates: &fakeCandidateSource{candidates: make(map[string][]domain.Candidate)},
		runStates:  newFakeRunStateRepo(),
		dispatches: newFakeDispatchRepo(),
		sender:     &fakeNotifier{},
	}

	guard, err := dedup.NewGuard(f.dispatches, &fakeLimiter{allowed: true}, 3, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected guard error: %v", err)
	}
	dispatcher, err := NewDispatcher(guard, f.sender, 3, time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected dispatcher error: %v", err)
	}
	dispatcher.sleep = func(context.Context, time.Duration) error { return nil }

	runner, err := NewTenantRunner(
		f.rules,
		f.candidates,
		f.runStates,
		match.NewMatcher(zap.NewNop()),
		dispatcher,
		2,
		time.Minute,
		100,
		zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("unexpected runner error: %v", err)
	}
	f.runner = runner
	return f
}

func overdueRule(priority int) domain.Rule {
	return domain.Rule{
		ID:           "rule-overdue",
		TenantID:     "tenant-1",
		Priority:     priority,
		Active:       true,
		ReminderType: "payment_overdue",
		ChannelHint:  domain.ChannelEmail,
		Conditions: []domain.Clause{
			{Op: domain.OpStatusIn, Field: domain.FieldStatus, Statuses: []domain.CandidateStatus{domain.StatusOverdue}},
		},
	}
}

func overdueCandidate(id string) domain.Candidate {
	return domain.Candidate{
		ID:        id,
		TenantID:  "tenant-1",
		Status:    domain.StatusOverdue,
		CreatedAt: time.Now().UTC().Add(-5 * 24 * time.Hour),
	}
}

func TestTenantRunner_FullRun(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t)
	f.rules.rules["tenant-1"] = []domain.Rule{overdueRule(10)}
	f.candidates.candidates["tenant-1"] = []domain.Candidate{
		overdueCandidate("cand-1"),
		overdueCandidate("cand-2"),
		overdueCandidate("cand-3"),
	}

	state, err := f.runner.Run(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.CandidatesScanned != 3 {
		t.Fatalf("scanned=%d, want=3", state.CandidatesScanned)
	}
	if state.DispatchesSent != 3 {
		t.Fatalf("sent=%d, want=3", state.DispatchesSent)
	}
	if !state.Completed() {
		t.Fatal("run should be complete with an empty cursor")
	}
	if f.runStates.upserts != 1 {
		t.Fatalf("upserts=%d, want=1", f.runStates.upserts)
	}
}

func TestTenantRunner_UnusableCandidateSkipped(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t)
	f.rules.rules["tenant-1"] = []domain.Rule{overdueRule(10)}
	broken := overdueCandidate("cand-1")
	broken.CreatedAt = time.Time{}
	f.candidates.candidates["tenant-1"] = []domain.Candidate{
		broken,
		overdueCandidate("cand-2"),
	}

	state, err := f.runner.Run(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.CandidatesSkipped != 1 {
		t.Fatalf("skipped=%d, want=1", state.CandidatesSkipped)
	}
	if state.DispatchesSent != 1 {
		t.Fatalf("sent=%d, want=1", state.DispatchesSent)
	}
}

func TestTenantRunner_NoMatchingRule_NoDispatch(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t)
	rule := overdueRule(10)
	rule.Conditions = []domain.Clause{
		{Op: domain.OpStatusIn, Field: domain.FieldStatus, Statuses: []domain.CandidateStatus{domain.StatusDisputed}},
	}
	f.rules.rules["tenant-1"] = []domain.Rule{rule}
	f.candidates.candidates["tenant-1"] = []domain.Candidate{overdueCandidate("cand-1")}

	state, err := f.runner.Run(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.DispatchesSent != 0 {
		t.Fatalf("sent=%d, want=0", state.DispatchesSent)
	}
	if f.sender.sendCount != 0 {
		t.Fatalf("notifier calls=%d, want=0", f.sender.sendCount)
	}
}

func TestTenantRunner_RerunIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t)
	f.rules.rules["tenant-1"] = []domain.Rule{overdueRule(10)}
	f.candidates.candidates["tenant-1"] = []domain.Candidate{overdueCandidate("cand-1")}

	if _, err := f.runner.Run(context.Background(), "tenant-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	state, err := f.runner.Run(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if state.DispatchesSent != 0 {
		t.Fatalf("second run sent=%d, want=0", state.DispatchesSent)
	}
	if f.sender.sendCount != 1 {
		t.Fatalf("notifier calls=%d, want=1", f.sender.sendCount)
	}
	if got := len(f.dispatches.records); got != 1 {
		t.Fatalf("records=%d, want=1", got)
	}
}

func TestTenantRunner_RuleSnapshotFailureAborts(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t)
	f.rules.err = errors.New("rules unreachable")

	state, err := f.runner.Run(context.Background(), "tenant-1")
	if err == nil {
		t.Fatal("expected tenant-fatal error")
	}
	if state.LastError == nil {
		t.Fatal("expected LastError to be persisted")
	}
	if f.runStates.upserts != 1 {
		t.Fatalf("upserts=%d, want=1", f.runStates.upserts)
	}
}

func TestTenantRunner_ResumesFromCursor(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t)
	f.rules.rules["tenant-1"] = []domain.Rule{overdueRule(10)}
	f.candidates.candidates["tenant-1"] = []domain.Candidate{
		overdueCandidate("cand-1"),
		overdueCandidate("cand-2"),
	}
	f.runStates.states["tenant-1"] = domain.TenantRunState{
		TenantID: "tenant-1",
		Cursor:   "cand-1",
	}

	state, err := f.runner.Run(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.CandidatesScanned != 1 {
		t.Fatalf("scanned=%d, want=1", state.CandidatesScanned)
	}
	if f.sender.requests[0].CandidateID != "cand-2" {
		t.Fatalf("resumed at %q, want cand-2", f.sender.requests[0].CandidateID)
	}
}

func TestTenantRunner_RunCeilingRecordsSkips(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t)
	f.rules.rules["tenant-1"] = []domain.Rule{overdueRule(10)}
	f.candidates.candidates["tenant-1"] = []domain.Candidate{
		overdueCandidate("cand-1"),
		overdueCandidate("cand-2"),
	}

	runner, err := NewTenantRunner(
		f.rules, f.candidates, f.runStates,
		match.NewMatcher(zap.NewNop()),
		f.runner.dispatcher,
		2, time.Minute, 1,
		zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state, err := runner.Run(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.DispatchesSent != 1 {
		t.Fatalf("sent=%d, want=1", state.DispatchesSent)
	}

	skipped := f.dispatches.recordsByOutcome(domain.OutcomeSkippedRateLimited)
	if len(skipped) != 1 {
		t.Fatalf("skipped records=%d, want=1", len(skipped))
	}
	if skipped[0].CandidateID != "cand-2" {
		t.Fatalf("skipped candidate=%q, want cand-2", skipped[0].CandidateID)
	}
}

func TestTenantRunner_CancellationSavesCursor(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t)
	f.rules.rules["tenant-1"] = []domain.Rule{overdueRule(10)}
	f.candidates.candidates["tenant-1"] = []domain.Candidate{
		overdueCandidate("cand-1"),
		overdueCandidate("cand-2"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state, err := f.runner.Run(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.CandidatesScanned != 0 {
		t.Fatalf("scanned=%d, want=0", state.CandidatesScanned)
	}
	if f.sender.sendCount != 0 {
		t.Fatalf("notifier calls=%d, want=0", f.sender.sendCount)
	}
}
