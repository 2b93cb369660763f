package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nioasoft/reminder-engine/internal/domain"
	"github.com/nioasoft/reminder-engine/internal/notifier"
	"github.com/nioasoft/reminder-engine/internal/queue"
)

type fakeRuleStore struct {
	mu     sync.Mutex
	rules  map[string][]domain.Rule
	err    error
	errFor map[string]error
	calls  int
}

func (f *fakeRuleStore) GetActiveRules(_ context.Context, tenantID string) ([]domain.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if err := f.errFor[tenantID]; err != nil {
		return nil, err
	}
	return f.rules[tenantID], nil
}

type fakeCandidateSource struct {
	mu         sync.Mutex
	candidates map[string][]domain.Candidate
	streamErr  error
	aggregates map[string]int64
}

func (f *fakeCandidateSource) Stream(_ context.Context, tenantID string, cursor string, limit int) ([]domain.Candidate, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.streamErr != nil {
		return nil, "", f.streamErr
	}

	all := f.candidates[tenantID]
	start := 0
	if cursor != "" {
		for i := range all {
			if all[i].ID > cursor {
				start = i
				break
			}
			start = i + 1
		}
	}

	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	batch := append([]domain.Candidate(nil), all[start:end]...)

	next := ""
	if len(batch) == limit && end < len(all) {
		next = batch[len(batch)-1].ID
	}
	return batch, next, nil
}

func (f *fakeCandidateSource) CountOlderThan(_ context.Context, tenantID string, status domain.CandidateStatus, _ int, _ time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aggregates[tenantID+"/"+status.String()], nil
}

type fakeRunStateRepo struct {
	mu      sync.Mutex
	states  map[string]domain.TenantRunState
	getErr  error
	saveErr error
	upserts int
}

func newFakeRunStateRepo() *fakeRunStateRepo {
	return &fakeRunStateRepo{states: make(map[string]domain.TenantRunState)}
}

func (f *fakeRunStateRepo) Get(_ context.Context, tenantID string) (*domain.TenantRunState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	state, ok := f.states[tenantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := state
	return &copied, nil
}

func (f *fakeRunStateRepo) Upsert(_ context.Context, state *domain.TenantRunState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.upserts++
	f.states[state.TenantID] = *state
	return nil
}

func (f *fakeRunStateRepo) List(_ context.Context) ([]domain.TenantRunState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	states := make([]domain.TenantRunState, 0, len(f.states))
	for _, state := range f.states {
		states = append(states, state)
	}
	return states, nil
}

// fakeDispatchRepo mimics the store's atomic semantics in memory: the first
// SENT write for a dedup key wins, later ones get ErrDuplicateDispatch.
type fakeDispatchRepo struct {
	mu         sync.Mutex
	records    []domain.DispatchRecord
	sentKeys   map[string]bool
	rateStates map[string]*domain.RateState
	recordErr  error

	// loseRaceOnce makes the next SENT write fail as if a concurrent worker
	// inserted the same dedup key first.
	loseRaceOnce bool
}

func newFakeDispatchRepo() *fakeDispatchRepo {
	return &fakeDispatchRepo{
		sentKeys:   make(map[string]bool),
		rateStates: make(map[string]*domain.RateState),
	}
}

func dedupKey(candidateID string, reminderType domain.ReminderType, day string) string {
	return strings.Join([]string{candidateID, reminderType.String(), day}, "|")
}

func (f *fakeDispatchRepo) HasSentOn(_ context.Context, candidateID string, reminderType domain.ReminderType, day string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sentKeys[dedupKey(candidateID, reminderType, day)], nil
}

func (f *fakeDispatchRepo) GetRateState(_ context.Context, candidateID string) (*domain.RateState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.rateStates[candidateID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *state
	return &copied, nil
}

func (f *fakeDispatchRepo) RecordAttempt(_ context.Context, record *domain.DispatchRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}

	if record.Outcome == domain.OutcomeSent {
		if f.loseRaceOnce {
			f.loseRaceOnce = false
			return domain.ErrDuplicateDispatch
		}
		key := dedupKey(record.CandidateID, record.ReminderType, record.DispatchedOn)
		if f.sentKeys[key] {
			return domain.ErrDuplicateDispatch
		}
		f.sentKeys[key] = true

		state, ok := f.rateStates[record.CandidateID]
		if !ok {
			state = &domain.RateState{CandidateID: record.CandidateID, TenantID: record.TenantID}
			f.rateStates[record.CandidateID] = state
		}
		if state.LastSentOn != record.DispatchedOn {
			state.SentTodayCount = 0
		}
		state.SentTodayCount++
		state.RemindersSentTotal++
		state.LastSentOn = record.DispatchedOn
		sentAt := record.DispatchedAt
		state.LastSentAt = &sentAt
		record.SequenceNumber = state.RemindersSentTotal
	}

	f.records = append(f.records, *record)
	return nil
}

func (f *fakeDispatchRepo) CountByOutcomeOn(_ context.Context, tenantID string, outcome domain.Outcome, day string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for i := range f.records {
		r := &f.records[i]
		if r.TenantID == tenantID && r.Outcome == outcome && r.DispatchedOn == day {
			count++
		}
	}
	return count, nil
}

func (f *fakeDispatchRepo) ListByCandidate(_ context.Context, candidateID string) ([]domain.DispatchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var records []domain.DispatchRecord
	for i := range f.records {
		if f.records[i].CandidateID == candidateID {
			records = append(records, f.records[i])
		}
	}
	return records, nil
}

func (f *fakeDispatchRepo) recordsByOutcome(outcome domain.Outcome) []domain.DispatchRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var records []domain.DispatchRecord
	for i := range f.records {
		if f.records[i].Outcome == outcome {
			records = append(records, f.records[i])
		}
	}
	return records
}

type fakeLimiter struct {
	mu      sync.Mutex
	allowed bool
	err     error
	calls   int
}

func (f *fakeLimiter) Allow(_ context.Context, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.allowed, nil
}

func (f *fakeLimiter) Wait(ctx context.Context, tenantID string) error {
	_, err := f.Allow(ctx, tenantID)
	return err
}

// fakeNotifier replays a scripted sequence of errors, then succeeds.
type fakeNotifier struct {
	mu        sync.Mutex
	errs      []error
	sendCount int
	requests  []notifier.Request
}

func (f *fakeNotifier) Send(_ context.Context, req notifier.Request) (*notifier.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.sendCount++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &notifier.Receipt{StatusCode: 200, MessageID: "msg-1"}, nil
}

type fakeTenantStore struct {
	tenants []domain.Tenant
	err     error
}

func (f *fakeTenantStore) ListActive(_ context.Context) ([]domain.Tenant, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tenants, nil
}

func (f *fakeTenantStore) GetByID(_ context.Context, id string) (*domain.Tenant, error) {
	for i := range f.tenants {
		if f.tenants[i].ID == id {
			return &f.tenants[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

type fakeAlertRepo struct {
	mu      sync.Mutex
	created []domain.Alert
	seen    map[string]bool
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{seen: make(map[string]bool)}
}

func (f *fakeAlertRepo) Create(_ context.Context, alert *domain.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.Join([]string{alert.TenantID, alert.Category.String(), alert.AlertedOn}, "|")
	if f.seen[key] {
		return domain.ErrConflict
	}
	f.seen[key] = true
	f.created = append(f.created, *alert)
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []queue.AlertMessage
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, _ string, msg queue.AlertMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakePublisher) Close() error { return nil }
