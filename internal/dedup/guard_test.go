package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nioasoft/reminder-engine/internal/domain"
	"go.uber.org/zap"
)

type stubDispatchRepo struct {
	sent       map[string]bool
	rateState  *domain.RateState
	records    []*domain.DispatchRecord
	recordErrs []error
}

func newStubDispatchRepo() *stubDispatchRepo {
	return &stubDispatchRepo{sent: make(map[string]bool)}
}

func (s *stubDispatchRepo) HasSentOn(_ context.Context, candidateID string, reminderType domain.ReminderType, day string) (bool, error) {
	return s.sent[candidateID+"|"+reminderType.String()+"|"+day], nil
}

func (s *stubDispatchRepo) GetRateState(_ context.Context, _ string) (*domain.RateState, error) {
	if s.rateState == nil {
		return nil, domain.ErrNotFound
	}
	return s.rateState, nil
}

func (s *stubDispatchRepo) RecordAttempt(_ context.Context, record *domain.DispatchRecord) error {
	if len(s.recordErrs) > 0 {
		err := s.recordErrs[0]
		s.recordErrs = s.recordErrs[1:]
		if err != nil {
			return err
		}
	}
	s.records = append(s.records, record)
	return nil
}

func (s *stubDispatchRepo) CountByOutcomeOn(_ context.Context, _ string, _ domain.Outcome, _ string) (int64, error) {
	return 0, nil
}

func (s *stubDispatchRepo) ListByCandidate(_ context.Context, _ string) ([]domain.DispatchRecord, error) {
	return nil, nil
}

type stubLimiter struct {
	allowed bool
	err     error
}

func (s *stubLimiter) Allow(_ context.Context, _ string) (bool, error) {
	return s.allowed, s.err
}

func (s *stubLimiter) Wait(_ context.Context, _ string) error { return s.err }

func today() string {
	return time.Now().UTC().Format(domain.DayKey)
}

func newTestGuard(t *testing.T, repo *stubDispatchRepo, limiter *stubLimiter, dailyCap, lifetime int) *Guard {
	t.Helper()
	guard, err := NewGuard(repo, limiter, dailyCap, lifetime, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return guard
}

func TestCanSend_Verdicts(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		setup    func(*stubDispatchRepo, *stubLimiter)
		lifetime int
		allowed  bool
		reason   SkipReason
	}{
		{
			name:    "fresh candidate allowed",
			setup:   func(_ *stubDispatchRepo, l *stubLimiter) { l.allowed = true },
			allowed: true,
		},
		{
			name: "already sent today",
			setup: func(r *stubDispatchRepo, l *stubLimiter) {
				l.allowed = true
				r.sent["cand-1|payment_overdue|"+today()] = true
			},
			reason: SkipDuplicateToday,
		},
		{
			name: "daily cap reached",
			setup: func(r *stubDispatchRepo, l *stubLimiter) {
				l.allowed = true
				r.rateState = &domain.RateState{
					CandidateID:    "cand-1",
					SentTodayCount: 3,
					LastSentOn:     today(),
				}
			},
			reason: SkipDailyCap,
		},
		{
			name: "stale today count rolls over",
			setup: func(r *stubDispatchRepo, l *stubLimiter) {
				l.allowed = true
				r.rateState = &domain.RateState{
					CandidateID:    "cand-1",
					SentTodayCount: 3,
					LastSentOn:     "2020-01-01",
				}
			},
			allowed: true,
		},
		{
			name: "lifetime ceiling reached",
			setup: func(r *stubDispatchRepo, l *stubLimiter) {
				l.allowed = true
				r.rateState = &domain.RateState{
					CandidateID:        "cand-1",
					RemindersSentTotal: 50,
				}
			},
			lifetime: 50,
			reason:   SkipLifetimeCap,
		},
		{
			name:   "tenant throttled",
			setup:  func(_ *stubDispatchRepo, l *stubLimiter) { l.allowed = false },
			reason: SkipTenantThrottled,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := newStubDispatchRepo()
			limiter := &stubLimiter{}
			tc.setup(repo, limiter)

			guard := newTestGuard(t, repo, limiter, 3, tc.lifetime)
			verdict, err := guard.CanSend(context.Background(), "tenant-1", "cand-1", "payment_overdue")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if verdict.Allowed != tc.allowed {
				t.Fatalf("allowed=%v, want=%v", verdict.Allowed, tc.allowed)
			}
			if verdict.Reason != tc.reason {
				t.Fatalf("reason=%q, want=%q", verdict.Reason, tc.reason)
			}
		})
	}
}

func TestRecordAttempt_BuildsRecord(t *testing.T) {
	t.Parallel()

	repo := newStubDispatchRepo()
	guard := newTestGuard(t, repo, &stubLimiter{allowed: true}, 3, 0)

	record, err := guard.RecordAttempt(context.Background(), AttemptRequest{
		TenantID:     "tenant-1",
		CandidateID:  "cand-1",
		RuleID:       "rule-1",
		ReminderType: "payment_overdue",
		Channel:      domain.ChannelEmail,
		Outcome:      domain.OutcomeSent,
		AttemptCount: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.ID == "" {
		t.Fatal("record id must be assigned")
	}
	if record.DispatchedOn != today() {
		t.Fatalf("day=%q, want=%q", record.DispatchedOn, today())
	}
	if record.AttemptCount != 2 {
		t.Fatalf("attempts=%d, want=2", record.AttemptCount)
	}
	if len(repo.records) != 1 {
		t.Fatalf("records=%d, want=1", len(repo.records))
	}
}

func TestRecordAttempt_RaceLoserReRecorded(t *testing.T) {
	t.Parallel()

	repo := newStubDispatchRepo()
	repo.recordErrs = []error{domain.ErrDuplicateDispatch}
	guard := newTestGuard(t, repo, &stubLimiter{allowed: true}, 3, 0)

	record, err := guard.RecordAttempt(context.Background(), AttemptRequest{
		TenantID:     "tenant-1",
		CandidateID:  "cand-1",
		RuleID:       "rule-1",
		ReminderType: "payment_overdue",
		Channel:      domain.ChannelEmail,
		Outcome:      domain.OutcomeSent,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Outcome != domain.OutcomeSkippedRateLimited {
		t.Fatalf("outcome=%s, want=%s", record.Outcome, domain.OutcomeSkippedRateLimited)
	}
	if record.Error == nil {
		t.Fatal("race loser record must carry the duplicate error")
	}
	if len(repo.records) != 1 {
		t.Fatalf("records=%d, want=1", len(repo.records))
	}
}

func TestRecordAttempt_OtherErrorsPropagate(t *testing.T) {
	t.Parallel()

	repo := newStubDispatchRepo()
	repo.recordErrs = []error{errors.New("db down")}
	guard := newTestGuard(t, repo, &stubLimiter{allowed: true}, 3, 0)

	_, err := guard.RecordAttempt(context.Background(), AttemptRequest{
		TenantID:     "tenant-1",
		CandidateID:  "cand-1",
		RuleID:       "rule-1",
		ReminderType: "payment_overdue",
		Channel:      domain.ChannelEmail,
		Outcome:      domain.OutcomeFailed,
	})
	if err == nil {
		t.Fatal("expected storage error to propagate")
	}
}
