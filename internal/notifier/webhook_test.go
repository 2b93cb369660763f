package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nioasoft/reminder-engine/internal/domain"
)

func validRequest() Request {
	return Request{
		TenantID:     "tenant-1",
		CandidateID:  "cand-1",
		ReminderType: "payment_overdue",
		Channel:      domain.ChannelEmail,
		Params:       map[string]string{"status": "OVERDUE"},
	}
}

func TestWebhookNotifier_Send_Success(t *testing.T) {
	t.Parallel()

	var received Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method=%s, want=POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("X-Request-ID", "req-42")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(server.URL, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	receipt, err := notifier.Send(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.StatusCode != http.StatusAccepted {
		t.Fatalf("status=%d, want=%d", receipt.StatusCode, http.StatusAccepted)
	}
	if receipt.MessageID != "req-42" {
		t.Fatalf("messageId=%q, want=req-42", receipt.MessageID)
	}
	if received.CandidateID != "cand-1" {
		t.Fatalf("payload candidateId=%q, want=cand-1", received.CandidateID)
	}
}

func TestWebhookNotifier_Send_StatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		status    int
		transient bool
	}{
		{name: "rate limited is transient", status: http.StatusTooManyRequests, transient: true},
		{name: "server error is transient", status: http.StatusBadGateway, transient: true},
		{name: "bad request is permanent", status: http.StatusBadRequest, transient: false},
		{name: "not found is permanent", status: http.StatusNotFound, transient: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			notifier, err := NewWebhookNotifier(server.URL, time.Second)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			_, err = notifier.Send(context.Background(), validRequest())
			if err == nil {
				t.Fatal("expected error")
			}

			var notifierErr *NotifierError
			if !errors.As(err, &notifierErr) {
				t.Fatalf("err type=%T, want *NotifierError", err)
			}
			if notifierErr.StatusCode != tc.status {
				t.Fatalf("status=%d, want=%d", notifierErr.StatusCode, tc.status)
			}
			if IsTransient(err) != tc.transient {
				t.Fatalf("transient=%v, want=%v", IsTransient(err), tc.transient)
			}
		})
	}
}

func TestWebhookNotifier_Send_InvalidRequest(t *testing.T) {
	t.Parallel()

	notifier, err := NewWebhookNotifier("http://localhost:0", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := validRequest()
	req.CandidateID = ""

	_, err = notifier.Send(context.Background(), req)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if IsTransient(err) {
		t.Fatal("validation failure must be permanent")
	}
}

func TestWebhookNotifier_Send_CanceledContext(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(server.URL, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = notifier.Send(ctx, validRequest())
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
	if IsTransient(err) {
		t.Fatal("canceled context must not be retried")
	}
}

func TestNewWebhookNotifier_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewWebhookNotifier("", time.Second); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
	if _, err := NewWebhookNotifier("not a url", time.Second); err == nil {
		t.Fatal("expected error for invalid endpoint")
	}
}
