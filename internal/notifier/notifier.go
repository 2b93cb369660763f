package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/nioasoft/reminder-engine/internal/domain"
)

// Notifier is the outbound reminder delivery port. The actual transport
// (email/SMS/push) and message body rendering live behind it; the engine only
// supplies a message key and parameter bag.
type Notifier interface {
	Send(ctx context.Context, req Request) (*Receipt, error)
}

// Request identifies one reminder to deliver.
type Request struct {
	TenantID     string              `json:"tenantId"`
	CandidateID  string              `json:"candidateId"`
	ReminderType domain.ReminderType `json:"reminderType"`
	Channel      domain.Channel      `json:"channel"`
	Params       map[string]string   `json:"params,omitempty"`
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.TenantID) == "" {
		return fmt.Errorf("%w: tenant id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(r.CandidateID) == "" {
		return fmt.Errorf("%w: candidate id is required", domain.ErrValidation)
	}
	if !r.ReminderType.IsValid() {
		return fmt.Errorf("%w: reminder type is required", domain.ErrValidation)
	}
	if !r.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, r.Channel)
	}
	return nil
}

// Receipt stores transport call metadata for audit.
type Receipt struct {
	StatusCode int
	Body       string
	MessageID  string
}
