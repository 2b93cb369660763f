package domain

import (
	"fmt"
	"strings"
	"time"
)

// Channel represents the delivery channel for a reminder.
type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
	ChannelPush  Channel = "PUSH"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelSMS, ChannelEmail, ChannelPush:
		return true
	}
	return false
}

func ParseChannel(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// ReminderType identifies what kind of reminder a rule fires. The set is open:
// tenants define their own types through the configuration surface, so the
// engine only requires a non-empty identifier.
type ReminderType string

func (r ReminderType) String() string { return string(r) }

func (r ReminderType) IsValid() bool {
	return strings.TrimSpace(string(r)) != ""
}

// Rule is a tenant-scoped, priority-ordered condition-action pair. Rules are
// created by an external configuration surface; the engine only reads them.
// Within a tenant, rules are evaluated ascending by priority and the first
// match wins.
type Rule struct {
	ID           string
	TenantID     string
	Priority     int
	Active       bool
	Conditions   []Clause
	ReminderType ReminderType
	ChannelHint  Channel
	CreatedAt    time.Time

	// MalformedReason is set when the stored condition shape could not be
	// decoded. A malformed rule never matches; the matcher logs it as a
	// configuration warning and continues.
	MalformedReason string
}

func (r *Rule) Malformed() bool { return r.MalformedReason != "" }

func (r *Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: rule id is required", ErrValidation)
	}
	if strings.TrimSpace(r.TenantID) == "" {
		return fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if !r.ReminderType.IsValid() {
		return fmt.Errorf("%w: reminder type is required", ErrValidation)
	}
	if !r.ChannelHint.IsValid() {
		return fmt.Errorf("%w: invalid channel hint %q", ErrValidation, r.ChannelHint)
	}
	return nil
}

// DispatchChannel resolves the channel for a candidate: the candidate's
// previously selected channel wins over the rule's default.
func (r *Rule) DispatchChannel(c *Candidate) Channel {
	if c != nil && c.SelectedChannel != nil && c.SelectedChannel.IsValid() {
		return *c.SelectedChannel
	}
	return r.ChannelHint
}
