package domain

import (
	"fmt"
	"strings"
	"time"
)

// AlertCategory classifies staff-facing summary alerts. These are distinct
// from per-candidate reminders: they are not subject to the per-candidate
// rate limiter, only deduplicated once per calendar day per tenant per
// category.
type AlertCategory string

const (
	AlertOverdueBacklog   AlertCategory = "OVERDUE_BACKLOG"
	AlertStaleOpen        AlertCategory = "STALE_OPEN"
	AlertDisputedBacklog  AlertCategory = "DISPUTED_BACKLOG"
	AlertDispatchFailures AlertCategory = "DISPATCH_FAILURES"
	AlertMalformedRules   AlertCategory = "MALFORMED_RULES"
)

func (c AlertCategory) String() string { return string(c) }

func (c AlertCategory) IsValid() bool {
	switch c {
	case AlertOverdueBacklog, AlertStaleOpen, AlertDisputedBacklog,
		AlertDispatchFailures, AlertMalformedRules:
		return true
	}
	return false
}

// Alert is one staff-facing summary alert produced by the alert monitor.
type Alert struct {
	ID        string        `gorm:"type:uuid;primaryKey"`
	TenantID  string        `gorm:"type:uuid;not null"`
	Category  AlertCategory `gorm:"type:varchar(32);not null"`
	AlertedOn string        `gorm:"type:varchar(10);not null"`
	Count     int           `gorm:"not null"`
	Threshold int           `gorm:"not null"`
	CreatedAt time.Time
}

func (a *Alert) Validate() error {
	if strings.TrimSpace(a.TenantID) == "" {
		return fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if !a.Category.IsValid() {
		return fmt.Errorf("%w: invalid alert category %q", ErrValidation, a.Category)
	}
	if a.AlertedOn == "" {
		return fmt.Errorf("%w: alerted_on is required", ErrValidation)
	}
	return nil
}
