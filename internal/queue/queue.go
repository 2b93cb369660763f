// Package queue publishes staff-facing summary alerts to the message broker.
// Internal staff tooling consumes the alerts queue; the engine only produces.
package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/nioasoft/reminder-engine/internal/domain"
)

// StaffAlertQueue is the durable queue internal staff tooling consumes.
const StaffAlertQueue = "alerts.staff"

// Publisher publishes alert messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg AlertMessage) error
	Close() error
}

// AlertMessage is the broker payload for one staff alert.
type AlertMessage struct {
	AlertID   string               `json:"alertId"`
	TenantID  string               `json:"tenantId"`
	Category  domain.AlertCategory `json:"category"`
	AlertedOn string               `json:"alertedOn"`
	Count     int                  `json:"count"`
	Threshold int                  `json:"threshold"`
}

func (m AlertMessage) Validate() error {
	if strings.TrimSpace(m.AlertID) == "" {
		return fmt.Errorf("alertId is required")
	}
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("tenantId is required")
	}
	if !m.Category.IsValid() {
		return fmt.Errorf("invalid alert category %q", m.Category)
	}
	if strings.TrimSpace(m.AlertedOn) == "" {
		return fmt.Errorf("alertedOn is required")
	}
	return nil
}

// FromAlert builds the broker payload for a persisted alert.
func FromAlert(a *domain.Alert) AlertMessage {
	return AlertMessage{
		AlertID:   a.ID,
		TenantID:  a.TenantID,
		Category:  a.Category,
		AlertedOn: a.AlertedOn,
		Count:     a.Count,
		Threshold: a.Threshold,
	}
}
