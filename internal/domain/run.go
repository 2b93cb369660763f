package domain

import "time"

// TenantRunState records the outcome of the most recent scan for a tenant.
// The scheduler uses it to detect stuck or repeatedly failing tenants; the
// cursor supports resuming a run stopped by its wall-clock budget. Dedup on
// dispatch record keys makes re-runs after a crash safe.
type TenantRunState struct {
	TenantID           string `gorm:"type:uuid;primaryKey"`
	LastRunStartedAt   time.Time
	LastRunCompletedAt *time.Time
	LastError          *string `gorm:"type:text"`
	CandidatesScanned  int     `gorm:"not null;default:0"`
	CandidatesSkipped  int     `gorm:"not null;default:0"`
	DispatchesSent     int     `gorm:"not null;default:0"`
	DispatchesFailed   int     `gorm:"not null;default:0"`
	Cursor             string  `gorm:"type:varchar(64)"`
	UpdatedAt          time.Time
}

// Completed reports whether the last run finished its full candidate stream.
func (s *TenantRunState) Completed() bool {
	return s != nil && s.LastRunCompletedAt != nil && s.Cursor == ""
}

// TickSummary aggregates one scheduler tick across all tenants.
type TickSummary struct {
	TenantsRun     int
	TenantsFailed  int
	TenantsSkipped int
	Started        time.Time
	Finished       time.Time
}

// PartialFailure reports whether some tenants failed while others succeeded.
func (t TickSummary) PartialFailure() bool {
	return t.TenantsFailed > 0
}
