package domain

import "time"

// Outcome represents the result of one dispatch attempt group.
type Outcome string

const (
	OutcomeSent               Outcome = "SENT"
	OutcomeFailed             Outcome = "FAILED"
	OutcomeSkippedRateLimited Outcome = "SKIPPED_RATE_LIMITED"
)

func (o Outcome) String() string { return string(o) }

func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeSent, OutcomeFailed, OutcomeSkippedRateLimited:
		return true
	}
	return false
}

// DayKey is the date-granular dedup key format for dispatch records.
const DayKey = "2006-01-02"

// DispatchRecord is the append-only audit record of one reminder dispatch.
// For a given (candidate, reminder type, calendar day) at most one SENT
// record exists; a retry creates a new record, never an edit.
type DispatchRecord struct {
	ID             string       `gorm:"type:uuid;primaryKey"`
	CandidateID    string       `gorm:"type:uuid;not null"`
	RuleID         string       `gorm:"type:uuid;not null"`
	TenantID       string       `gorm:"type:uuid;not null"`
	ReminderType   ReminderType `gorm:"type:varchar(64);not null"`
	Channel        Channel      `gorm:"type:varchar(10);not null"`
	DispatchedOn   string       `gorm:"type:varchar(10);not null"`
	DispatchedAt   time.Time    `gorm:"not null"`
	SequenceNumber int          `gorm:"not null;default:0"`
	Outcome        Outcome      `gorm:"type:varchar(24);not null"`
	AttemptCount   int          `gorm:"not null;default:1"`
	Error          *string      `gorm:"type:text"`
}

// RateState is the derived per-candidate view over the dispatch record log.
// Created lazily on first dispatch attempt, never deleted. sent_today_count
// rolls over when last_sent_on moves to a new calendar day.
type RateState struct {
	CandidateID        string `gorm:"type:uuid;primaryKey"`
	TenantID           string `gorm:"type:uuid;not null"`
	RemindersSentTotal int    `gorm:"not null;default:0"`
	SentTodayCount     int    `gorm:"not null;default:0"`
	LastSentOn         string `gorm:"type:varchar(10)"`
	LastSentAt         *time.Time
}

// SentToday returns the today-count normalized against the given day key.
func (rs *RateState) SentToday(day string) int {
	if rs == nil || rs.LastSentOn != day {
		return 0
	}
	return rs.SentTodayCount
}
