package domain

import (
	"fmt"
	"strings"
	"time"
)

// CandidateStatus represents the lifecycle state of an outstanding obligation.
type CandidateStatus string

const (
	StatusOpen     CandidateStatus = "OPEN"
	StatusPartial  CandidateStatus = "PARTIAL"
	StatusOverdue  CandidateStatus = "OVERDUE"
	StatusClosed   CandidateStatus = "CLOSED"
	StatusDisputed CandidateStatus = "DISPUTED"
)

func (s CandidateStatus) String() string { return string(s) }

func (s CandidateStatus) IsValid() bool {
	switch s {
	case StatusOpen, StatusPartial, StatusOverdue, StatusClosed, StatusDisputed:
		return true
	}
	return false
}

func ParseCandidateStatus(s string) (CandidateStatus, error) {
	st := CandidateStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid candidate status %q", ErrValidation, s)
	}
	return st, nil
}

// Candidate is an outstanding obligation eligible for reminder evaluation.
// It is owned by external subsystems; the engine treats it as read-only input.
type Candidate struct {
	ID              string          `gorm:"type:uuid;primaryKey"`
	TenantID        string          `gorm:"type:uuid;not null"`
	Status          CandidateStatus `gorm:"type:varchar(20);not null"`
	SelectedChannel *Channel        `gorm:"type:varchar(10)"`
	Opened          bool            `gorm:"not null;default:false"`
	Completed       bool            `gorm:"not null;default:false"`
	CreatedAt       time.Time
	LastEventAt     *time.Time
}

func (c *Candidate) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: candidate id is required", ErrValidation)
	}
	if strings.TrimSpace(c.TenantID) == "" {
		return fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("%w: invalid candidate status %q", ErrValidation, c.Status)
	}
	if c.SelectedChannel != nil && !c.SelectedChannel.IsValid() {
		return fmt.Errorf("%w: invalid selected channel %q", ErrValidation, *c.SelectedChannel)
	}
	if c.CreatedAt.IsZero() {
		return fmt.Errorf("%w: created_at is required", ErrValidation)
	}
	return nil
}
