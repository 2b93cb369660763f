package repository

import (
	"time"

	"github.com/nioasoft/reminder-engine/internal/domain"
)

// TenantModel is the persistence model for the tenants table. Tenants are
// provisioned externally; the engine only reads them.
type TenantModel struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"type:varchar(255);not null"`
	Active    bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
}

func (TenantModel) TableName() string { return "tenants" }

// RuleModel is the persistence model for the rules table. Conditions are a
// flexible JSONB shape owned by the configuration surface and decoded into
// the closed clause set at read time.
type RuleModel struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	TenantID     string `gorm:"type:uuid;not null"`
	Priority     int    `gorm:"not null"`
	Active       bool   `gorm:"not null;default:true"`
	Conditions   []byte `gorm:"type:jsonb;not null"`
	ReminderType string `gorm:"type:varchar(64);not null"`
	ChannelHint  string `gorm:"type:varchar(10);not null"`
	CreatedAt    time.Time
}

func (RuleModel) TableName() string { return "rules" }

// CandidateModel is the persistence model for the candidates table. Mutated
// by external payment/letter subsystems; read-only here.
type CandidateModel struct {
	ID              string  `gorm:"type:uuid;primaryKey"`
	TenantID        string  `gorm:"type:uuid;not null"`
	Status          string  `gorm:"type:varchar(20);not null"`
	SelectedChannel *string `gorm:"type:varchar(10)"`
	Opened          bool    `gorm:"not null;default:false"`
	Completed       bool    `gorm:"not null;default:false"`
	CreatedAt       time.Time
	LastEventAt     *time.Time
}

func (CandidateModel) TableName() string { return "candidates" }

// DispatchRecordModel is the persistence model for dispatch_records.
type DispatchRecordModel struct {
	ID             string    `gorm:"type:uuid;primaryKey"`
	CandidateID    string    `gorm:"type:uuid;not null"`
	RuleID         string    `gorm:"type:uuid;not null"`
	TenantID       string    `gorm:"type:uuid;not null"`
	ReminderType   string    `gorm:"type:varchar(64);not null"`
	Channel        string    `gorm:"type:varchar(10);not null"`
	DispatchedOn   string    `gorm:"type:varchar(10);not null"`
	DispatchedAt   time.Time `gorm:"not null"`
	SequenceNumber int       `gorm:"not null;default:0"`
	Outcome        string    `gorm:"type:varchar(24);not null"`
	AttemptCount   int       `gorm:"not null;default:1"`
	Error          *string   `gorm:"type:text"`
}

func (DispatchRecordModel) TableName() string { return "dispatch_records" }

// RateStateModel is the persistence model for rate_states.
type RateStateModel struct {
	CandidateID        string `gorm:"type:uuid;primaryKey"`
	TenantID           string `gorm:"type:uuid;not null"`
	RemindersSentTotal int    `gorm:"not null;default:0"`
	SentTodayCount     int    `gorm:"not null;default:0"`
	LastSentOn         string `gorm:"type:varchar(10)"`
	LastSentAt         *time.Time
}

func (RateStateModel) TableName() string { return "rate_states" }

// TenantRunStateModel is the persistence model for tenant_run_states.
type TenantRunStateModel struct {
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

func (TenantRunStateModel) TableName() string { return "tenant_run_states" }

// AlertModel is the persistence model for alert_records.
type AlertModel struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	TenantID  string `gorm:"type:uuid;not null"`
	Category  string `gorm:"type:varchar(32);not null"`
	AlertedOn string `gorm:"type:varchar(10);not null"`
	Count     int    `gorm:"not null"`
	Threshold int    `gorm:"not null"`
	CreatedAt time.Time
}

func (AlertModel) TableName() string { return "alert_records" }

func tenantModelToDomain(m *TenantModel) *domain.Tenant {
	if m == nil {
		return nil
	}
	return &domain.Tenant{
		ID:        m.ID,
		Name:      m.Name,
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
	}
}

func candidateModelToDomain(m *CandidateModel) (*domain.Candidate, error) {
	if m == nil {
		return nil, nil
	}

	status, err := domain.ParseCandidateStatus(m.Status)
	if err != nil {
		return nil, err
	}

	var channel *domain.Channel
	if m.SelectedChannel != nil && *m.SelectedChannel != "" {
		ch, err := domain.ParseChannel(*m.SelectedChannel)
		if err != nil {
			return nil, err
		}
		channel = &ch
	}

	return &domain.Candidate{
		ID:              m.ID,
		TenantID:        m.TenantID,
		Status:          status,
		SelectedChannel: channel,
		Opened:          m.Opened,
		Completed:       m.Completed,
		CreatedAt:       m.CreatedAt,
		LastEventAt:     m.LastEventAt,
	}, nil
}

func dispatchModelFromDomain(r *domain.DispatchRecord) *DispatchRecordModel {
	if r == nil {
		return nil
	}
	return &DispatchRecordModel{
		ID:             r.ID,
		CandidateID:    r.CandidateID,
		RuleID:         r.RuleID,
		TenantID:       r.TenantID,
		ReminderType:   r.ReminderType.String(),
		Channel:        r.Channel.String(),
		DispatchedOn:   r.DispatchedOn,
		DispatchedAt:   r.DispatchedAt,
		SequenceNumber: r.SequenceNumber,
		Outcome:        r.Outcome.String(),
		AttemptCount:   r.AttemptCount,
		Error:          r.Error,
	}
}

func dispatchModelToDomain(m *DispatchRecordModel) *domain.DispatchRecord {
	if m == nil {
		return nil
	}
	return &domain.DispatchRecord{
		ID:             m.ID,
		CandidateID:    m.CandidateID,
		RuleID:         m.RuleID,
		TenantID:       m.TenantID,
		ReminderType:   domain.ReminderType(m.ReminderType),
		Channel:        domain.Channel(m.Channel),
		DispatchedOn:   m.DispatchedOn,
		DispatchedAt:   m.DispatchedAt,
		SequenceNumber: m.SequenceNumber,
		Outcome:        domain.Outcome(m.Outcome),
		AttemptCount:   m.AttemptCount,
		Error:          m.Error,
	}
}

func rateStateModelToDomain(m *RateStateModel) *domain.RateState {
	if m == nil {
		return nil
	}
	return &domain.RateState{
		CandidateID:        m.CandidateID,
		TenantID:           m.TenantID,
		RemindersSentTotal: m.RemindersSentTotal,
		SentTodayCount:     m.SentTodayCount,
		LastSentOn:         m.LastSentOn,
		LastSentAt:         m.LastSentAt,
	}
}

func runStateModelFromDomain(s *domain.TenantRunState) *TenantRunStateModel {
	if s == nil {
		return nil
	}
	return &TenantRunStateModel{
		TenantID:           s.TenantID,
		LastRunStartedAt:   s.LastRunStartedAt,
		LastRunCompletedAt: s.LastRunCompletedAt,
		LastError:          s.LastError,
		CandidatesScanned:  s.CandidatesScanned,
		CandidatesSkipped:  s.CandidatesSkipped,
		DispatchesSent:     s.DispatchesSent,
		DispatchesFailed:   s.DispatchesFailed,
		Cursor:             s.Cursor,
		UpdatedAt:          s.UpdatedAt,
	}
}

func runStateModelToDomain(m *TenantRunStateModel) *domain.TenantRunState {
	if m == nil {
		return nil
	}
	return &domain.TenantRunState{
		TenantID:           m.TenantID,
		LastRunStartedAt:   m.LastRunStartedAt,
		LastRunCompletedAt: m.LastRunCompletedAt,
		LastError:          m.LastError,
		CandidatesScanned:  m.CandidatesScanned,
		CandidatesSkipped:  m.CandidatesSkipped,
		DispatchesSent:     m.DispatchesSent,
		DispatchesFailed:   m.DispatchesFailed,
		Cursor:             m.Cursor,
		UpdatedAt:          m.UpdatedAt,
	}
}

func alertModelFromDomain(a *domain.Alert) *AlertModel {
	if a == nil {
		return nil
	}
	return &AlertModel{
		ID:        a.ID,
		TenantID:  a.TenantID,
		Category:  a.Category.String(),
		AlertedOn: a.AlertedOn,
		Count:     a.Count,
		Threshold: a.Threshold,
		CreatedAt: a.CreatedAt,
	}
}
