package repository

import (
	"context"

	"github.com/nioasoft/reminder-engine/internal/domain"
	"gorm.io/gorm"
)

// RuleStore is the read-only port into the rule configuration surface.
type RuleStore interface {
	// GetActiveRules returns a tenant's active rules sorted ascending by
	// priority, ties broken by creation order. Rules whose stored condition
	// shape cannot be decoded are returned flagged malformed so the matcher
	// can warn and skip them without aborting the scan.
	GetActiveRules(ctx context.Context, tenantID string) ([]domain.Rule, error)
}

type GormRuleStore struct {
	db *gorm.DB
}

func NewGormRuleStore(db *gorm.DB) *GormRuleStore {
	return &GormRuleStore{db: db}
}

func (r *GormRuleStore) GetActiveRules(ctx context.Context, tenantID string) ([]domain.Rule, error) {
	var models []RuleModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Order("priority ASC, created_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	rules := make([]domain.Rule, 0, len(models))
	for i := range models {
		rules = append(rules, ruleModelToDomain(&models[i]))
	}

	return rules, nil
}

func ruleModelToDomain(m *RuleModel) domain.Rule {
	rule := domain.Rule{
		ID:           m.ID,
		TenantID:     m.TenantID,
		Priority:     m.Priority,
		Active:       m.Active,
		ReminderType: domain.ReminderType(m.ReminderType),
		CreatedAt:    m.CreatedAt,
	}

	channel, err := domain.ParseChannel(m.ChannelHint)
	if err != nil {
		rule.MalformedReason = err.Error()
		return rule
	}
	rule.ChannelHint = channel

	clauses, err := decodeConditions(m.Conditions)
	if err != nil {
		rule.MalformedReason = err.Error()
		return rule
	}
	rule.Conditions = clauses

	return rule
}
