// Package match implements pure first-match-wins rule evaluation. It has no
// I/O: callers supply the active, priority-sorted rule snapshot and a feature
// set captured against a single per-run clock.
package match

import (
	"errors"

	"github.com/nioasoft/reminder-engine/internal/domain"
	"go.uber.org/zap"
)

// Matcher evaluates rules against candidate feature snapshots. The zero
// dependency on storage keeps matching safe to run across candidates in
// parallel.
type Matcher struct {
	logger *zap.Logger
}

func NewMatcher(logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{logger: logger}
}

// Match returns the first rule whose conditions all hold for the candidate.
// Rules must already be filtered to active and sorted ascending by priority
// (ties broken by creation order); the matcher does not re-sort or re-filter.
// A malformed rule or one referencing an unknown field is treated as
// never-matching and logged as a configuration warning; it never aborts
// evaluation of the remaining rules. Zero matches returns nil, false.
func (m *Matcher) Match(features *domain.FeatureSet, rules []domain.Rule) (*domain.Rule, bool) {
	if features == nil || features.Candidate == nil {
		return nil, false
	}

	for i := range rules {
		rule := &rules[i]
		if rule.Malformed() {
			m.logger.Warn("skipping malformed rule",
				zap.String("ruleId", rule.ID),
				zap.String("tenantId", rule.TenantID),
				zap.String("reason", rule.MalformedReason),
			)
			continue
		}

		matched, err := domain.EvalAll(rule.Conditions, features)
		if err != nil {
			if errors.Is(err, domain.ErrUnknownField) || errors.Is(err, domain.ErrMalformedCondition) {
				m.logger.Warn("rule condition references unknown shape, treating as never-matching",
					zap.String("ruleId", rule.ID),
					zap.String("tenantId", rule.TenantID),
					zap.Error(err),
				)
				continue
			}
			m.logger.Warn("rule evaluation failed, skipping rule",
				zap.String("ruleId", rule.ID),
				zap.Error(err),
			)
			continue
		}

		if matched {
			return rule, true
		}
	}

	return nil, false
}
