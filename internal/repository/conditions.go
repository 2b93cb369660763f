package repository

import (
	"encoding/json"
	"fmt"

	"github.com/nioasoft/reminder-engine/internal/domain"
)

// clauseJSON is the stored wire shape of one rule condition clause. The
// configuration surface writes these; the engine decodes them into the typed
// clause set once per rule snapshot and flags anything it does not recognize
// instead of evaluating it.
type clauseJSON struct {
	Op       string   `json:"op"`
	Field    string   `json:"field,omitempty"`
	Days     int      `json:"days,omitempty"`
	Statuses []string `json:"statuses,omitempty"`
	Value    string   `json:"value,omitempty"`
}

var knownFields = map[string]struct{}{
	domain.FieldStatus:          {},
	domain.FieldCreatedAt:       {},
	domain.FieldLastEventAt:     {},
	domain.FieldSelectedChannel: {},
	domain.FieldOpened:          {},
	domain.FieldCompleted:       {},
}

func decodeConditions(raw []byte) ([]domain.Clause, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty conditions", domain.ErrMalformedCondition)
	}

	var shapes []clauseJSON
	if err := json.Unmarshal(raw, &shapes); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedCondition, err)
	}
	if len(shapes) == 0 {
		return nil, fmt.Errorf("%w: conditions array is empty", domain.ErrMalformedCondition)
	}

	clauses := make([]domain.Clause, 0, len(shapes))
	for i, shape := range shapes {
		clause, err := decodeClause(shape)
		if err != nil {
			return nil, fmt.Errorf("clause %d: %w", i, err)
		}
		clauses = append(clauses, clause)
	}

	return clauses, nil
}

func decodeClause(shape clauseJSON) (domain.Clause, error) {
	op := domain.ClauseOp(shape.Op)
	if !op.IsValid() {
		return domain.Clause{}, fmt.Errorf("%w: unknown operator %q", domain.ErrMalformedCondition, shape.Op)
	}

	switch op {
	case domain.OpDaysSince:
		if err := requireField(shape.Field); err != nil {
			return domain.Clause{}, err
		}
		if shape.Field != domain.FieldCreatedAt && shape.Field != domain.FieldLastEventAt {
			return domain.Clause{}, fmt.Errorf("%w: days_since requires a timestamp field, got %q",
				domain.ErrMalformedCondition, shape.Field)
		}
		if shape.Days < 0 {
			return domain.Clause{}, fmt.Errorf("%w: days must be non-negative", domain.ErrMalformedCondition)
		}
		return domain.Clause{Op: op, Field: shape.Field, Days: shape.Days}, nil

	case domain.OpStatusIn:
		if len(shape.Statuses) == 0 {
			return domain.Clause{}, fmt.Errorf("%w: status_in requires at least one status", domain.ErrMalformedCondition)
		}
		statuses := make([]domain.CandidateStatus, 0, len(shape.Statuses))
		for _, s := range shape.Statuses {
			status, err := domain.ParseCandidateStatus(s)
			if err != nil {
				return domain.Clause{}, fmt.Errorf("%w: %v", domain.ErrMalformedCondition, err)
			}
			statuses = append(statuses, status)
		}
		return domain.Clause{Op: op, Statuses: statuses}, nil

	case domain.OpIsNull, domain.OpNotNull:
		if err := requireField(shape.Field); err != nil {
			return domain.Clause{}, err
		}
		return domain.Clause{Op: op, Field: shape.Field}, nil

	case domain.OpEquals:
		if err := requireField(shape.Field); err != nil {
			return domain.Clause{}, err
		}
		if shape.Value == "" {
			return domain.Clause{}, fmt.Errorf("%w: equals requires a value", domain.ErrMalformedCondition)
		}
		return domain.Clause{Op: op, Field: shape.Field, Value: shape.Value}, nil
	}

	return domain.Clause{}, fmt.Errorf("%w: unsupported operator %q", domain.ErrMalformedCondition, shape.Op)
}

func requireField(field string) error {
	if field == "" {
		return fmt.Errorf("%w: field is required", domain.ErrMalformedCondition)
	}
	if _, ok := knownFields[field]; !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownField, field)
	}
	return nil
}
