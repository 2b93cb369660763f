package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClauseOp enumerates the closed set of condition operators. Conditions are
// stored as a flexible key-value structure by the configuration surface and
// decoded into this typed form once at rule read time; unknown shapes are
// flagged rather than evaluated.
type ClauseOp string

const (
	OpDaysSince ClauseOp = "days_since"
	OpStatusIn  ClauseOp = "status_in"
	OpIsNull    ClauseOp = "is_null"
	OpNotNull   ClauseOp = "not_null"
	OpEquals    ClauseOp = "equals"
)

func (o ClauseOp) IsValid() bool {
	switch o {
	case OpDaysSince, OpStatusIn, OpIsNull, OpNotNull, OpEquals:
		return true
	}
	return false
}

// Candidate fields conditions may reference.
const (
	FieldStatus          = "status"
	FieldCreatedAt       = "created_at"
	FieldLastEventAt     = "last_event_at"
	FieldSelectedChannel = "selected_channel"
	FieldOpened          = "opened"
	FieldCompleted       = "completed"
)

// Clause is one predicate over a candidate's derived features. All clauses of
// a rule are combined by implicit AND.
type Clause struct {
	Op       ClauseOp
	Field    string
	Days     int
	Statuses []CandidateStatus
	Value    string
}

// FeatureSet is a candidate's feature snapshot taken against a single "now"
// captured once per scan, so every candidate in the same run sees a
// consistent clock. Evaluation is pure and safe to run in parallel.
type FeatureSet struct {
	Now       time.Time
	Candidate *Candidate
}

func NewFeatureSet(c *Candidate, now time.Time) *FeatureSet {
	return &FeatureSet{Now: now.UTC(), Candidate: c}
}

// DaysSince returns the number of whole 24h periods elapsed since the named
// timestamp field. The second return is false when the field is null.
func (f *FeatureSet) DaysSince(field string) (int, bool, error) {
	var at *time.Time
	switch field {
	case FieldCreatedAt:
		created := f.Candidate.CreatedAt
		if !created.IsZero() {
			at = &created
		}
	case FieldLastEventAt:
		at = f.Candidate.LastEventAt
	default:
		return 0, false, fmt.Errorf("%w: %q is not a timestamp field", ErrUnknownField, field)
	}

	if at == nil || at.IsZero() {
		return 0, false, nil
	}

	elapsed := f.Now.Sub(at.UTC())
	if elapsed < 0 {
		return 0, true, nil
	}
	return int(elapsed.Hours() / 24), true, nil
}

// FieldString returns the string form of a candidate field for equality and
// null checks. The second return is false when the field is null.
func (f *FeatureSet) FieldString(field string) (string, bool, error) {
	c := f.Candidate
	switch field {
	case FieldStatus:
		return c.Status.String(), true, nil
	case FieldSelectedChannel:
		if c.SelectedChannel == nil {
			return "", false, nil
		}
		return c.SelectedChannel.String(), true, nil
	case FieldOpened:
		return strconv.FormatBool(c.Opened), true, nil
	case FieldCompleted:
		return strconv.FormatBool(c.Completed), true, nil
	case FieldCreatedAt:
		if c.CreatedAt.IsZero() {
			return "", false, nil
		}
		return c.CreatedAt.UTC().Format(time.RFC3339), true, nil
	case FieldLastEventAt:
		if c.LastEventAt == nil || c.LastEventAt.IsZero() {
			return "", false, nil
		}
		return c.LastEventAt.UTC().Format(time.RFC3339), true, nil
	}
	return "", false, fmt.Errorf("%w: %q", ErrUnknownField, field)
}

// Eval evaluates a single clause against the feature snapshot. An unknown
// field or operator returns an error so the owning rule can be treated as
// never-matching without aborting the scan.
func (cl Clause) Eval(f *FeatureSet) (bool, error) {
	switch cl.Op {
	case OpDaysSince:
		days, present, err := f.DaysSince(cl.Field)
		if err != nil {
			return false, err
		}
		if !present {
			return false, nil
		}
		return days >= cl.Days, nil

	case OpStatusIn:
		for _, s := range cl.Statuses {
			if f.Candidate.Status == s {
				return true, nil
			}
		}
		return false, nil

	case OpIsNull:
		_, present, err := f.FieldString(cl.Field)
		if err != nil {
			return false, err
		}
		return !present, nil

	case OpNotNull:
		_, present, err := f.FieldString(cl.Field)
		if err != nil {
			return false, err
		}
		return present, nil

	case OpEquals:
		value, present, err := f.FieldString(cl.Field)
		if err != nil {
			return false, err
		}
		if !present {
			return false, nil
		}
		return strings.EqualFold(value, strings.TrimSpace(cl.Value)), nil
	}

	return false, fmt.Errorf("%w: unsupported operator %q", ErrMalformedCondition, cl.Op)
}

// EvalAll evaluates every clause with implicit AND. Zero clauses never match:
// a rule without conditions would otherwise fire for every candidate, which
// is always a configuration mistake.
func EvalAll(clauses []Clause, f *FeatureSet) (bool, error) {
	if len(clauses) == 0 {
		return false, nil
	}
	for _, cl := range clauses {
		ok, err := cl.Eval(f)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
