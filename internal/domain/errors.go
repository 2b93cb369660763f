package domain

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input data.
	ErrValidation = errors.New("validation error")

	// ErrConflict indicates the operation conflicts with current record state.
	ErrConflict = errors.New("conflict")

	// ErrDuplicateDispatch indicates a sent record already exists for the
	// (candidate, reminder type, day) dedup key.
	ErrDuplicateDispatch = errors.New("duplicate dispatch")

	// ErrUnknownField indicates a condition references a field the engine
	// does not derive from candidates.
	ErrUnknownField = errors.New("unknown condition field")

	// ErrMalformedCondition indicates a rule's stored condition shape could
	// not be decoded into the closed clause set.
	ErrMalformedCondition = errors.New("malformed condition")
)
