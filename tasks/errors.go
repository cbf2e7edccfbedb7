package tasks

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound covers both missing and inaccessible records so callers
	// cannot probe for tasks they are not allowed to see.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the record is visible but the caller lacks the
	// role or ownership needed for the operation.
	ErrForbidden = errors.New("permission denied")
	// ErrInvalidInput is the target of every *ValidationError.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict is returned when a task changed between load and save.
	ErrConflict = errors.New("task was modified concurrently")
)

// FieldViolation describes one rejected field.
type FieldViolation struct {
	Field string      `json:"field"`
	Rule  string      `json:"rule"`
	Value interface{} `json:"value,omitempty"`
}

// ValidationError is returned before anything is persisted.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("field '%s' failed rule '%s'", v.Field, v.Rule))
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is(err, ErrInvalidInput) match.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func invalidField(field, rule string, value interface{}) error {
	return &ValidationError{Violations: []FieldViolation{{Field: field, Rule: rule, Value: value}}}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}
