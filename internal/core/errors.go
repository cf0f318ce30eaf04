package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors matched with errors.Is.
var (
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("relbatch: validation failed")

	// ErrInvalidArgument is matched by every InvalidArgumentError.
	ErrInvalidArgument = errors.New("relbatch: invalid argument")

	// ErrPersistence is matched by every PersistenceError.
	ErrPersistence = errors.New("relbatch: persistence failed")

	// ErrSpecNotFound is returned when a spec name is not registered.
	ErrSpecNotFound = errors.New("relbatch: spec not found")
)

// RowError is the first validation message of one input row.
type RowError struct {
	Row     int
	Message string
}

// ValidationError aggregates the rows of a call that failed validation.
// It is raised before any SQL for the call is built.
type ValidationError struct {
	Table string
	Rows  []RowError
}

// Error returns the first message of every failed row, newline-joined.
func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Rows))
	for i, r := range e.Rows {
		msgs[i] = r.Message
	}
	return strings.Join(msgs, "\n")
}

// Is reports whether the target error matches ValidationError.
func (e *ValidationError) Is(err error) bool {
	return err == ErrValidation
}

// NewValidationError returns a ValidationError for table.
func NewValidationError(table string, rows []RowError) *ValidationError {
	return &ValidationError{Table: table, Rows: rows}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e) || errors.Is(err, ErrValidation)
}

// InvalidArgumentError reports a row whose reference column is missing or not a scalar.
type InvalidArgumentError struct {
	Row    int
	Column string
	Body   map[string]any
	Reason string
}

// Error returns the error string.
func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("relbatch: row %d: column %q %s: %s", e.Row, e.Column, e.Reason, formatBody(e.Body))
}

// Is reports whether the target error matches InvalidArgumentError.
func (e *InvalidArgumentError) Is(err error) bool {
	return err == ErrInvalidArgument
}

// NewInvalidArgumentError returns an InvalidArgumentError for one row.
func NewInvalidArgumentError(row int, column, reason string, body map[string]any) *InvalidArgumentError {
	return &InvalidArgumentError{Row: row, Column: column, Reason: reason, Body: body}
}

// IsInvalidArgument returns true if the error is an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	if err == nil {
		return false
	}
	var e *InvalidArgumentError
	return errors.As(err, &e) || errors.Is(err, ErrInvalidArgument)
}

// PersistenceError reports a single-row write that could not be carried out
// although the record validated.
type PersistenceError struct {
	Table string
	Op    string
	Err   error
}

// Error returns the error string.
func (e *PersistenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("relbatch: failed to %s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("relbatch: failed to %s %s", e.Op, e.Table)
}

// Unwrap returns the underlying error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches PersistenceError.
func (e *PersistenceError) Is(err error) bool {
	return err == ErrPersistence
}

// NewPersistenceError returns a PersistenceError for op on table.
func NewPersistenceError(table, op string, err error) *PersistenceError {
	return &PersistenceError{Table: table, Op: op, Err: err}
}

// IsPersistenceError returns true if the error is a PersistenceError.
func IsPersistenceError(err error) bool {
	if err == nil {
		return false
	}
	var e *PersistenceError
	return errors.As(err, &e) || errors.Is(err, ErrPersistence)
}

func formatBody(body map[string]any) string {
	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s:%v", k, body[k])
	}
	return "{" + strings.Join(parts, " ") + "}"
}
