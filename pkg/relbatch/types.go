package relbatch

import (
	"github.com/rzpsarthak13/relbatch/internal/batch"
	"github.com/rzpsarthak13/relbatch/internal/client"
	"github.com/rzpsarthak13/relbatch/internal/core"
	"github.com/rzpsarthak13/relbatch/internal/database"
	"github.com/rzpsarthak13/relbatch/internal/events"
)

// Spec describes a table: its columns, primary key, auto-increment column,
// validation rules and relations to child tables.
type Spec = core.Spec

// Column is the metadata of one table column.
type Column = core.Column

// Relation declares a nested child collection carried under a body key.
type Relation = core.Relation

// Rule is a validation rule attached to a spec.
type Rule = core.Rule

// DeletePolicy decides what happens to stored children when a relation is
// rewritten.
type DeletePolicy = core.DeletePolicy

// DeleteCallback deletes children itself.
type DeleteCallback = core.DeleteCallback

// Raw is an SQL fragment inlined into a statement, with its own :name params.
type Raw = core.Raw

// JSON is a value stored in a JSON column.
type JSON = core.JSON

// MutationEvent describes one successful mutating statement.
type MutationEvent = core.MutationEvent

// Handler receives mutation events.
type Handler = events.Handler

// Result reports the rows written by Create and Update.
type Result = client.Result

// Mode is the verb of a multi-row insert.
type Mode = batch.Mode

// Insert modes.
const (
	ModeInsert       = batch.ModeInsert
	ModeReplace      = batch.ModeReplace
	ModeInsertIgnore = batch.ModeInsertIgnore
)

// Mutation event operations.
const (
	OperationInsert = core.OperationInsert
	OperationUpsert = core.OperationUpsert
	OperationUpdate = core.OperationUpdate
	OperationDelete = core.OperationDelete
)

// Errors reported by the client. Match them with errors.Is.
var (
	ErrValidation      = core.ErrValidation
	ErrInvalidArgument = core.ErrInvalidArgument
	ErrPersistence     = core.ErrPersistence
	ErrSpecNotFound    = core.ErrSpecNotFound
	ErrClosed          = client.ErrClosed
	ErrEventsDisabled  = client.ErrEventsDisabled
)

// ValidationError lists every row that failed validation.
type ValidationError = core.ValidationError

// InvalidArgumentError reports a malformed body.
type InvalidArgumentError = core.InvalidArgumentError

// PersistenceError wraps a driver error with the table and operation.
type PersistenceError = core.PersistenceError

// NoDelete keeps stored children when a relation is rewritten.
func NoDelete() DeletePolicy { return core.NoDelete() }

// DeleteWhere deletes the stored children linked to the parent, narrowed by cond.
func DeleteWhere(cond map[string]any) DeletePolicy { return core.DeleteWhere(cond) }

// DeleteWith hands the new children to fn, which deletes what it sees fit.
func DeleteWith(fn DeleteCallback) DeletePolicy { return core.DeleteWith(fn) }

// NewRaw creates an SQL fragment with named params.
func NewRaw(sql string, params map[string]any) Raw { return core.NewRaw(sql, params) }

// NewJSON wraps payload for a JSON column.
func NewJSON(payload any) JSON { return core.NewJSON(payload) }

// IsValidationError reports whether err is a validation failure.
func IsValidationError(err error) bool { return core.IsValidationError(err) }

// IsInvalidArgument reports whether err is a malformed-input failure.
func IsInvalidArgument(err error) bool { return core.IsInvalidArgument(err) }

// IsPersistenceError reports whether err came from the database.
func IsPersistenceError(err error) bool { return core.IsPersistenceError(err) }

// IsUniqueConstraintError reports whether err is a duplicate key violation.
func IsUniqueConstraintError(err error) bool { return database.IsUniqueConstraintError(err) }

// IsForeignKeyConstraintError reports whether err is a foreign key violation.
func IsForeignKeyConstraintError(err error) bool { return database.IsForeignKeyConstraintError(err) }
