// Package record implements the single-row record abstraction the batch
// builders and the cascade engine operate on.
package record

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/rzpsarthak13/relbatch/internal/core"
	"github.com/rzpsarthak13/relbatch/internal/query"
	"github.com/rzpsarthak13/relbatch/internal/schema"
)

// ErrNoPrimaryKey is wrapped in a PersistenceError when a record has no
// primary key values to target.
var ErrNoPrimaryKey = errors.New("record has no primary key values")

// Record is one row of a spec bound to a connection. It starts out new and
// becomes not-new once it has been persisted or seeded from a stored row.
type Record struct {
	spec      *core.Spec
	conn      core.Conn
	validator *schema.Validator

	attrs  map[string]any
	old    map[string]any
	isNew  bool
	errors map[string][]string
}

// New creates an empty new record of spec.
func New(spec *core.Spec, conn core.Conn) *Record {
	return &Record{
		spec:      spec,
		conn:      conn,
		validator: schema.NewValidator(spec),
		attrs:     make(map[string]any),
		isNew:     true,
	}
}

// Spec returns the record's spec.
func (r *Record) Spec() *core.Spec {
	return r.spec
}

// PrimaryKey returns the primary key attribute names.
func (r *Record) PrimaryKey() []string {
	return r.spec.PrimaryKey
}

// Load copies body values into the record. With declared columns only known
// attributes are taken; without, every key that is not a relation is.
// It reports whether any attribute was loaded.
func (r *Record) Load(body map[string]any) bool {
	loaded := false
	for k, v := range body {
		if !r.accepts(k) {
			continue
		}
		r.attrs[k] = v
		loaded = true
	}
	return loaded
}

func (r *Record) accepts(name string) bool {
	if len(r.spec.Columns) > 0 {
		_, ok := r.spec.Columns[name]
		return ok
	}
	return !r.spec.IsRelation(name) && !strings.Contains(strings.ToLower(name), "where")
}

// Attributes returns the names of the attributes set on the record, sorted.
func (r *Record) Attributes() []string {
	names := make([]string, 0, len(r.attrs))
	for k := range r.attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Get returns an attribute value, nil if unset.
func (r *Record) Get(name string) any {
	return r.attrs[name]
}

// Has reports whether the attribute is set, even to nil.
func (r *Record) Has(name string) bool {
	_, ok := r.attrs[name]
	return ok
}

// Set sets an attribute value.
func (r *Record) Set(name string, value any) {
	r.attrs[name] = value
}

// SetOldAttributes seeds the stored baseline from a persisted row and marks
// the record not-new. Attributes not yet set are filled from the baseline.
func (r *Record) SetOldAttributes(row map[string]any) {
	r.old = make(map[string]any, len(row))
	for k, v := range row {
		if !r.accepts(k) {
			continue
		}
		r.old[k] = v
		if _, ok := r.attrs[k]; !ok {
			r.attrs[k] = v
		}
	}
	r.isNew = false
}

// MarkNotNew flips the record to not-new.
func (r *Record) MarkNotNew() {
	r.isNew = false
}

// IsNew reports whether the record has not been persisted.
func (r *Record) IsNew() bool {
	return r.isNew
}

// Validate runs column constraints and rules. It reports whether the record is valid.
func (r *Record) Validate() bool {
	r.errors = r.validator.Validate(r.attrs, r.isNew)
	return len(r.errors) == 0
}

// HasErrors reports whether the last validation failed.
func (r *Record) HasErrors() bool {
	return len(r.errors) > 0
}

// FirstErrors returns the first error message of each failed attribute.
func (r *Record) FirstErrors() map[string]string {
	out := make(map[string]string, len(r.errors))
	for attr, msgs := range r.errors {
		if len(msgs) > 0 {
			out[attr] = msgs[0]
		}
	}
	return out
}

// FirstError returns the first message of the alphabetically first failed attribute.
func (r *Record) FirstError() string {
	attrs := make([]string, 0, len(r.errors))
	for attr := range r.errors {
		attrs = append(attrs, attr)
	}
	if len(attrs) == 0 {
		return ""
	}
	sort.Strings(attrs)
	return r.errors[attrs[0]][0]
}

// PrimaryKeyValues returns the primary key values in key order, preferring the
// stored baseline. ok is false when any of them is missing.
func (r *Record) PrimaryKeyValues() (values []any, ok bool) {
	values = make([]any, len(r.spec.PrimaryKey))
	for i, pk := range r.spec.PrimaryKey {
		v, present := r.old[pk]
		if !present || v == nil {
			v = r.attrs[pk]
		}
		if v == nil {
			return nil, false
		}
		values[i] = v
	}
	return values, len(values) > 0
}

// DirtyAttributes returns the attributes that differ from the stored baseline.
// A record without a baseline is entirely dirty.
func (r *Record) DirtyAttributes() map[string]any {
	dirty := make(map[string]any)
	for k, v := range r.attrs {
		if r.old != nil {
			if prev, ok := r.old[k]; ok && sameValue(prev, v) {
				continue
			}
		}
		dirty[k] = v
	}
	return dirty
}

func sameValue(a, b any) bool {
	if core.IsScalar(a) && core.IsScalar(b) {
		return fmt.Sprint(a) == fmt.Sprint(b)
	}
	return reflect.DeepEqual(a, b)
}

// ToMap returns a copy of the record's attributes.
func (r *Record) ToMap() map[string]any {
	return core.CloneBody(r.attrs)
}

// Save validates the record and inserts or updates it.
func (r *Record) Save(ctx context.Context) error {
	if !r.Validate() {
		return core.NewValidationError(r.spec.Table, []core.RowError{{Message: r.FirstError()}})
	}
	if r.isNew {
		return r.Insert(ctx)
	}
	_, err := r.Update(ctx)
	return err
}

// Insert writes the record as a new row. The auto-increment attribute is
// filled from the driver when it was not supplied.
func (r *Record) Insert(ctx context.Context) error {
	names := r.Attributes()
	if len(names) == 0 {
		return core.NewPersistenceError(r.spec.Table, "insert", errors.New("no attributes to insert"))
	}

	stmt := core.Statement{Table: r.spec.Table, Op: core.OperationInsert}
	cols := make([]string, len(names))
	values := make([]string, len(names))
	for i, name := range names {
		cols[i] = r.conn.QuoteColumnName(name)
		col, _ := r.spec.Column(name)
		frag, err := Encode(&stmt, r.attrs[name], col)
		if err != nil {
			return fmt.Errorf("failed to encode %s.%s: %w", r.spec.Table, name, err)
		}
		values[i] = frag
	}
	stmt.SQL = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.conn.QuoteTableName(r.spec.Table), strings.Join(cols, ", "), strings.Join(values, ", "))

	res, err := r.conn.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", r.spec.Table, err)
	}

	if ai := r.spec.AutoIncrement; ai != "" && r.attrs[ai] == nil && res.LastInsertID != 0 {
		r.attrs[ai] = res.LastInsertID
	}
	r.isNew = false
	r.old = core.CloneBody(r.attrs)
	return nil
}

// Update writes the dirty non-key attributes to the row identified by the
// primary key. A record with nothing to write reports zero rows.
func (r *Record) Update(ctx context.Context) (int64, error) {
	pkValues, ok := r.PrimaryKeyValues()
	if !ok {
		return 0, core.NewPersistenceError(r.spec.Table, "update", ErrNoPrimaryKey)
	}

	dirty := r.DirtyAttributes()
	names := make([]string, 0, len(dirty))
	for k := range dirty {
		if !r.spec.IsPrimaryKey(k) {
			names = append(names, k)
		}
	}
	if len(names) == 0 {
		return 0, nil
	}
	sort.Strings(names)

	stmt := core.Statement{Table: r.spec.Table, Op: core.OperationUpdate}
	sets := make([]string, len(names))
	for i, name := range names {
		col, _ := r.spec.Column(name)
		frag, err := Encode(&stmt, dirty[name], col)
		if err != nil {
			return 0, fmt.Errorf("failed to encode %s.%s: %w", r.spec.Table, name, err)
		}
		sets[i] = fmt.Sprintf("%s = %s", r.conn.QuoteColumnName(name), frag)
	}
	stmt.SQL = fmt.Sprintf("UPDATE %s SET %s", r.conn.QuoteTableName(r.spec.Table), strings.Join(sets, ", "))
	if err := r.keyCondition(pkValues).Apply(&stmt); err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", r.spec.Table, err)
	}

	res, err := r.conn.Exec(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", r.spec.Table, err)
	}
	r.old = core.CloneBody(r.attrs)
	return res.RowsAffected, nil
}

// Delete removes the row identified by the primary key.
func (r *Record) Delete(ctx context.Context) (int64, error) {
	pkValues, ok := r.PrimaryKeyValues()
	if !ok {
		return 0, core.NewPersistenceError(r.spec.Table, "delete", ErrNoPrimaryKey)
	}

	stmt := core.Statement{
		SQL:   "DELETE FROM " + r.conn.QuoteTableName(r.spec.Table),
		Table: r.spec.Table,
		Op:    core.OperationDelete,
	}
	if err := r.keyCondition(pkValues).Apply(&stmt); err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", r.spec.Table, err)
	}

	res, err := r.conn.Exec(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", r.spec.Table, err)
	}
	return res.RowsAffected, nil
}

func (r *Record) keyCondition(values []any) query.Condition {
	cond := make(map[string]any, len(values))
	for i, pk := range r.spec.PrimaryKey {
		cond[pk] = values[i]
	}
	return query.EqAll(r.conn, cond)
}
