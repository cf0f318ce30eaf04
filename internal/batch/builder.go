// Package batch turns lists of row bodies into single multi-row statements:
// INSERT, REPLACE, INSERT IGNORE, INSERT ... ON DUPLICATE KEY UPDATE,
// CASE-based UPDATE and tuple-keyed DELETE. Relations present in the bodies
// are cascaded to child specs before the parent statement runs.
package batch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/rzpsarthak13/relbatch/internal/core"
	"github.com/rzpsarthak13/relbatch/internal/query"
	"github.com/rzpsarthak13/relbatch/internal/record"
)

// Builder builds and runs batch statements over one connection.
type Builder struct {
	conn   core.Conn
	specs  core.SpecResolver
	logger *zap.Logger
}

// New creates a Builder. specs resolves relation targets; logger may be nil.
func New(conn core.Conn, specs core.SpecResolver, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		conn:   conn,
		specs:  specs,
		logger: logger.Named("batch"),
	}
}

// Conn returns the connection statements are submitted to.
func (b *Builder) Conn() core.Conn {
	return b.conn
}

// ColumnSet returns the attributes of a batch's first record, sorted. Every
// row of the batch is read out in this order.
func ColumnSet(first *record.Record) []string {
	return first.Attributes()
}

// prepare loads every body into a new record and validates it. All bodies are
// checked before any error is returned; the error carries the first message
// of each invalid row. Valid records are marked not-new.
func (b *Builder) prepare(spec *core.Spec, bodies []map[string]any) ([]*record.Record, error) {
	records := make([]*record.Record, len(bodies))
	var failed []core.RowError
	for i, body := range bodies {
		rec := record.New(spec, b.conn)
		rec.Load(body)
		if !rec.Validate() {
			failed = append(failed, core.RowError{Row: i, Message: rec.FirstError()})
			continue
		}
		rec.MarkNotNew()
		records[i] = rec
	}
	if len(failed) > 0 {
		return nil, core.NewValidationError(spec.Table, failed)
	}
	return records, nil
}

// exec submits stmt and returns the affected row count.
func (b *Builder) exec(ctx context.Context, stmt core.Statement) (int64, error) {
	b.logger.Debug("submitting statement",
		zap.String("table", stmt.Table),
		zap.String("op", string(stmt.Op)),
		zap.Int("args", len(stmt.Args)))
	res, err := b.conn.Exec(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

func (b *Builder) lookup(rel core.Relation) (*core.Spec, error) {
	if b.specs == nil {
		return nil, fmt.Errorf("relation %q: %w", rel.Name, core.ErrSpecNotFound)
	}
	child, err := b.specs.Lookup(rel.Target)
	if err != nil {
		return nil, fmt.Errorf("relation %q: %w", rel.Name, err)
	}
	return child, nil
}

func (b *Builder) quoteColumns(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = b.conn.QuoteColumnName(n)
	}
	return strings.Join(quoted, ", ")
}

// deleteWhere deletes the rows of spec matching cond. An empty condition
// deletes nothing.
func (b *Builder) deleteWhere(ctx context.Context, spec *core.Spec, cond query.Condition) (int64, error) {
	if cond.IsEmpty() {
		return 0, nil
	}
	stmt := core.Statement{
		SQL:   "DELETE FROM " + b.conn.QuoteTableName(spec.Table),
		Table: spec.Table,
		Op:    core.OperationDelete,
	}
	if err := cond.Apply(&stmt); err != nil {
		return 0, err
	}
	return b.exec(ctx, stmt)
}

// ApplyDeletePolicy runs rel's delete policy before children are written.
// A condition policy is scoped by the link values taken from parent and is
// skipped when any of them is missing.
func (b *Builder) ApplyDeletePolicy(ctx context.Context, rel core.Relation, child *core.Spec, parent map[string]any, children []map[string]any) error {
	policy := rel.OnReplace
	switch policy.Kind {
	case core.DeleteByCondition:
		link, ok := rel.LinkValues(parent)
		if !ok {
			b.logger.Debug("skipping delete policy without link values",
				zap.String("relation", rel.Name))
			return nil
		}
		where := make(map[string]any, len(link)+len(policy.Condition))
		for k, v := range policy.Condition {
			where[k] = v
		}
		for k, v := range link {
			where[k] = v
		}
		cond, err := query.Parse(b.conn, where)
		if err != nil {
			return fmt.Errorf("relation %q: invalid delete condition: %w", rel.Name, err)
		}
		if _, err := b.deleteWhere(ctx, child, cond); err != nil {
			return fmt.Errorf("relation %q: failed to delete children: %w", rel.Name, err)
		}
	case core.DeleteByCallback:
		if policy.Callback == nil {
			return nil
		}
		if err := policy.Callback(ctx, child, children); err != nil {
			return fmt.Errorf("relation %q: delete callback failed: %w", rel.Name, err)
		}
	}
	return nil
}

// LinkChildren copies the linked parent values into a copy of every child body.
// Parent values that are missing leave the child's own value in place.
func LinkChildren(rel core.Relation, parent map[string]any, children []map[string]any) []map[string]any {
	out := make([]map[string]any, len(children))
	for i, child := range children {
		c := core.CloneBody(child)
		for childAttr, parentAttr := range rel.Link {
			if v, ok := parent[parentAttr]; ok && v != nil {
				c[childAttr] = v
			}
		}
		out[i] = c
	}
	return out
}

// tupleKey identifies a reference tuple for deduplication.
func tupleKey(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%T:%v", v, v)
	}
	return strings.Join(parts, "\x00")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
