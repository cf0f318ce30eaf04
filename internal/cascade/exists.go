package cascade

import (
	"context"
	"fmt"

	"github.com/rzpsarthak13/relbatch/internal/core"
	"github.com/rzpsarthak13/relbatch/internal/query"
)

// FindExists fetches the stored rows whose primary key values appear among
// rows, with one SELECT filtering each key column by the values observed for
// it. When some key column is never observed nothing can match and no query
// is issued.
func (e *Engine) FindExists(ctx context.Context, spec *core.Spec, rows []map[string]any) ([]map[string]any, error) {
	if len(spec.PrimaryKey) == 0 || len(rows) == 0 {
		return nil, nil
	}

	conds := make([]query.Condition, 0, len(spec.PrimaryKey))
	for _, pk := range spec.PrimaryKey {
		values := observed(rows, pk)
		if len(values) == 0 {
			return nil, nil
		}
		cond, err := query.Compile(e.conn, query.Clause{Field: pk, Op: query.In, Value: values})
		if err != nil {
			return nil, fmt.Errorf("failed to match %s.%s: %w", spec.Table, pk, err)
		}
		conds = append(conds, cond)
	}

	stmt := core.Statement{
		SQL:   "SELECT * FROM " + e.conn.QuoteTableName(spec.Table),
		Table: spec.Table,
	}
	if err := query.And(conds...).Apply(&stmt); err != nil {
		return nil, err
	}
	return e.conn.Query(ctx, stmt)
}

// observed returns the distinct non-nil scalar values of column across rows,
// in first-seen order.
func observed(rows []map[string]any, column string) []any {
	seen := make(map[string]bool, len(rows))
	var values []any
	for _, row := range rows {
		v, ok := row[column]
		if !ok || v == nil || !core.IsScalar(v) {
			continue
		}
		key := fmt.Sprintf("%T:%v", v, v)
		if seen[key] {
			continue
		}
		seen[key] = true
		values = append(values, v)
	}
	return values
}

// CheckExist returns the first entry of existing equal to row on every key
// column, nil when keyColumns is empty or nothing matches. Values are compared
// by their printed form so an int body value matches an int64 stored one.
func CheckExist(row map[string]any, existing []map[string]any, keyColumns []string) map[string]any {
	if len(keyColumns) == 0 {
		return nil
	}
	for _, candidate := range existing {
		if matches(row, candidate, keyColumns) {
			return candidate
		}
	}
	return nil
}

func matches(row, candidate map[string]any, keyColumns []string) bool {
	for _, k := range keyColumns {
		a, ok := row[k]
		if !ok || a == nil {
			return false
		}
		b, ok := candidate[k]
		if !ok || b == nil {
			return false
		}
		if fmt.Sprint(a) != fmt.Sprint(b) {
			return false
		}
	}
	return true
}
