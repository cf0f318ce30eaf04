package batch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rzpsarthak13/relbatch/internal/core"
	"github.com/rzpsarthak13/relbatch/internal/query"
	"github.com/rzpsarthak13/relbatch/internal/record"
)

// UpdateMany updates bodies with one CASE-based UPDATE. Rows are identified by
// refCols, the primary key when none are given. The updated columns are the
// keys of the first body minus the reference columns and relations.
//
// Every body must carry every reference column with a scalar value. A body
// that lacks an updated column contributes no branch for it, so the column
// keeps its stored value for that row.
func (b *Builder) UpdateMany(ctx context.Context, spec *core.Spec, bodies []map[string]any, refCols ...string) (int64, error) {
	if len(bodies) == 0 {
		return 0, nil
	}
	if len(refCols) == 0 {
		refCols = spec.PrimaryKey
	}
	if len(refCols) == 0 {
		return 0, core.NewInvalidArgumentError(0, "", "has no reference columns to match rows", bodies[0])
	}

	for i, body := range bodies {
		for _, ref := range refCols {
			v, ok := body[ref]
			if !ok {
				return 0, core.NewInvalidArgumentError(i, ref, "is missing", body)
			}
			if !core.IsScalar(v) {
				return 0, core.NewInvalidArgumentError(i, ref, "must be a scalar value", body)
			}
		}
	}

	isRef := make(map[string]bool, len(refCols))
	for _, ref := range refCols {
		isRef[ref] = true
	}
	var cols []string
	for _, k := range sortedKeys(bodies[0]) {
		if isRef[k] || spec.IsRelation(k) {
			continue
		}
		if strings.Contains(strings.ToLower(k), "where") {
			continue
		}
		cols = append(cols, k)
	}
	if len(cols) == 0 {
		return 0, nil
	}

	stmt := core.Statement{Table: spec.Table, Op: core.OperationUpdate}
	sets := make([]string, 0, len(cols))
	for _, name := range cols {
		q := b.conn.QuoteColumnName(name)
		col, _ := spec.Column(name)

		var branches []string
		for i, body := range bodies {
			value, ok := body[name]
			if !ok {
				continue
			}
			match, err := b.refMatch(&stmt, spec, body, refCols)
			if err != nil {
				return 0, fmt.Errorf("row %d: %w", i, err)
			}
			frag, err := record.Encode(&stmt, value, col)
			if err != nil {
				return 0, fmt.Errorf("row %d: column %s: %w", i, name, err)
			}
			branches = append(branches, fmt.Sprintf("WHEN %s THEN %s", match, frag))
		}
		if len(branches) == 0 {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = CASE %s ELSE %s END", q, strings.Join(branches, " "), q))
	}

	seen := make(map[string]bool, len(bodies))
	tuples := make([][]any, 0, len(bodies))
	for _, body := range bodies {
		tuple := make([]any, len(refCols))
		for j, ref := range refCols {
			col, _ := spec.Column(ref)
			tuple[j] = col.Cast(body[ref])
		}
		key := tupleKey(tuple)
		if seen[key] {
			continue
		}
		seen[key] = true
		tuples = append(tuples, tuple)
	}

	stmt.SQL = fmt.Sprintf("UPDATE %s SET %s", b.conn.QuoteTableName(spec.Table), strings.Join(sets, ", "))
	if err := query.InTuples(b.conn, refCols, tuples).Apply(&stmt); err != nil {
		return 0, err
	}
	return b.exec(ctx, stmt)
}

// refMatch renders "`r1` = ? AND `r2` = ?" for one body, binding its values.
func (b *Builder) refMatch(stmt *core.Statement, spec *core.Spec, body map[string]any, refCols []string) (string, error) {
	parts := make([]string, len(refCols))
	for j, ref := range refCols {
		col, _ := spec.Column(ref)
		frag, err := record.Encode(stmt, body[ref], col)
		if err != nil {
			return "", fmt.Errorf("column %s: %w", ref, err)
		}
		parts[j] = fmt.Sprintf("%s = %s", b.conn.QuoteColumnName(ref), frag)
	}
	return strings.Join(parts, " AND "), nil
}

// UpdateAll sets attrs on every row matching where. Relations in attrs are
// ignored. An empty attribute set or an empty condition updates nothing.
func (b *Builder) UpdateAll(ctx context.Context, spec *core.Spec, attrs map[string]any, where any) (int64, error) {
	names := make([]string, 0, len(attrs))
	for k := range attrs {
		if !spec.IsRelation(k) {
			names = append(names, k)
		}
	}
	if len(names) == 0 {
		return 0, nil
	}
	sort.Strings(names)

	cond, err := query.Parse(b.conn, where)
	if err != nil {
		return 0, core.NewInvalidArgumentError(0, "where", err.Error(), attrs)
	}
	if cond.IsEmpty() {
		return 0, nil
	}

	stmt := core.Statement{Table: spec.Table, Op: core.OperationUpdate}
	sets := make([]string, len(names))
	for i, name := range names {
		col, _ := spec.Column(name)
		frag, err := record.Encode(&stmt, attrs[name], col)
		if err != nil {
			return 0, fmt.Errorf("column %s: %w", name, err)
		}
		sets[i] = fmt.Sprintf("%s = %s", b.conn.QuoteColumnName(name), frag)
	}
	stmt.SQL = fmt.Sprintf("UPDATE %s SET %s", b.conn.QuoteTableName(spec.Table), strings.Join(sets, ", "))
	if err := cond.Apply(&stmt); err != nil {
		return 0, err
	}
	return b.exec(ctx, stmt)
}
