package batch

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rzpsarthak13/relbatch/internal/core"
)

// Upsert writes bodies with one INSERT statement, adding
// ON DUPLICATE KEY UPDATE for every non-key column when allowUpdate is set.
//
// Relations present in a body are written first: the linked parent values are
// copied into each child, the relation's delete policy runs, and the children
// are upserted without an update clause. A child batch that writes nothing
// makes the whole call return 0 without error.
func (b *Builder) Upsert(ctx context.Context, spec *core.Spec, bodies []map[string]any, allowUpdate bool) (int64, error) {
	if len(bodies) == 0 {
		return 0, nil
	}

	records, err := b.prepare(spec, bodies)
	if err != nil {
		return 0, err
	}

	cols := ColumnSet(records[0])
	op := core.OperationInsert
	if allowUpdate {
		op = core.OperationUpsert
	}
	stmt := core.Statement{Table: spec.Table, Op: op}
	groups := make([]string, len(records))

	for i, rec := range records {
		body := bodies[i]
		parent := rec.ToMap()
		for k, v := range body {
			if _, ok := parent[k]; !ok && !spec.IsRelation(k) {
				parent[k] = v
			}
		}

		for _, rel := range spec.Relations {
			raw, present := body[rel.Name]
			if !present || raw == nil {
				continue
			}
			children, ok := core.NormalizeBodies(raw)
			if !ok {
				return 0, core.NewInvalidArgumentError(i, rel.Name, "is not a row or list of rows", body)
			}
			if len(children) == 0 {
				continue
			}
			child, err := b.lookup(rel)
			if err != nil {
				return 0, err
			}

			children = LinkChildren(rel, parent, children)
			if err := b.ApplyDeletePolicy(ctx, rel, child, parent, children); err != nil {
				return 0, err
			}
			n, err := b.Upsert(ctx, child, children, false)
			if err != nil {
				return 0, err
			}
			if n == 0 {
				b.logger.Warn("child upsert wrote nothing, aborting parent",
					zap.String("table", spec.Table),
					zap.String("relation", rel.Name),
					zap.Int("row", i))
				return 0, nil
			}
		}

		group, err := b.rowValues(&stmt, spec, rec, body, cols)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
		groups[i] = group
	}

	mode := ModeInsert
	var updates []string
	if allowUpdate {
		for _, name := range cols {
			if spec.IsPrimaryKey(name) {
				continue
			}
			q := b.conn.QuoteColumnName(name)
			updates = append(updates, fmt.Sprintf("%s = VALUES(%s)", q, q))
		}
		// Rows made only of key columns have nothing to update.
		if len(updates) == 0 {
			mode = ModeInsertIgnore
		}
	}

	stmt.SQL = fmt.Sprintf("%s INTO %s (%s) VALUES %s",
		mode, b.conn.QuoteTableName(spec.Table), b.quoteColumns(cols), strings.Join(groups, ", "))
	if len(updates) > 0 {
		stmt.SQL += " ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", ")
	}
	return b.exec(ctx, stmt)
}
