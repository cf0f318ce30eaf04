package batch

import (
	"context"
	"fmt"
	"strings"

	"github.com/rzpsarthak13/relbatch/internal/core"
	"github.com/rzpsarthak13/relbatch/internal/record"
)

// Mode is the verb of a multi-row insert.
type Mode string

const (
	ModeInsert       Mode = "INSERT"
	ModeReplace      Mode = "REPLACE"
	ModeInsertIgnore Mode = "INSERT IGNORE"
)

// Insert writes bodies with one multi-row statement and returns the affected
// row count. Every body is validated first; if any fails nothing is written.
func (b *Builder) Insert(ctx context.Context, spec *core.Spec, bodies []map[string]any, mode Mode) (int64, error) {
	if len(bodies) == 0 {
		return 0, nil
	}
	switch mode {
	case ModeInsert, ModeReplace, ModeInsertIgnore:
	case "":
		mode = ModeInsert
	default:
		return 0, fmt.Errorf("unsupported insert mode %q", mode)
	}

	records, err := b.prepare(spec, bodies)
	if err != nil {
		return 0, err
	}

	cols := ColumnSet(records[0])
	stmt := core.Statement{Table: spec.Table, Op: core.OperationInsert}
	groups := make([]string, len(records))
	for i, rec := range records {
		group, err := b.rowValues(&stmt, spec, rec, bodies[i], cols)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
		groups[i] = group
	}

	stmt.SQL = fmt.Sprintf("%s INTO %s (%s) VALUES %s",
		mode, b.conn.QuoteTableName(spec.Table), b.quoteColumns(cols), strings.Join(groups, ", "))
	return b.exec(ctx, stmt)
}

// rowValues renders one "(v1, v2, ...)" group in column order. A column the
// row does not carry renders as NULL. A primary key the record left nil takes
// the value the body supplied.
func (b *Builder) rowValues(stmt *core.Statement, spec *core.Spec, rec *record.Record, body map[string]any, cols []string) (string, error) {
	frags := make([]string, len(cols))
	for j, name := range cols {
		value := rec.Get(name)
		if value == nil && spec.IsPrimaryKey(name) {
			if supplied, ok := body[name]; ok && supplied != nil {
				value = supplied
			}
		}
		col, _ := spec.Column(name)
		frag, err := record.Encode(stmt, value, col)
		if err != nil {
			return "", fmt.Errorf("column %s: %w", name, err)
		}
		frags[j] = frag
	}
	return "(" + strings.Join(frags, ", ") + ")", nil
}
