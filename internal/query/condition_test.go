package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/relbatch/internal/core"
)

type backtick struct{}

func (backtick) QuoteColumnName(name string) string { return "`" + name + "`" }

func TestParse(t *testing.T) {
	q := backtick{}
	tests := []struct {
		name     string
		where    any
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "scalar equality",
			where:    map[string]any{"status": "open"},
			wantSQL:  "`status` = ?",
			wantArgs: []any{"open"},
		},
		{
			name:     "sorted keys joined with and",
			where:    map[string]any{"b": 2, "a": 1},
			wantSQL:  "(`a` = ? AND `b` = ?)",
			wantArgs: []any{1, 2},
		},
		{
			name:     "list becomes in",
			where:    map[string]any{"id": []any{1, 2}},
			wantSQL:  "`id` IN (?, ?)",
			wantArgs: []any{1, 2},
		},
		{
			name:    "nil becomes is null",
			where:   map[string]any{"deleted_at": nil},
			wantSQL: "`deleted_at` IS NULL",
		},
		{
			name:     "operator map",
			where:    map[string]any{"qty": map[string]any{">": 3, "<=": 10}},
			wantSQL:  "(`qty` <= ? AND `qty` > ?)",
			wantArgs: []any{10, 3},
		},
		{
			name:     "not equal",
			where:    map[string]any{"state": map[string]any{"!=": "x"}},
			wantSQL:  "`state` <> ?",
			wantArgs: []any{"x"},
		},
		{
			name:     "or list",
			where:    map[string]any{"or": []any{map[string]any{"a": 1}, map[string]any{"b": 2}}},
			wantSQL:  "(`a` = ? OR `b` = ?)",
			wantArgs: []any{1, 2},
		},
		{
			name:    "is null false flips",
			where:   map[string]any{"x": map[string]any{"is null": false}},
			wantSQL: "`x` IS NOT NULL",
		},
		{
			name:    "empty in never matches",
			where:   map[string]any{"id": map[string]any{"in": []any{}}},
			wantSQL: "1 = 0",
		},
		{
			name:     "list of maps",
			where:    []any{map[string]any{"a": 1}, map[string]any{"b": "x"}},
			wantSQL:  "(`a` = ? AND `b` = ?)",
			wantArgs: []any{1, "x"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse(q, tt.where)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, c.SQL)
			assert.Equal(t, tt.wantArgs, c.Args)
		})
	}
}

func TestParseErrors(t *testing.T) {
	q := backtick{}

	_, err := Parse(q, map[string]any{"x": map[string]any{"~": 1}})
	assert.Error(t, err)

	_, err = Parse(q, map[string]any{"or": "nope"})
	assert.Error(t, err)

	_, err = Parse(q, 42)
	assert.Error(t, err)

	_, err = Parse(q, map[string]any{"x": map[string]any{">": []int{1}}})
	assert.Error(t, err)
}

func TestRawValue(t *testing.T) {
	c, err := Parse(backtick{}, map[string]any{"updated_at": map[string]any{"<": core.NewRaw("NOW() - INTERVAL :d DAY", map[string]any{"d": 7})}})
	require.NoError(t, err)
	assert.Equal(t, "`updated_at` < NOW() - INTERVAL :d DAY", c.SQL)
	assert.Empty(t, c.Args)
	assert.Equal(t, map[string]any{"d": 7}, c.Params)
}

func TestRawParamConflict(t *testing.T) {
	q := backtick{}
	_, err := Parse(q, map[string]any{
		"created_at": map[string]any{">": core.NewRaw("NOW() - INTERVAL :d DAY", map[string]any{"d": 30})},
		"updated_at": map[string]any{"<": core.NewRaw("NOW() - INTERVAL :d DAY", map[string]any{"d": 7})},
	})
	require.Error(t, err)
	assert.True(t, core.IsInvalidArgument(err))

	c, err := Parse(q, []any{
		map[string]any{"created_at": map[string]any{">": core.NewRaw("NOW() - INTERVAL :d DAY", map[string]any{"d": 7})}},
		map[string]any{"updated_at": map[string]any{">": core.NewRaw("NOW() - INTERVAL :d DAY", map[string]any{"d": 7})}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"d": 7}, c.Params)

	stmt := core.Statement{SQL: "SELECT 1", Params: map[string]any{"d": 1}}
	assert.Error(t, c.Apply(&stmt))
}

func TestFromBody(t *testing.T) {
	q := backtick{}

	c, ok, err := FromBody(q, map[string]any{"Where": map[string]any{"id": 1}})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "`id` = ?", c.SQL)

	_, ok, err = FromBody(q, map[string]any{"id": 1})
	require.NoError(t, err)
	assert.False(t, ok)

	key, ok := WhereKey(map[string]any{"attributes": 1, "andWhere": 2})
	assert.True(t, ok)
	assert.Equal(t, "andWhere", key)
}

func TestInTuples(t *testing.T) {
	q := backtick{}

	c := InTuples(q, []string{"id"}, [][]any{{1}, {2}})
	assert.Equal(t, "`id` IN (?, ?)", c.SQL)
	assert.Equal(t, []any{1, 2}, c.Args)

	c = InTuples(q, []string{"a", "b"}, [][]any{{1, "x"}, {2, "y"}})
	assert.Equal(t, "(`a`, `b`) IN ((?, ?), (?, ?))", c.SQL)
	assert.Equal(t, []any{1, "x", 2, "y"}, c.Args)

	assert.True(t, InTuples(q, []string{"id"}, nil).IsEmpty())
}

func TestEqAllAndApply(t *testing.T) {
	q := backtick{}
	c := EqAll(q, map[string]any{"order_id": 5, "kind": "gift"})
	assert.Equal(t, "(`kind` = ? AND `order_id` = ?)", c.SQL)

	stmt := core.Statement{SQL: "DELETE FROM `items`"}
	require.NoError(t, c.Apply(&stmt))
	assert.Equal(t, "DELETE FROM `items` WHERE (`kind` = ? AND `order_id` = ?)", stmt.SQL)
	assert.Equal(t, []any{"gift", 5}, stmt.Args)

	empty := core.Statement{SQL: "DELETE FROM `items`"}
	require.NoError(t, Condition{}.Apply(&empty))
	assert.Equal(t, "DELETE FROM `items`", empty.SQL)
}
