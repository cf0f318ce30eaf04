package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementBind(t *testing.T) {
	tests := []struct {
		name     string
		stmt     Statement
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "positional only",
			stmt:     Statement{SQL: "SELECT * FROM `t` WHERE `id` IN (?, ?)", Args: []any{1, 2}},
			wantSQL:  "SELECT * FROM `t` WHERE `id` IN (?, ?)",
			wantArgs: []any{1, 2},
		},
		{
			name: "named interleaved with positional",
			stmt: Statement{
				SQL:    "UPDATE `t` SET `n` = `n` + :step, `m` = ? WHERE `id` = ?",
				Args:   []any{"x", 7},
				Params: map[string]any{"step": 2},
			},
			wantSQL:  "UPDATE `t` SET `n` = `n` + ?, `m` = ? WHERE `id` = ?",
			wantArgs: []any{2, "x", 7},
		},
		{
			name:     "colon inside string literal",
			stmt:     Statement{SQL: "SELECT ':skip', `a:b` FROM `t` WHERE `x` = ?", Args: []any{1}},
			wantSQL:  "SELECT ':skip', `a:b` FROM `t` WHERE `x` = ?",
			wantArgs: []any{1},
		},
		{
			name:     "question mark inside string literal",
			stmt:     Statement{SQL: "SELECT 'why?' FROM `t` WHERE `x` = ?", Args: []any{1}},
			wantSQL:  "SELECT 'why?' FROM `t` WHERE `x` = ?",
			wantArgs: []any{1},
		},
		{
			name:     "repeated named param",
			stmt:     Statement{SQL: "SELECT :v + :v", Params: map[string]any{"v": 3}},
			wantSQL:  "SELECT ? + ?",
			wantArgs: []any{3, 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := tt.stmt.Bind()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestStatementBindErrors(t *testing.T) {
	_, _, err := Statement{SQL: "SELECT :missing"}.Bind()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")

	_, _, err = Statement{SQL: "SELECT ?, ?", Args: []any{1}}.Bind()
	require.Error(t, err)

	_, _, err = Statement{SQL: "SELECT ?", Args: []any{1, 2}}.Bind()
	require.Error(t, err)
}

func TestStatementMergeParams(t *testing.T) {
	var s Statement
	require.NoError(t, s.MergeParams(nil))
	assert.Nil(t, s.Params)

	require.NoError(t, s.MergeParams(map[string]any{"a": 1}))
	require.NoError(t, s.MergeParams(map[string]any{"a": 1, "b": 3}))
	assert.Equal(t, map[string]any{"a": 1, "b": 3}, s.Params)

	err := s.MergeParams(map[string]any{"a": 2})
	require.Error(t, err)
	assert.True(t, IsInvalidArgument(err))
	assert.Contains(t, err.Error(), `"a"`)
	assert.Equal(t, 1, s.Params["a"])

	require.NoError(t, s.MergeParams(map[string]any{"tags": []string{"x"}}))
	require.NoError(t, s.MergeParams(map[string]any{"tags": []string{"x"}}))
}
