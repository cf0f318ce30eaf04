package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/relbatch/internal/core"
)

func TestTypeMapperKindOf(t *testing.T) {
	tm := NewTypeMapper()
	tests := []struct {
		dbType string
		want   Kind
	}{
		{"int", KindInt},
		{"bigint(20) unsigned", KindUint},
		{"tinyint(1)", KindBool},
		{"varchar(255)", KindString},
		{"decimal(10,2)", KindDecimal},
		{"datetime", KindTime},
		{"json", KindJSON},
		{"longblob", KindBytes},
		{"geometry", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.dbType, func(t *testing.T) {
			assert.Equal(t, tt.want, tm.KindOf(tt.dbType))
		})
	}
}

func TestTypeMapperConvert(t *testing.T) {
	tm := NewTypeMapper()

	v, err := tm.Convert("42", "int")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = tm.Convert(3.0, "bigint")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	_, err = tm.Convert(3.5, "int")
	assert.Error(t, err)

	v, err = tm.Convert(12, "varchar(10)")
	require.NoError(t, err)
	assert.Equal(t, "12", v)

	v, err = tm.Convert(map[string]any{"a": 1}, "json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, v)

	_, err = tm.Convert("{not json", "json")
	assert.Error(t, err)

	v, err = tm.Convert("2024-01-02 03:04:05", "datetime")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), v)

	v, err = tm.Convert(nil, "int")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = tm.Convert(-1, "int unsigned")
	assert.Error(t, err)
}

func TestTypeMapperCaster(t *testing.T) {
	tm := NewTypeMapper()

	cast := tm.Caster("int")
	require.NotNil(t, cast)
	assert.Equal(t, int64(7), cast("7"))
	assert.Equal(t, "seven", cast("seven"), "unconvertible values pass through")

	assert.Nil(t, tm.Caster("geometry"))

	cols := map[string]core.Column{"qty": {Name: "qty", Type: "int"}}
	tm.ApplyCasters(cols)
	assert.Equal(t, int64(5), cols["qty"].Cast("5"))
}

func TestTypeMapperFromDB(t *testing.T) {
	tm := NewTypeMapper()
	assert.Equal(t, int64(9), tm.FromDB([]byte("9"), "int"))
	assert.Equal(t, "abc", tm.FromDB([]byte("abc"), "varchar(3)"))
	assert.Equal(t, 1.5, tm.FromDB([]byte("1.5"), "double"))
	assert.Equal(t, true, tm.FromDB([]byte("1"), "tinyint(1)"))
	assert.Equal(t, int64(4), tm.FromDB(int64(4), "int"))
}

func TestValidator(t *testing.T) {
	spec := &core.Spec{
		Table:         "orders",
		PrimaryKey:    []string{"id"},
		AutoIncrement: "id",
		Columns: map[string]core.Column{
			"id":     {Name: "id", Type: "int", AutoIncrement: true},
			"name":   {Name: "name", Type: "varchar(10)"},
			"qty":    {Name: "qty", Type: "int", Default: "0"},
			"note":   {Name: "note", Type: "text", Nullable: true},
			"status": {Name: "status", Type: "varchar(10)", Nullable: true},
		},
		Rules: []core.Rule{
			{Attributes: []string{"status"}, MaxLength: 3},
			{Attributes: []string{"note"}, Check: func(v any) error {
				if v == "bad" {
					return errors.New("is not allowed")
				}
				return nil
			}},
		},
	}
	v := NewValidator(spec)

	errs := v.Validate(map[string]any{"name": "x"}, true)
	assert.Empty(t, errs)

	errs = v.Validate(map[string]any{}, true)
	assert.Equal(t, []string{"column 'name' cannot be NULL"}, errs["name"])
	assert.NotContains(t, errs, "qty", "column with a default may be omitted")
	assert.NotContains(t, errs, "id", "auto-increment column may be omitted")

	errs = v.Validate(map[string]any{}, false)
	assert.Empty(t, errs, "not-new records only check supplied attributes")

	errs = v.Validate(map[string]any{"name": "x", "qty": "many"}, true)
	require.Len(t, errs["qty"], 1)
	assert.Contains(t, errs["qty"][0], "type mismatch")

	errs = v.Validate(map[string]any{"name": "x", "qty": core.NewRaw("`qty` + 1", nil)}, true)
	assert.Empty(t, errs)

	errs = v.Validate(map[string]any{"name": "x", "status": "long"}, true)
	assert.Equal(t, []string{"status should contain at most 3 characters"}, errs["status"])

	errs = v.Validate(map[string]any{"name": "x", "note": "bad"}, true)
	assert.Equal(t, []string{"note is not allowed"}, errs["note"])
}

func TestValidatorRequiredRule(t *testing.T) {
	spec := &core.Spec{
		Table: "tags",
		Rules: []core.Rule{{Attributes: []string{"label"}, Required: true, Message: "label is mandatory"}},
	}
	errs := NewValidator(spec).Validate(map[string]any{"label": ""}, false)
	assert.Equal(t, []string{"label is mandatory"}, errs["label"])
}
