// Package query translates structured condition payloads into SQL WHERE
// fragments.
//
// A condition is a map from column to value, evaluated with AND:
//
//	{"status": "open"}                    `status` = ?
//	{"id": []any{1, 2}}                   `id` IN (?, ?)
//	{"deleted_at": nil}                   `deleted_at` IS NULL
//	{"qty": map[string]any{">": 3}}       `qty` > ?
//	{"or": []any{{"a": 1}, {"b": 2}}}     (`a` = ? OR `b` = ?)
//
// Keys are visited in sorted order so the same payload always yields the same SQL.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rzpsarthak13/relbatch/internal/core"
)

// Quoter quotes column names for the dialect.
type Quoter interface {
	QuoteColumnName(name string) string
}

// Operator is a comparison operator accepted in a condition map.
type Operator string

const (
	Eq        Operator = "="
	Neq       Operator = "!="
	Gt        Operator = ">"
	Gte       Operator = ">="
	Lt        Operator = "<"
	Lte       Operator = "<="
	Like      Operator = "like"
	NotLike   Operator = "not like"
	In        Operator = "in"
	NotIn     Operator = "not in"
	IsNull    Operator = "is null"
	IsNotNull Operator = "is not null"
)

var operators = map[string]Operator{
	"=":           Eq,
	"==":          Eq,
	"eq":          Eq,
	"!=":          Neq,
	"<>":          Neq,
	"ne":          Neq,
	">":           Gt,
	"gt":          Gt,
	">=":          Gte,
	"gte":         Gte,
	"<":           Lt,
	"lt":          Lt,
	"<=":          Lte,
	"lte":         Lte,
	"like":        Like,
	"not like":    NotLike,
	"in":          In,
	"not in":      NotIn,
	"is null":     IsNull,
	"is not null": IsNotNull,
}

// Clause is a single column predicate.
type Clause struct {
	Field string
	Op    Operator
	Value any
}

// Condition is a WHERE fragment with its positional args and the named
// params of any raw expression it inlines.
type Condition struct {
	SQL    string
	Args   []any
	Params map[string]any

	// err records a named param bound to two values by joined conditions.
	err error
}

// IsEmpty reports whether the condition has no predicate.
func (c Condition) IsEmpty() bool {
	return strings.TrimSpace(c.SQL) == ""
}

// Apply appends the condition to stmt as a WHERE clause. It fails when a
// named param is bound to different values, leaving stmt unusable.
func (c Condition) Apply(stmt *core.Statement) error {
	if c.err != nil {
		return c.err
	}
	if c.IsEmpty() {
		return nil
	}
	stmt.SQL += " WHERE " + c.SQL
	stmt.Args = append(stmt.Args, c.Args...)
	return stmt.MergeParams(c.Params)
}

// And joins conditions with AND, skipping empty ones.
func And(conds ...Condition) Condition {
	return join("AND", conds)
}

// Or joins conditions with OR, skipping empty ones.
func Or(conds ...Condition) Condition {
	return join("OR", conds)
}

func join(op string, conds []Condition) Condition {
	var out Condition
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		if c.IsEmpty() {
			continue
		}
		if c.err != nil && out.err == nil {
			out.err = c.err
		}
		parts = append(parts, c.SQL)
		out.Args = append(out.Args, c.Args...)
		params, err := core.MergeParams(out.Params, c.Params)
		if err != nil && out.err == nil {
			out.err = err
		}
		out.Params = params
	}
	switch len(parts) {
	case 0:
	case 1:
		out.SQL = parts[0]
	default:
		out.SQL = "(" + strings.Join(parts, " "+op+" ") + ")"
	}
	return out
}

// Compile renders a single clause.
func Compile(q Quoter, c Clause) (Condition, error) {
	col := q.QuoteColumnName(c.Field)

	if raw, ok := c.Value.(core.Raw); ok {
		switch c.Op {
		case In, NotIn, IsNull, IsNotNull:
			return Condition{}, fmt.Errorf("operator %q does not accept a raw expression", c.Op)
		}
		return Condition{SQL: fmt.Sprintf("%s %s %s", col, opSQL(c.Op), raw.SQL), Params: raw.Params}, nil
	}

	switch c.Op {
	case IsNull, IsNotNull:
		return Condition{SQL: fmt.Sprintf("%s %s", col, opSQL(c.Op))}, nil
	case In, NotIn:
		values, ok := asList(c.Value)
		if !ok {
			values = []any{c.Value}
		}
		if len(values) == 0 {
			if c.Op == In {
				return Condition{SQL: "1 = 0"}, nil
			}
			return Condition{SQL: "1 = 1"}, nil
		}
		return Condition{
			SQL:  fmt.Sprintf("%s %s (%s)", col, opSQL(c.Op), placeholders(len(values))),
			Args: values,
		}, nil
	case Eq, Neq:
		if c.Value == nil {
			if c.Op == Eq {
				return Condition{SQL: col + " IS NULL"}, nil
			}
			return Condition{SQL: col + " IS NOT NULL"}, nil
		}
		if values, ok := asList(c.Value); ok {
			op := In
			if c.Op == Neq {
				op = NotIn
			}
			return Compile(q, Clause{Field: c.Field, Op: op, Value: values})
		}
	}

	if !core.IsScalar(c.Value) && !isBool(c.Value) {
		return Condition{}, fmt.Errorf("operator %q on %q needs a scalar value, got %T", c.Op, c.Field, c.Value)
	}
	return Condition{SQL: fmt.Sprintf("%s %s ?", col, opSQL(c.Op)), Args: []any{c.Value}}, nil
}

// EqAll renders an equality condition over values, AND-joined in column order.
func EqAll(q Quoter, values map[string]any) Condition {
	conds := make([]Condition, 0, len(values))
	for _, name := range sortedKeys(values) {
		c, err := Compile(q, Clause{Field: name, Op: Eq, Value: values[name]})
		if err != nil {
			c = Condition{SQL: q.QuoteColumnName(name) + " = ?", Args: []any{values[name]}}
		}
		conds = append(conds, c)
	}
	return And(conds...)
}

// InTuples renders a membership test of the column tuple against tuples.
// A single column renders as `c` IN (?, ?); several as (`a`, `b`) IN ((?, ?), ...).
func InTuples(q Quoter, columns []string, tuples [][]any) Condition {
	if len(columns) == 0 || len(tuples) == 0 {
		return Condition{}
	}
	if len(columns) == 1 {
		args := make([]any, len(tuples))
		for i, t := range tuples {
			args[i] = t[0]
		}
		return Condition{
			SQL:  fmt.Sprintf("%s IN (%s)", q.QuoteColumnName(columns[0]), placeholders(len(args))),
			Args: args,
		}
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = q.QuoteColumnName(c)
	}
	groups := make([]string, len(tuples))
	args := make([]any, 0, len(tuples)*len(columns))
	group := "(" + placeholders(len(columns)) + ")"
	for i, t := range tuples {
		groups[i] = group
		args = append(args, t...)
	}
	return Condition{
		SQL:  fmt.Sprintf("(%s) IN (%s)", strings.Join(quoted, ", "), strings.Join(groups, ", ")),
		Args: args,
	}
}

// FromBody finds the first key containing "where" (case-insensitive, in
// sorted key order) and translates its value. ok is false when body has no
// such key.
func FromBody(q Quoter, body map[string]any) (cond Condition, ok bool, err error) {
	key, ok := WhereKey(body)
	if !ok {
		return Condition{}, false, nil
	}
	cond, err = Parse(q, body[key])
	return cond, true, err
}

// WhereKey returns the first key of body that contains "where".
func WhereKey(body map[string]any) (string, bool) {
	for _, k := range sortedKeys(body) {
		if strings.Contains(strings.ToLower(k), "where") {
			return k, true
		}
	}
	return "", false
}

// Parse translates a condition payload: a map, or a list of maps AND-joined.
func Parse(q Quoter, where any) (Condition, error) {
	switch w := where.(type) {
	case nil:
		return Condition{}, nil
	case map[string]any:
		return parseMap(q, w)
	case []map[string]any:
		items := make([]any, len(w))
		for i, m := range w {
			items[i] = m
		}
		return parseList(q, items, "AND")
	case []any:
		return parseList(q, w, "AND")
	default:
		return Condition{}, fmt.Errorf("unsupported condition type %T", where)
	}
}

func parseList(q Quoter, items []any, op string) (Condition, error) {
	conds := make([]Condition, 0, len(items))
	for i, item := range items {
		c, err := Parse(q, item)
		if err != nil {
			return Condition{}, fmt.Errorf("condition %d: %w", i, err)
		}
		conds = append(conds, c)
	}
	if op == "OR" {
		c := Or(conds...)
		return c, c.err
	}
	c := And(conds...)
	return c, c.err
}

func parseMap(q Quoter, m map[string]any) (Condition, error) {
	conds := make([]Condition, 0, len(m))
	for _, key := range sortedKeys(m) {
		value := m[key]

		switch strings.ToLower(key) {
		case "and", "or":
			items, ok := asList(value)
			if !ok {
				return Condition{}, fmt.Errorf("%q expects a list of conditions", key)
			}
			c, err := parseList(q, items, strings.ToUpper(key))
			if err != nil {
				return Condition{}, err
			}
			conds = append(conds, c)
			continue
		}

		ops, isOps := value.(map[string]any)
		if !isOps {
			c, err := Compile(q, Clause{Field: key, Op: Eq, Value: value})
			if err != nil {
				return Condition{}, err
			}
			conds = append(conds, c)
			continue
		}

		for _, name := range sortedKeys(ops) {
			op, known := operators[strings.ToLower(strings.TrimSpace(name))]
			if !known {
				return Condition{}, fmt.Errorf("unknown operator %q on %q", name, key)
			}
			arg := ops[name]
			if op == IsNull || op == IsNotNull {
				if flag, ok := arg.(bool); ok && !flag {
					if op == IsNull {
						op = IsNotNull
					} else {
						op = IsNull
					}
				}
			}
			c, err := Compile(q, Clause{Field: key, Op: op, Value: arg})
			if err != nil {
				return Condition{}, err
			}
			conds = append(conds, c)
		}
	}
	c := And(conds...)
	return c, c.err
}

func opSQL(op Operator) string {
	switch op {
	case Neq:
		return "<>"
	default:
		return strings.ToUpper(string(op))
	}
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	case []int64:
		out := make([]any, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out, true
	default:
		return nil, false
	}
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
