package core

import (
	"fmt"
	"reflect"
	"strings"
)

// Statement is a SQL statement with positional arguments bound to ? and named
// parameters referenced as :name from inlined raw expressions.
// Building a Statement has no side effects; it runs only when submitted to a Conn.
type Statement struct {
	SQL    string
	Args   []any
	Params map[string]any

	// Table and Op describe a mutating statement for the journal and events.
	Table string
	Op    OperationType
}

// MergeParams adds params to the statement's named parameter map. A :name
// placeholder carries one value per statement, so a name already bound to a
// different value is an invalid argument.
func (s *Statement) MergeParams(params map[string]any) error {
	merged, err := MergeParams(s.Params, params)
	if err != nil {
		return err
	}
	s.Params = merged
	return nil
}

// MergeParams copies src into dst, allocating dst when needed, and returns it.
func MergeParams(dst, src map[string]any) (map[string]any, error) {
	if len(src) == 0 {
		return dst, nil
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		if prev, ok := dst[k]; ok && !reflect.DeepEqual(prev, v) {
			return dst, fmt.Errorf("%w: named parameter %q is bound to %v and %v", ErrInvalidArgument, k, prev, v)
		}
		dst[k] = v
	}
	return dst, nil
}

// Bind rewrites named parameters to positional placeholders and returns the
// SQL text with one argument per placeholder, in textual order.
// Quoted strings and identifiers are left untouched.
func (s Statement) Bind() (string, []any, error) {
	var (
		out   strings.Builder
		args  = make([]any, 0, len(s.Args)+len(s.Params))
		pos   int
		quote byte
		src   = s.SQL
	)
	out.Grow(len(src))

	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			out.WriteByte(c)
			if c == '\\' && quote != '`' && i+1 < len(src) {
				i++
				out.WriteByte(src[i])
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}

		switch {
		case c == '\'' || c == '"' || c == '`':
			quote = c
			out.WriteByte(c)
		case c == '?':
			if pos >= len(s.Args) {
				return "", nil, fmt.Errorf("statement has more placeholders than args (%d)", len(s.Args))
			}
			args = append(args, s.Args[pos])
			pos++
			out.WriteByte(c)
		case c == ':' && i+1 < len(src) && isIdentStart(src[i+1]) && (i == 0 || src[i-1] != ':'):
			j := i + 1
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			name := src[i+1 : j]
			value, ok := s.Params[name]
			if !ok {
				return "", nil, fmt.Errorf("missing value for named parameter %q", name)
			}
			args = append(args, value)
			out.WriteByte('?')
			i = j - 1
		default:
			out.WriteByte(c)
		}
	}

	if pos != len(s.Args) {
		return "", nil, fmt.Errorf("statement has %d placeholders but %d args", pos, len(s.Args))
	}
	return out.String(), args, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
