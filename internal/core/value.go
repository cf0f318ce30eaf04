package core

// Raw is a SQL expression that is inlined verbatim into a statement instead of
// being bound as a parameter. Params holds the named parameters the expression
// references as :name.
type Raw struct {
	SQL    string
	Params map[string]any
}

// NewRaw creates a raw expression with optional named parameters.
func NewRaw(sql string, params map[string]any) Raw {
	return Raw{SQL: sql, Params: params}
}

// JSON wraps a structured value that must be stored as JSON text.
// A Payload that is already a string is stored unchanged.
type JSON struct {
	Payload any
}

// NewJSON wraps payload for storage as JSON text.
func NewJSON(payload any) JSON {
	return JSON{Payload: payload}
}

// IsScalar reports whether v is a string, integer or float.
func IsScalar(v any) bool {
	switch v.(type) {
	case string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

// NormalizeBodies turns a single body or a list of bodies into a list.
// It returns false when v is neither.
func NormalizeBodies(v any) ([]map[string]any, bool) {
	switch b := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return []map[string]any{b}, true
	case []map[string]any:
		return b, true
	case []any:
		bodies := make([]map[string]any, 0, len(b))
		for _, item := range b {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			bodies = append(bodies, m)
		}
		return bodies, true
	default:
		return nil, false
	}
}

// IsList reports whether v is a list of bodies rather than a single body.
func IsList(v any) bool {
	switch v.(type) {
	case []map[string]any, []any:
		return true
	default:
		return false
	}
}

// CloneBody returns a shallow copy of body.
func CloneBody(body map[string]any) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		out[k] = v
	}
	return out
}
