package record

import (
	"encoding/json"
	"fmt"

	"github.com/rzpsarthak13/relbatch/internal/core"
)

// Encode renders one attribute value into stmt and returns the SQL fragment
// that stands for it. A raw expression is inlined and its named params merged;
// a JSON value is marshalled unless already a string; any other value is cast
// through col and bound as a positional arg. A nil *core.Raw encodes NULL.
func Encode(stmt *core.Statement, value any, col core.Column) (string, error) {
	switch v := value.(type) {
	case core.Raw:
		return encodeRaw(stmt, v)
	case *core.Raw:
		if v == nil {
			stmt.Args = append(stmt.Args, nil)
			return "?", nil
		}
		return encodeRaw(stmt, *v)
	case core.JSON:
		text, err := jsonText(v.Payload)
		if err != nil {
			return "", err
		}
		stmt.Args = append(stmt.Args, text)
		return "?", nil
	default:
		stmt.Args = append(stmt.Args, col.Cast(value))
		return "?", nil
	}
}

func encodeRaw(stmt *core.Statement, raw core.Raw) (string, error) {
	if err := stmt.MergeParams(raw.Params); err != nil {
		return "", err
	}
	return raw.SQL, nil
}

func jsonText(payload any) (any, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case string:
		return p, nil
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON value: %w", err)
		}
		return string(b), nil
	}
}
