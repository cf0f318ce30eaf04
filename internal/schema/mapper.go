package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rzpsarthak13/relbatch/internal/core"
)

// Kind is the storage family a database type belongs to.
type Kind int

const (
	KindUnknown Kind = iota
	KindInt
	KindUint
	KindFloat
	KindDecimal
	KindString
	KindBytes
	KindTime
	KindBool
	KindJSON
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// TypeMapper converts values to the representation a MySQL column stores.
type TypeMapper struct{}

// NewTypeMapper creates a new type mapper.
func NewTypeMapper() *TypeMapper {
	return &TypeMapper{}
}

// KindOf classifies a database type such as "varchar(255)" or "tinyint(1) unsigned".
func (tm *TypeMapper) KindOf(dbType string) Kind {
	t := strings.ToUpper(strings.TrimSpace(dbType))
	if strings.HasPrefix(t, "TINYINT(1)") || t == "BOOL" || t == "BOOLEAN" {
		return KindBool
	}
	unsigned := strings.Contains(t, "UNSIGNED")
	// The driver reports unsigned result columns as "UNSIGNED INT".
	t = strings.TrimPrefix(t, "UNSIGNED ")
	if idx := strings.IndexAny(t, "( "); idx > 0 {
		t = t[:idx]
	}

	switch t {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR":
		if unsigned {
			return KindUint
		}
		return KindInt
	case "FLOAT", "DOUBLE", "REAL":
		return KindFloat
	case "DECIMAL", "NUMERIC":
		return KindDecimal
	case "CHAR", "VARCHAR", "TEXT", "TINYTEXT", "MEDIUMTEXT", "LONGTEXT", "ENUM", "SET":
		return KindString
	case "BINARY", "VARBINARY", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BIT":
		return KindBytes
	case "DATE", "DATETIME", "TIMESTAMP", "TIME":
		return KindTime
	case "JSON":
		return KindJSON
	default:
		return KindUnknown
	}
}

// Convert converts value to the storage form of dbType.
// nil stays nil.
func (tm *TypeMapper) Convert(value any, dbType string) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch tm.KindOf(dbType) {
	case KindInt:
		return toInt64(value)
	case KindUint:
		return toUint64(value)
	case KindFloat:
		return toFloat64(value)
	case KindDecimal, KindString:
		return toString(value)
	case KindBytes:
		return toBytes(value)
	case KindTime:
		return toTime(value)
	case KindBool:
		return toBool(value)
	case KindJSON:
		return toJSONText(value)
	default:
		return value, nil
	}
}

// Caster returns a column caster for dbType. A value that cannot be
// converted is passed through unchanged and left for the engine to reject.
func (tm *TypeMapper) Caster(dbType string) func(any) any {
	if tm.KindOf(dbType) == KindUnknown {
		return nil
	}
	return func(v any) any {
		converted, err := tm.Convert(v, dbType)
		if err != nil {
			return v
		}
		return converted
	}
}

// FromDB converts a scanned driver value into a Go value for dbType.
// The MySQL driver returns most text protocol values as []byte.
func (tm *TypeMapper) FromDB(value any, dbType string) any {
	b, ok := value.([]byte)
	if !ok {
		return value
	}
	s := string(b)
	switch tm.KindOf(dbType) {
	case KindInt:
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
	case KindUint:
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return u
		}
	case KindFloat:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case KindBool:
		return s == "1"
	case KindBytes:
		return b
	}
	return s
}

// ApplyCasters sets a caster on every column of the schema that has none.
func (tm *TypeMapper) ApplyCasters(columns map[string]core.Column) {
	for name, col := range columns {
		if col.Caster == nil {
			col.Caster = tm.Caster(col.Type)
			columns[name] = col
		}
	}
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return v.Int64()
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert string to int64: %w", err)
		}
		return i, nil
	case []byte:
		return toInt64(string(v))
	default:
		return 0, fmt.Errorf("cannot convert %T to int64", value)
	}
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("float %v has a fractional part", f)
	}
	return int64(f), nil
}

func toUint64(value any) (uint64, error) {
	if s, ok := value.(string); ok {
		u, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert string to uint64: %w", err)
		}
		return u, nil
	}
	if u, ok := value.(uint64); ok {
		return u, nil
	}
	i, err := toInt64(value)
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, fmt.Errorf("negative value %d for unsigned column", i)
	}
	return uint64(i), nil
}

func toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert string to float64: %w", err)
		}
		return f, nil
	case []byte:
		return toFloat64(string(v))
	default:
		i, err := toInt64(value)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %T to float64", value)
		}
		return float64(i), nil
	}
}

func toString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	case json.Number:
		return v.String(), nil
	case time.Time:
		return v.Format(time.RFC3339), nil
	default:
		return "", fmt.Errorf("cannot convert %T to string", value)
	}
}

func toBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("cannot convert %T to []byte", value)
	}
}

func toTime(value any) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		// TIME columns hold durations the driver cannot express as time.Time.
		if strings.Count(v, ":") == 2 {
			return v, nil
		}
		return nil, fmt.Errorf("cannot parse time string: %s", v)
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case int:
		return time.Unix(int64(v), 0).UTC(), nil
	default:
		return nil, fmt.Errorf("cannot convert %T to time.Time", value)
	}
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b, nil
		}
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return false, fmt.Errorf("cannot convert string to bool: %w", err)
		}
		return i != 0, nil
	default:
		i, err := toInt64(value)
		if err != nil {
			return false, fmt.Errorf("cannot convert %T to bool", value)
		}
		return i != 0, nil
	}
}

// toJSONText returns JSON text for a JSON column. Strings and byte slices must
// already hold valid JSON.
func toJSONText(value any) (string, error) {
	switch v := value.(type) {
	case string:
		if !json.Valid([]byte(v)) {
			return "", fmt.Errorf("invalid JSON string")
		}
		return v, nil
	case []byte:
		if !json.Valid(v) {
			return "", fmt.Errorf("invalid JSON bytes")
		}
		return string(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("cannot marshal %T to JSON: %w", v, err)
		}
		return string(b), nil
	}
}
