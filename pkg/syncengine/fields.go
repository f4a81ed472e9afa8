package syncengine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Accessors for loosely typed document fields. Documents arrive from JSON,
// CBOR or in-memory maps, so numbers and timestamps come in several shapes.

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func intField(m map[string]any, key string) (int64, error) {
	switch v := m[key].(type) {
	case nil:
		return 0, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%s: %d overflows int64", key, v)
		}
		return int64(v), nil
	case float32:
		return floatToInt(key, float64(v))
	case float64:
		return floatToInt(key, v)
	case json.Number:
		return v.Int64()
	case string:
		if v == "" {
			return 0, nil
		}
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("%s: unsupported number type %T", key, v)
	}
}

func floatToInt(key string, f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%s: %v is not an integer", key, f)
	}
	return int64(f), nil
}

// timeField reads a timestamp. Missing or unparseable values are the zero time.
func timeField(m map[string]any, key string) time.Time {
	switch v := m[key].(type) {
	case time.Time:
		return v.UTC()
	case *time.Time:
		if v != nil {
			return v.UTC()
		}
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// eventTime is the time a document claims it was last written.
func eventTime(fields map[string]any) time.Time {
	if t := timeField(fields, "updatedAt"); !t.IsZero() {
		return t
	}
	return timeField(fields, "createdAt")
}

// toPayload converts a row into its JSON object form.
func toPayload(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// fromPayload decodes a JSON object form into a row.
func fromPayload[T any](data map[string]any) (*T, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return &out, nil
}
