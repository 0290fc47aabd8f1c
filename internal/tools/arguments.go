package tools

import (
	"encoding/json"
	"fmt"
	"math"
)

// Arguments are the decoded arguments of one call. Numbers arrive as
// json.Number after validation.
type Arguments map[string]any

// Has reports whether key is present, even when its value is null.
func (a Arguments) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// String returns the string value of key, or "" when absent, null or not a
// string.
func (a Arguments) String(key string) string {
	if s, ok := a[key].(string); ok {
		return s
	}
	return ""
}

// OptionalString returns nil when key is absent or null.
func (a Arguments) OptionalString(key string) *string {
	s, ok := a[key].(string)
	if !ok {
		return nil
	}
	return &s
}

// OptionalInt returns nil when key is absent or null, and an error when the
// value is not an integer.
func (a Arguments) OptionalInt(key string) (*int64, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &n, nil
}

// IntOrDefault returns def when key is absent, nil when it is explicitly
// null, and the value otherwise.
func (a Arguments) IntOrDefault(key string, def int) (*int, error) {
	v, ok := a[key]
	if !ok {
		return &def, nil
	}
	if v == nil {
		return nil, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	i := int(n)
	return &i, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, fmt.Errorf("not an integer: %s", n)
		}
		return floatToInt64(f)
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return floatToInt64(n)
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("not an integer: %T", v)
	}
}

func floatToInt64(f float64) (int64, error) {
	if f >= 1<<63 || f < -(1<<63) {
		return 0, fmt.Errorf("integer out of range: %v", f)
	}
	return int64(f), nil
}
