package platform

import (
	"encoding/json"
	"math"
)

// Helpers for reading decoded call arguments. The JSON and proto codecs
// deliver every number as float64 and every object as map[string]any;
// calls built in process may carry native Go types instead.

type integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// AsFloat64 reads any numeric value, including json.Number.
func AsFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := asInteger(v); ok {
		return float64(i), true
	}
	return 0, false
}

// AsInt64 reads an integral numeric value. Floats with a fractional part,
// NaN and infinities are rejected.
func AsInt64(v any) (int64, bool) {
	if i, ok := asInteger(v); ok {
		return i, true
	}
	f, ok := AsFloat64(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// AsInt is AsInt64 narrowed to int.
func AsInt(v any) (int, bool) {
	n, ok := AsInt64(v)
	return int(n), ok
}

func asInteger(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return widen(n)
	case int8:
		return widen(n)
	case int16:
		return widen(n)
	case int32:
		return widen(n)
	case int64:
		return n, true
	case uint:
		return widen(n)
	case uint8:
		return widen(n)
	case uint16:
		return widen(n)
	case uint32:
		return widen(n)
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func widen[T integer](n T) (int64, bool) {
	return int64(n), true
}

// AsMap returns an object argument, or nil. Maps with non-string keys,
// as produced by some YAML or test fixtures, keep their string keys only.
func AsMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			if s, ok := k.(string); ok {
				out[s] = val
			}
		}
		return out
	}
	return nil
}

// AsSlice returns a list argument, or nil.
func AsSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []map[string]any:
		return toAny(s)
	case []string:
		return toAny(s)
	}
	return nil
}

func toAny[T any](s []T) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

// AsStrings returns the string elements of a list argument.
func AsStrings(v any) []string {
	items := AsSlice(v)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
