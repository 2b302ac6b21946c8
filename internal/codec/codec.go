// Package codec converts structured cache payloads to and from the string
// encoding stored in the key-value backend. Encoding is JSON; values
// without a JSON form degrade to their plain string representation rather
// than failing, so a cache write never errors on an odd scalar.
package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// Marshal encodes v as a JSON string. Nested maps and slices are encoded
// structurally; leaf values that JSON cannot represent (complex numbers,
// channels, functions, NaN/Inf floats) are replaced by their fmt string
// form. Lossy for such values.
func Marshal(v any) (string, error) {
	b, err := json.Marshal(sanitize(v))
	if err != nil {
		return "", fmt.Errorf("codec: marshal: %w", err)
	}
	return string(b), nil
}

// Unmarshal decodes a stored payload. Returns nil for empty or malformed
// input; callers treat that identically to a cache miss.
func Unmarshal(s string) any {
	if s == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}

// sanitize walks v and replaces values JSON cannot encode with their
// string form. Types with their own MarshalJSON (time.Time and friends)
// pass through untouched.
func sanitize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = sanitize(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = sanitize(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = sanitize(e)
		}
		return out
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Sprint(val)
		}
		return val
	case float32:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprint(val)
		}
		return val
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Chan, reflect.Func, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return fmt.Sprint(v)
	}
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprint(v)
	}
	return v
}
