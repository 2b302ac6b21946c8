package codec

import (
	"math"
	"reflect"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	// Any JSON-representable value must survive a marshal/unmarshal
	// round trip unchanged.
	values := []struct {
		name string
		v    any
	}{
		{"object", map[string]any{"id": float64(42), "title": "x"}},
		{"nested object", map[string]any{
			"user": map[string]any{"name": "ana", "active": true},
			"tags": []any{"travel", "food"},
		}},
		{"list of objects", []any{
			map[string]any{"id": float64(1)},
			map[string]any{"id": float64(2)},
		}},
		{"empty object", map[string]any{}},
		{"empty list", []any{}},
		{"string", "hello"},
		{"number", float64(3.5)},
		{"bool", true},
		{"null", nil},
	}

	for _, tt := range values {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Marshal(tt.v)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			decoded := Unmarshal(encoded)
			if !reflect.DeepEqual(decoded, tt.v) {
				t.Errorf("round trip mismatch: got %#v, want %#v", decoded, tt.v)
			}
		})
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	// Malformed payloads read as nil, the same as a cache miss.
	inputs := []string{"", "{not json", "[1,2", "\x00\x01"}
	for _, input := range inputs {
		if v := Unmarshal(input); v != nil {
			t.Errorf("Unmarshal(%q) = %#v, want nil", input, v)
		}
	}
}

func TestMarshalLossyFallback(t *testing.T) {
	t.Run("NaN degrades to string", func(t *testing.T) {
		encoded, err := Marshal(map[string]any{"score": math.NaN()})
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		if !strings.Contains(encoded, "NaN") {
			t.Errorf("expected NaN string form in payload, got %s", encoded)
		}
	})

	t.Run("channel degrades to string", func(t *testing.T) {
		encoded, err := Marshal(map[string]any{"ch": make(chan int)})
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		decoded, ok := Unmarshal(encoded).(map[string]any)
		if !ok {
			t.Fatalf("expected object payload, got %s", encoded)
		}
		if _, ok := decoded["ch"].(string); !ok {
			t.Errorf("expected string fallback for channel, got %#v", decoded["ch"])
		}
	})

	t.Run("typed list of maps", func(t *testing.T) {
		encoded, err := Marshal([]map[string]any{{"id": float64(7)}})
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		decoded, ok := Unmarshal(encoded).([]any)
		if !ok || len(decoded) != 1 {
			t.Fatalf("expected one-element list, got %#v", decoded)
		}
	})
}

func TestMarshalNil(t *testing.T) {
	encoded, err := Marshal(nil)
	if err != nil {
		t.Fatalf("Marshal(nil) failed: %v", err)
	}
	if encoded != "null" {
		t.Errorf("Marshal(nil) = %q, want null", encoded)
	}
	if Unmarshal(encoded) != nil {
		t.Error("null payload should decode to nil")
	}
}
