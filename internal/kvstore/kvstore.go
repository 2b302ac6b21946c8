package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrBackendUnavailable wraps connection and protocol failures from the
// key-value backend. Callers distinguish it from absence, which is never
// an error.
var ErrBackendUnavailable = errors.New("kvstore: backend unavailable")

// Store defines the key-value primitives the cache layer is built on.
// Absence of a key is reported as a false/zero return, not an error.
type Store interface {
	// Get retrieves the string value at key.
	// Returns ("", false, nil) when the key does not exist.
	Get(ctx context.Context, key string) (string, bool, error)

	// SetWithExpiry stores value at key with the given TTL.
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes a key. Returns true if the key existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Incr atomically increments the integer counter at key, creating it
	// at 1 if absent. The increment itself is atomic at the backend.
	Incr(ctx context.Context, key string) (int64, error)

	// TTL reports the remaining TTL of key. The bool is false when the key
	// is missing or has no expiry set.
	TTL(ctx context.Context, key string) (time.Duration, bool, error)

	// Expire sets or refreshes the TTL on an existing key. Returns false
	// if the key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Scan iterates all keys matching the glob pattern, invoking fn for
	// each. The scan restarts from the beginning on every call; there is
	// no persistent cursor. Returning an error from fn aborts the scan.
	Scan(ctx context.Context, pattern string, fn func(key string) error) error

	// Info returns backend info fields for the given section (e.g.
	// "memory"), keyed by field name.
	Info(ctx context.Context, section string) (map[string]string, error)
}
