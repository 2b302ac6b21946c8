// Package session manages user session records in the key-value backend
// under "session:<user_id>". Sessions carry a created_at timestamp set at
// write time; backend TTL eviction is backed up by the cache manager's
// lazy expiry check and by PurgeExpired's maintenance sweep.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/wayfarer-social/backend/internal/codec"
	"github.com/wayfarer-social/backend/internal/kvstore"
)

// DefaultTTL is the session lifetime applied when Create passes ttl 0.
const DefaultTTL = 24 * time.Hour

// CreatedAtField is the record field stamped with the creation time.
const CreatedAtField = "created_at"

// Store creates, reads, and deletes session records.
type Store struct {
	kv         kvstore.Store
	defaultTTL time.Duration
	now        func() time.Time
}

// New creates a session store over the given backend with DefaultTTL.
func New(kv kvstore.Store) *Store {
	return NewWithTTL(kv, DefaultTTL)
}

// NewWithTTL creates a session store with a configured default TTL.
// A ttl of 0 selects DefaultTTL.
func NewWithTTL(kv kvstore.Store, ttl time.Duration) *Store {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Store{kv: kv, defaultTTL: ttl, now: time.Now}
}

// SetClock overrides the store's clock, for tests.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func sessionKey(userID int64) string { return fmt.Sprintf("session:%d", userID) }

// Create writes the session record for a user. The created_at field is
// always stamped with the current UTC time, overriding any caller value.
// TTL of 0 means use DefaultTTL.
func (s *Store) Create(ctx context.Context, userID int64, data map[string]any, ttl time.Duration) error {
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	if data == nil {
		data = make(map[string]any)
	}
	data[CreatedAtField] = s.now().UTC().Format(time.RFC3339)
	payload, err := codec.Marshal(data)
	if err != nil {
		return err
	}
	return s.kv.SetWithExpiry(ctx, sessionKey(userID), payload, ttl)
}

// Get retrieves a user's session record, or nil when absent or
// unreadable.
func (s *Store) Get(ctx context.Context, userID int64) (map[string]any, error) {
	payload, found, err := s.kv.Get(ctx, sessionKey(userID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	data, ok := codec.Unmarshal(payload).(map[string]any)
	if !ok {
		return nil, nil
	}
	return data, nil
}

// Delete removes a user's session. Returns true if one existed.
func (s *Store) Delete(ctx context.Context, userID int64) (bool, error) {
	return s.kv.Delete(ctx, sessionKey(userID))
}

// CreatedAt extracts the creation timestamp from a session record.
func CreatedAt(data map[string]any) (time.Time, bool) {
	raw, ok := data[CreatedAtField].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// PurgeExpired sweeps all session keys and deletes those without a live
// TTL: keys the backend has already let go of, or keys written without
// an expiry. The returned count exists for observability.
func (s *Store) PurgeExpired(ctx context.Context) (int, error) {
	purged := 0
	err := s.kv.Scan(ctx, "session:*", func(key string) error {
		_, live, err := s.kv.TTL(ctx, key)
		if err != nil {
			return err
		}
		if live {
			return nil
		}
		if _, err := s.kv.Delete(ctx, key); err != nil {
			return err
		}
		purged++
		return nil
	})
	return purged, err
}
