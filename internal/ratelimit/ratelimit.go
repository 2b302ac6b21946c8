// Package ratelimit implements a fixed-window action counter backed by
// the key-value store, keyed "rate_limit:<subject>:<action>".
//
// The window is fixed, not sliding: the counter's TTL is set once when the
// window opens and increments never refresh it, so a burst of limit
// actions at the end of one window followed by limit more at the start of
// the next is permitted. The first-seen seed (read then set) is also
// unsynchronized across callers, so enforcement is approximate under
// concurrency. Both are accepted tradeoffs, not bugs.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/wayfarer-social/backend/internal/kvstore"
)

// DefaultWindow is the counting window applied when Allow passes 0.
const DefaultWindow = time.Hour

// Limiter enforces per-(subject, action) fixed-window limits.
type Limiter struct {
	kv kvstore.Store
}

// New creates a limiter over the given backend.
func New(kv kvstore.Store) *Limiter {
	return &Limiter{kv: kv}
}

func counterKey(subject, action string) string {
	return fmt.Sprintf("rate_limit:%s:%s", subject, action)
}

// Allow reports whether the subject may perform the action, counting this
// attempt when it does. A window of 0 means DefaultWindow. Denied
// attempts are not counted. Backend failures propagate so callers can
// tell "denied" from "couldn't check".
func (l *Limiter) Allow(ctx context.Context, subject, action string, limit int, window time.Duration) (bool, error) {
	if window == 0 {
		window = DefaultWindow
	}
	key := counterKey(subject, action)

	current, found, err := l.kv.Get(ctx, key)
	if err != nil {
		return false, err
	}

	if !found {
		// First action opens the window; always allowed.
		if err := l.kv.SetWithExpiry(ctx, key, "1", window); err != nil {
			return false, err
		}
		return true, nil
	}

	count, err := strconv.ParseInt(current, 10, 64)
	if err != nil {
		// Unreadable counter; treat as a fresh window.
		if err := l.kv.SetWithExpiry(ctx, key, "1", window); err != nil {
			return false, err
		}
		return true, nil
	}
	if count >= int64(limit) {
		return false, nil
	}

	// Increment without touching the TTL; the window does not slide.
	if _, err := l.kv.Incr(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}

// PurgeStale sweeps rate-limit counters without a live TTL, reclaiming
// keys whose expiry was never set. Returns the number removed.
func (l *Limiter) PurgeStale(ctx context.Context) (int, error) {
	purged := 0
	err := l.kv.Scan(ctx, "rate_limit:*", func(key string) error {
		_, live, err := l.kv.TTL(ctx, key)
		if err != nil {
			return err
		}
		if live {
			return nil
		}
		if _, err := l.kv.Delete(ctx, key); err != nil {
			return err
		}
		purged++
		return nil
	})
	return purged, err
}
