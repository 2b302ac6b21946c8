// Package cachestore provides the domain cache helpers for posts, comment
// lists, and the popular-posts list. Entries live in the key-value backend
// under the namespaced keys "post:<id>", "comments:<id>", and
// "popular_posts"; eviction is the backend's TTL.
package cachestore

import (
	"context"
	"fmt"
	"time"

	"github.com/wayfarer-social/backend/internal/codec"
	"github.com/wayfarer-social/backend/internal/kvstore"
)

// DefaultTTL is the content-cache TTL applied when a write passes ttl 0.
const DefaultTTL = time.Hour

// Store reads and writes cached domain entities. It holds no state beyond
// the backend handle; every call is a backend round-trip.
type Store struct {
	kv         kvstore.Store
	defaultTTL time.Duration
}

// New creates a Store over the given backend. defaultTTL of 0 selects
// DefaultTTL.
func New(kv kvstore.Store, defaultTTL time.Duration) *Store {
	if defaultTTL == 0 {
		defaultTTL = DefaultTTL
	}
	return &Store{kv: kv, defaultTTL: defaultTTL}
}

func postKey(postID int64) string     { return fmt.Sprintf("post:%d", postID) }
func commentsKey(postID int64) string { return fmt.Sprintf("comments:%d", postID) }

const popularPostsKey = "popular_posts"

// CachePost stores a post's data. TTL of 0 means use the default TTL.
// Writing nil data with a short TTL is the invalidation idiom: the entry
// is overwritten with a null payload that expires almost immediately.
func (s *Store) CachePost(ctx context.Context, postID int64, data map[string]any, ttl time.Duration) error {
	return s.set(ctx, postKey(postID), data, ttl)
}

// GetCachedPost retrieves a cached post. Returns nil on a miss or a
// malformed payload; only backend failures surface as errors.
func (s *Store) GetCachedPost(ctx context.Context, postID int64) (map[string]any, error) {
	v, err := s.get(ctx, postKey(postID))
	if err != nil {
		return nil, err
	}
	data, ok := v.(map[string]any)
	if !ok {
		return nil, nil
	}
	return data, nil
}

// CacheComments stores the comment list for a post. TTL of 0 means use
// the default TTL.
func (s *Store) CacheComments(ctx context.Context, postID int64, comments []map[string]any, ttl time.Duration) error {
	return s.set(ctx, commentsKey(postID), comments, ttl)
}

// GetCachedComments retrieves a post's cached comment list, or nil on a
// miss or malformed payload.
func (s *Store) GetCachedComments(ctx context.Context, postID int64) ([]map[string]any, error) {
	v, err := s.get(ctx, commentsKey(postID))
	if err != nil {
		return nil, err
	}
	return asMapList(v), nil
}

// SetPopularPosts replaces the popular-posts list. TTL of 0 means use the
// default TTL.
func (s *Store) SetPopularPosts(ctx context.Context, posts []map[string]any, ttl time.Duration) error {
	return s.set(ctx, popularPostsKey, posts, ttl)
}

// GetPopularPosts retrieves the popular-posts list, or nil when it is not
// cached.
func (s *Store) GetPopularPosts(ctx context.Context) ([]map[string]any, error) {
	v, err := s.get(ctx, popularPostsKey)
	if err != nil {
		return nil, err
	}
	return asMapList(v), nil
}

func (s *Store) set(ctx context.Context, key string, data any, ttl time.Duration) error {
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	payload, err := codec.Marshal(data)
	if err != nil {
		return err
	}
	return s.kv.SetWithExpiry(ctx, key, payload, ttl)
}

func (s *Store) get(ctx context.Context, key string) (any, error) {
	payload, found, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return codec.Unmarshal(payload), nil
}

// asMapList coerces a decoded payload into a list of objects. Anything
// else (including a null invalidation payload) reads as a miss.
func asMapList(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil
		}
		out = append(out, m)
	}
	return out
}
