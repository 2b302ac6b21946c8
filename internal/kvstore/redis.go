package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store over a single shared go-redis client.
// The client is safe for concurrent use; no additional locking is added
// here. Operations are single round-trips with no retries; backend
// failures propagate wrapped in ErrBackendUnavailable.
type RedisStore struct {
	client *redis.Client
}

// NewRedis connects to the Redis backend at addr and verifies the
// connection with a ping.
func NewRedis(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: ping %s: %v", ErrBackendUnavailable, addr, err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisFromClient wraps an existing client. Used by tests running
// against miniredis.
func NewRedisFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: get %s: %v", ErrBackendUnavailable, key, err)
	}
	return val, true, nil
}

func (s *RedisStore) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrBackendUnavailable, key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: del %s: %v", ErrBackendUnavailable, key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: incr %s: %v", ErrBackendUnavailable, key, err)
	}
	return n, nil
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("%w: ttl %s: %v", ErrBackendUnavailable, key, err)
	}
	// go-redis reports -1 for a key without expiry and -2 for a missing
	// key; both count as "no live TTL" here.
	if d < 0 {
		return 0, false, nil
	}
	return d, true, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: expire %s: %v", ErrBackendUnavailable, key, err)
	}
	return ok, nil
}

func (s *RedisStore) Scan(ctx context.Context, pattern string, fn func(key string) error) error {
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: scan %s: %v", ErrBackendUnavailable, pattern, err)
	}
	return nil
}

// Info fetches a backend INFO section and parses its "field:value" lines.
func (s *RedisStore) Info(ctx context.Context, section string) (map[string]string, error) {
	raw, err := s.client.Info(ctx, section).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: info %s: %v", ErrBackendUnavailable, section, err)
	}
	fields := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			fields[k] = v
		}
	}
	return fields, nil
}

// Close releases the underlying client connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping verifies the backend connection, for health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrBackendUnavailable, err)
	}
	return nil
}
