// Package throttle provides cooldown marker backends for the feedback controller.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps throttle markers as expiring Redis keys.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, prefix), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(respondentID, documentID int64) string {
	return Key(s.prefix, respondentID, documentID)
}

// IsThrottled reports whether a live marker exists for the pair.
func (s *RedisStore) IsThrottled(ctx context.Context, respondentID, documentID int64) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(respondentID, documentID)).Result()
	if err != nil {
		return false, fmt.Errorf("check throttle marker: %w", err)
	}
	return n > 0, nil
}

// SetThrottle writes the marker with the given lifetime, replacing any existing one.
func (s *RedisStore) SetThrottle(ctx context.Context, respondentID, documentID int64, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if err := s.client.Set(ctx, s.key(respondentID, documentID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("set throttle marker: %w", err)
	}
	return nil
}

// Remaining returns how long the marker stays alive, zero when there is none.
func (s *RedisStore) Remaining(ctx context.Context, respondentID, documentID int64) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, s.key(respondentID, documentID)).Result()
	if err != nil {
		return 0, fmt.Errorf("read throttle ttl: %w", err)
	}
	// -2 missing key, -1 no expiry
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// ErrInvalidTTL is returned when a marker is written without a positive lifetime.
var ErrInvalidTTL = errors.New("throttle ttl must be positive")

// Key builds the marker key: prefix, respondent id, "_", document id.
func Key(prefix string, respondentID, documentID int64) string {
	return fmt.Sprintf("%s%d_%d", prefix, respondentID, documentID)
}
