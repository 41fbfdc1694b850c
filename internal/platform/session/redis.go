package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares SessionState across gateway instances. Keys expire on
// their own at twice the idle threshold so abandoned sessions do not
// accumulate; the idle gate still applies the exact threshold itself.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, idleTimeout time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: 2 * idleTimeout}
}

func sessionKey(userID string) string {
	return "gateway:session:" + userID
}

func (s *RedisStore) LastActivity(ctx context.Context, userID string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, sessionKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("session get: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("session parse: %w", err)
	}
	return at, true, nil
}

func (s *RedisStore) Touch(ctx context.Context, userID string, at time.Time) error {
	if err := s.client.Set(ctx, sessionKey(userID), at.UTC().Format(time.RFC3339Nano), s.ttl).Err(); err != nil {
		return fmt.Errorf("session touch: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("session clear: %w", err)
	}
	return nil
}
