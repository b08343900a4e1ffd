package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMarks records "already done" markers with a TTL, e.g. sent reminders.
type RedisMarks struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisMarks(rdb *redis.Client) *RedisMarks {
	return &RedisMarks{rdb: rdb, prefix: "mark:"}
}

// Mark sets the marker and reports whether it was absent before.
func (m *RedisMarks) Mark(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := m.rdb.SetNX(ctx, m.prefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set mark %s: %w", key, err)
	}
	return ok, nil
}

// Unmark removes a marker so that the action can be retried.
func (m *RedisMarks) Unmark(ctx context.Context, key string) error {
	if err := m.rdb.Del(ctx, m.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete mark %s: %w", key, err)
	}
	return nil
}
