// Package statuscache keeps the last refresh outcome per keyword in
// redis so the API can show progress without touching the database.
package statuscache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	statusKeyPrefix  = "sellerhub:refresh_status:"
	messageKeyPrefix = "sellerhub:refresh_message:"
)

// Refresh outcomes stored per keyword.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// Set records the outcome of one refresh. message may be empty.
func (c *Cache) Set(ctx context.Context, keywordID uint, status, message string) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	key := fmt.Sprintf("%s%d", statusKeyPrefix, keywordID)
	if err := c.rdb.Set(ctx, key, status, c.ttl).Err(); err != nil {
		return fmt.Errorf("set refresh status: %w", err)
	}
	msgKey := fmt.Sprintf("%s%d", messageKeyPrefix, keywordID)
	if message == "" {
		if err := c.rdb.Del(ctx, msgKey).Err(); err != nil {
			return fmt.Errorf("clear refresh message: %w", err)
		}
		return nil
	}
	if err := c.rdb.Set(ctx, msgKey, message, c.ttl).Err(); err != nil {
		return fmt.Errorf("set refresh message: %w", err)
	}
	return nil
}

// Get returns the stored status and message; missing keys come back
// empty rather than as errors.
func (c *Cache) Get(ctx context.Context, keywordID uint) (status, message string) {
	if c == nil || c.rdb == nil {
		return "", ""
	}
	status, _ = c.rdb.Get(ctx, fmt.Sprintf("%s%d", statusKeyPrefix, keywordID)).Result()
	message, _ = c.rdb.Get(ctx, fmt.Sprintf("%s%d", messageKeyPrefix, keywordID)).Result()
	return status, message
}
