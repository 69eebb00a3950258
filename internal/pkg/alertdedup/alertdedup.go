// Package alertdedup suppresses repeat rank alerts for the same
// keyword and direction inside a time window, backed by redis SetNX.
package alertdedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "sellerhub:alert:"

type Deduper struct {
	rdb    *redis.Client
	window time.Duration
}

func New(rdb *redis.Client, window time.Duration) *Deduper {
	if window <= 0 {
		window = 12 * time.Hour
	}
	return &Deduper{
		rdb: rdb,
		window: window,
	}
}

// ShouldSend reports whether an alert for this keyword/direction pair
// may go out. The first caller inside a window wins; later callers get
// false until the window expires. A nil client allows everything.
func (d *Deduper) ShouldSend(ctx context.Context, keywordID uint, direction string) (bool, error) {
	if d == nil || d.rdb == nil {
		return true, nil
	}
	key := fmt.Sprintf("%s%d:%s", keyPrefix, keywordID, direction)
	ok, err := d.rdb.SetNX(ctx, key, "1", d.window).Result()
	if err != nil {
		return true, fmt.Errorf("alert dedup setnx: %w", err)
	}
	return ok, nil
}

// Reset clears the window for one keyword/direction pair.
func (d *Deduper) Reset(ctx context.Context, keywordID uint, direction string) error {
	if d == nil || d.rdb == nil {
		return nil
	}
	key := fmt.Sprintf("%s%d:%s", keyPrefix, keywordID, direction)
	if err := d.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("alert dedup del: %w", err)
	}
	return nil
}
