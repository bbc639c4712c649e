package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Deduper remembers processed delivery ids for a bounded time.
type Deduper interface {
	Seen(ctx context.Context, id string) (bool, error)
	// Remember records id; it reports false when id was already recorded.
	Remember(ctx context.Context, id string) (bool, error)
}

type deduper struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

func NewDeduper(rdb *goredis.Client, prefix string, ttl time.Duration) Deduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &deduper{rdb: rdb, prefix: strings.TrimSpace(prefix), ttl: ttl}
}

func (d *deduper) key(id string) string { return d.prefix + ":" + strings.TrimSpace(id) }

func (d *deduper) Seen(ctx context.Context, id string) (bool, error) {
	if d == nil || d.rdb == nil || strings.TrimSpace(id) == "" {
		return false, nil
	}
	err := d.rdb.Get(ctx, d.key(id)).Err()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *deduper) Remember(ctx context.Context, id string) (bool, error) {
	if d == nil || d.rdb == nil || strings.TrimSpace(id) == "" {
		return true, nil
	}
	return d.rdb.SetNX(ctx, d.key(id), time.Now().UTC().Unix(), d.ttl).Result()
}
