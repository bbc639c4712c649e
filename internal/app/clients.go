package app

import (
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/vidstream-backend/internal/platform/gcp"
	"github.com/yungbote/vidstream-backend/internal/platform/httpx"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
	"github.com/yungbote/vidstream-backend/internal/platform/mux"
	"github.com/yungbote/vidstream-backend/internal/platform/openai"
	"github.com/yungbote/vidstream-backend/internal/platform/redis"
	"github.com/yungbote/vidstream-backend/internal/temporalx"
)

type Clients struct {
	Redis    *goredis.Client
	EventBus redis.EventBus
	Dedupe   redis.Deduper

	Bucket   gcp.BucketService
	OpenAI   openai.Client
	Mux      mux.Client
	Fetcher  *httpx.Fetcher
	Temporal temporalsdkclient.Client
}

func wireClients(log *logger.Logger, cfg *Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Redis is optional; without it events are logged and dedupe is off.
	rdb, err := redis.NewClient()
	switch {
	case errors.Is(err, redis.ErrNotConfigured):
		log.Warn("REDIS_ADDR not set; job events logged only, webhook dedupe disabled")
	case err != nil:
		return Clients{}, fmt.Errorf("init redis: %w", err)
	default:
		out.Redis = rdb
		bus, err := redis.NewEventBus(log, rdb)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init redis event bus: %w", err)
		}
		out.EventBus = bus
		out.Dedupe = redis.NewDeduper(rdb, "vidstream:webhook:", cfg.WebhookDedupeTTL)
	}

	if out.Bucket, err = gcp.NewBucketService(log); err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init bucket client: %w", err)
	}
	if out.OpenAI, err = openai.NewClient(log); err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}
	if out.Mux, err = mux.NewClient(log); err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init mux client: %w", err)
	}
	out.Fetcher = httpx.NewFetcher()

	if out.Temporal, err = temporalx.NewClient(log); err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init temporal client: %w", err)
	}
	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	// The bus owns the redis connection once it exists.
	if c.EventBus != nil {
		_ = c.EventBus.Close()
	} else if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
