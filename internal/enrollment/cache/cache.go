// Package cache fronts public status lookups. Entries are short lived and
// dropped whenever the enrollment's ledger changes; concurrent misses for the
// same token share one load.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"esfe/internal/enrollment/models"
)

var lookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "esfe_public_status_cache_total",
	Help: "Public status cache lookups by outcome",
}, []string{"outcome"})

const keyPrefix = "status:"

// Redis caches snapshots as JSON with a TTL. Redis errors degrade to a direct
// load; the ledger stays the source of truth.
type Redis struct {
	client redis.Cmdable
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

func NewRedis(client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, ttl: ttl, logger: logger}
}

func (c *Redis) Get(ctx context.Context, token string, load func(ctx context.Context) (*models.StatusSnapshot, error)) (*models.StatusSnapshot, error) {
	key := keyPrefix + token
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var snap models.StatusSnapshot
		if err := json.Unmarshal(raw, &snap); err == nil {
			lookups.WithLabelValues("hit").Inc()
			return &snap, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable status entry", "key", key)
	case !errors.Is(err, redis.Nil):
		lookups.WithLabelValues("error").Inc()
		c.logger.WarnContext(ctx, "status cache read failed", "error", err)
	}
	lookups.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(key, func() (any, error) {
		snap, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if blob, err := json.Marshal(snap); err == nil {
			if err := c.client.Set(ctx, key, blob, c.ttl).Err(); err != nil {
				c.logger.WarnContext(ctx, "status cache write failed", "error", err)
			}
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.StatusSnapshot), nil
}

func (c *Redis) Invalidate(ctx context.Context, token string) {
	if err := c.client.Del(ctx, keyPrefix+token).Err(); err != nil {
		c.logger.WarnContext(ctx, "status cache invalidate failed", "error", err)
	}
}

type entry struct {
	snap      *models.StatusSnapshot
	expiresAt time.Time
}

// Memory is the single-process variant.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
	group   singleflight.Group
	now     func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, entries: make(map[string]entry), now: time.Now}
}

func (c *Memory) Get(ctx context.Context, token string, load func(ctx context.Context) (*models.StatusSnapshot, error)) (*models.StatusSnapshot, error) {
	c.mu.Lock()
	e, ok := c.entries[token]
	if ok && c.now().Before(e.expiresAt) {
		c.mu.Unlock()
		lookups.WithLabelValues("hit").Inc()
		return e.snap, nil
	}
	delete(c.entries, token)
	c.mu.Unlock()
	lookups.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(token, func() (any, error) {
		snap, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[token] = entry{snap: snap, expiresAt: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.StatusSnapshot), nil
}

func (c *Memory) Invalidate(_ context.Context, token string) {
	c.mu.Lock()
	delete(c.entries, token)
	c.mu.Unlock()
}
