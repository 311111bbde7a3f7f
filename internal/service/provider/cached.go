package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CapFlow/internal/domain/models"
	"CapFlow/internal/domain/repository"
	"CapFlow/pkg/cache"
	"CapFlow/pkg/logger"
	"CapFlow/pkg/util"
)

// Stale series are kept this many TTLs so an upstream outage can be bridged.
const staleRetention = 8

type cachedSeries struct {
	From         time.Time                 `json:"from"`
	To           time.Time                 `json:"to"`
	FetchedAt    time.Time                 `json:"fetched_at"`
	Observations []models.FlowObservation `json:"observations"`
}

func (s *cachedSeries) covers(from, to time.Time) bool {
	return !s.From.After(from) && !s.To.Before(to)
}

// Cached wraps a FlowSource with a TTL cache. A fresh entry covering the
// requested range is served locally; when the upstream fails, the last
// cached series is served instead.
type Cached struct {
	src   repository.FlowSource
	cache cache.Service
	ttl   time.Duration
	log   *logger.Logger
	now   func() time.Time
}

func NewCached(src repository.FlowSource, c cache.Service, ttl time.Duration, log *logger.Logger) *Cached {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Cached{src: src, cache: c, ttl: ttl, log: log, now: time.Now}
}

func (c *Cached) Name() string { return c.src.Name() }

func (c *Cached) Health(ctx context.Context) error { return c.src.Health(ctx) }

func (c *Cached) key() string {
	return cache.GenerateKeyWithParams("flows", c.src.Name())
}

// Fetch implements repository.FlowSource.
func (c *Cached) Fetch(ctx context.Context, from, to time.Time) ([]models.FlowObservation, error) {
	from, to = util.Day(from), util.Day(to)

	var entry cachedSeries
	err := c.cache.Get(ctx, c.key(), &entry)
	hit := err == nil
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		c.log.Warn("flow cache read failed", logger.Error(err))
	}

	if hit && entry.covers(from, to) && c.now().Sub(entry.FetchedAt) < c.ttl {
		return inRange(entry.Observations, from, to), nil
	}

	obs, err := c.src.Fetch(ctx, from, to)
	if err != nil {
		if hit {
			c.log.Warn("upstream fetch failed, serving cached series",
				logger.String("provider", c.src.Name()),
				logger.Time("fetched_at", entry.FetchedAt),
				logger.Error(err),
			)
			return inRange(entry.Observations, from, to), nil
		}
		return nil, fmt.Errorf("%s: %w", c.src.Name(), err)
	}

	entry = cachedSeries{From: from, To: to, FetchedAt: c.now(), Observations: obs}
	if err := c.cache.Set(ctx, c.key(), &entry, c.ttl*staleRetention); err != nil {
		c.log.Warn("flow cache write failed", logger.Error(err))
	}
	return obs, nil
}

// Invalidate drops the cached series so the next Fetch goes upstream.
func (c *Cached) Invalidate(ctx context.Context) error {
	return c.cache.Delete(ctx, c.key())
}

func inRange(obs []models.FlowObservation, from, to time.Time) []models.FlowObservation {
	out := make([]models.FlowObservation, 0, len(obs))
	for _, o := range obs {
		d := util.Day(o.Date)
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, o)
	}
	return out
}
