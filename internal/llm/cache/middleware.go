// Package cache provides Redis-based caching middleware for model responses.
// Only deterministic requests (temperature 0) are cached. A short-lived lease
// keeps concurrent workers asking the same question from paying for it twice,
// and Redis failures degrade to a cache bypass.
package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ring2236/ESA-DGR/internal/llm/configuration"
	"github.com/ring2236/ESA-DGR/internal/llm/transport"
)

const (
	defaultPoolSize    = 10
	connectionTimeout  = 5 * time.Second
	leaseTimeout       = 30 * time.Second
	retryCheckInterval = 100 * time.Millisecond
	cleanupTimeout     = 5 * time.Second
)

// cacheMiddleware implements Redis-based caching for model responses.
type cacheMiddleware struct {
	client  *redis.Client
	ttl     time.Duration
	prefix  string
	enabled bool

	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// Middleware is the cache middleware plus its counters.
type Middleware struct {
	cm *cacheMiddleware
}

// NewCacheMiddlewareWithRedis creates a caching middleware for model responses.
// If client is nil and caching is enabled, a client is built from cfg; a failed
// ping disables caching rather than failing the run.
func NewCacheMiddlewareWithRedis(ctx context.Context, cfg configuration.CacheConfig, client *redis.Client) *Middleware {
	logger := slog.Default().With("component", "cache")
	if client == nil && cfg.Enabled {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: defaultPoolSize,
		})

		timeoutCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
		defer cancel()
		if err := client.Ping(timeoutCtx).Err(); err != nil {
			logger.Warn("Redis connection failed, cache disabled", "error", err)
			cfg.Enabled = false
		}
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = configuration.DefaultCacheKeyPrefix
	}

	return &Middleware{cm: &cacheMiddleware{
		client:  client,
		ttl:     cfg.TTL,
		prefix:  prefix,
		enabled: cfg.Enabled && client != nil,
		logger:  logger,
	}}
}

// Middleware returns the transport.Middleware.
func (m *Middleware) Middleware() transport.Middleware {
	return m.cm.middleware()
}

// Stats returns a snapshot of cache counters.
func (m *Middleware) Stats() Stats {
	return Stats{
		Hits:   m.cm.hits.Load(),
		Misses: m.cm.misses.Load(),
		Errors: m.cm.errors.Load(),
	}
}

func (c *cacheMiddleware) middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if !c.enabled || req.Temperature != configuration.DeterministicTemperature {
				return next.Handle(ctx, req)
			}

			fp, err := transport.Fingerprint(req)
			if err != nil {
				c.logger.Warn("cannot fingerprint request, bypassing cache", "error", err, "model", req.ModelID)
				return next.Handle(ctx, req)
			}
			key := transport.CacheKey(c.prefix, req.ModelID, fp)
			leaseKey := key + ":lease"

			status, cached, err := c.atomicCheckAndLease(ctx, key, leaseKey, leaseTimeout)
			acquired := status == leaseAcquired && err == nil

			switch status {
			case cacheHit:
				c.hits.Add(1)
				c.logger.Debug("cache hit", "key", key, "model", req.ModelID)
				return cached, nil

			case leaseAcquired:
				c.misses.Add(1)

			case leaseFailed:
				c.misses.Add(1)
				if err == nil {
					// Another worker holds the lease; wait once for its result.
					select {
					case <-time.After(retryCheckInterval):
						if resp, getErr := c.get(ctx, key); getErr == nil && resp != nil {
							c.hits.Add(1)
							return resp, nil
						}
					case <-ctx.Done():
						return nil, ctx.Err()
					}
				}
			}

			if err != nil {
				c.errors.Add(1)
				c.logger.Warn("cache/lease operation error", "error", err, "key", key)
			}

			if acquired {
				defer c.releaseLease(leaseKey) //nolint:contextcheck // Cleanup must outlive request cancellation.
			}

			resp, err := next.Handle(ctx, req)
			if err != nil {
				return nil, err
			}

			if setErr := c.set(ctx, key, resp); setErr != nil {
				c.errors.Add(1)
				c.logger.Warn("cache set error", "error", setErr, "key", key)
			}
			return resp, nil
		})
	}
}

func (c *cacheMiddleware) releaseLease(leaseKey string) {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := c.client.Del(cleanupCtx, leaseKey).Err(); err != nil {
		c.logger.Warn("lease cleanup error", "error", err, "key", leaseKey)
	}
}
