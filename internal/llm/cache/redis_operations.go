package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ring2236/ESA-DGR/internal/llm/transport"
)

// atomicCacheHitOrLease returns {1, value} on a hit, {2, false} when the
// lease was acquired, and {0, false} when another caller holds the lease.
//
// KEYS[1] = cacheKey
// KEYS[2] = leaseKey
// ARGV[1] = lease TTL in seconds
const atomicCacheHitOrLease = `
local cached = redis.call('GET', KEYS[1])
if cached then
	if string.len(cached) >= 2 and string.sub(cached, 1, 1) == '{' then
		return {1, cached}
	end
	redis.call('DEL', KEYS[1])
end
if redis.call('SET', KEYS[2], '1', 'NX', 'EX', ARGV[1]) then
	return {2, false}
end
return {0, false}
`

var script = redis.NewScript(atomicCacheHitOrLease)

type cacheStatus int

const (
	leaseFailed   cacheStatus = 0
	cacheHit      cacheStatus = 1
	leaseAcquired cacheStatus = 2
)

// cacheEntry is the persisted form of a cached response.
type cacheEntry struct {
	Content          string                    `json:"content"`
	ReasoningContent string                    `json:"reasoning_content,omitempty"`
	FinishReason     string                    `json:"finish_reason"`
	Usage            transport.NormalizedUsage `json:"usage"`
	StoredAtUnixMs   int64                     `json:"stored_at_ms"`
}

func (e *cacheEntry) response() *transport.Response {
	return &transport.Response{
		Content:          e.Content,
		ReasoningContent: e.ReasoningContent,
		FinishReason:     e.FinishReason,
		Usage:            e.Usage,
		CacheHit:         true,
	}
}

// atomicCheckAndLease checks the cache and acquires a lease on a miss in one round trip.
func (c *cacheMiddleware) atomicCheckAndLease(
	ctx context.Context, cacheKey, leaseKey string, leaseTTL time.Duration,
) (cacheStatus, *transport.Response, error) {
	result, err := script.Run(ctx, c.client, []string{cacheKey, leaseKey}, int(leaseTTL.Seconds())).Result()
	if err != nil {
		return leaseFailed, nil, fmt.Errorf("atomic check-and-lease failed: %w", err)
	}

	resultSlice, ok := result.([]any)
	if !ok || len(resultSlice) == 0 {
		return leaseFailed, nil, fmt.Errorf("unexpected script result %T", result)
	}
	statusCode, ok := resultSlice[0].(int64)
	if !ok {
		return leaseFailed, nil, fmt.Errorf("invalid status code in script result")
	}

	switch cacheStatus(statusCode) {
	case cacheHit:
		if len(resultSlice) < 2 {
			return leaseFailed, nil, errors.New("cache hit without payload")
		}
		raw, ok := resultSlice[1].(string)
		if !ok {
			return leaseFailed, nil, fmt.Errorf("invalid cached data type %T", resultSlice[1])
		}
		resp, err := decodeEntry([]byte(raw))
		if err != nil {
			return leaseFailed, nil, err
		}
		return cacheHit, resp, nil
	case leaseAcquired:
		return leaseAcquired, nil, nil
	default:
		return leaseFailed, nil, nil
	}
}

func decodeEntry(raw []byte) (*transport.Response, error) {
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("cache entry unmarshal failed: %w", err)
	}
	return entry.response(), nil
}

// get reads a cached response; a missing key is (nil, nil).
func (c *cacheMiddleware) get(ctx context.Context, key string) (*transport.Response, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeEntry(raw)
}

// set stores a successful response under key with the configured TTL.
func (c *cacheMiddleware) set(ctx context.Context, key string, resp *transport.Response) error {
	data, err := json.Marshal(cacheEntry{
		Content:          resp.Content,
		ReasoningContent: resp.ReasoningContent,
		FinishReason:     resp.FinishReason,
		Usage:            resp.Usage,
		StoredAtUnixMs:   time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("cache entry marshal failed: %w", err)
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}
