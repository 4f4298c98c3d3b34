package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultLedgerKeyPrefix namespaces ledger keys in Redis.
const DefaultLedgerKeyPrefix = "esa:ledger:"

// RedisLedger stores ids in a Redis set. Unlike FileLedger it is safe to
// share between processes.
type RedisLedger struct {
	client *redis.Client
	key    string
}

var _ Ledger = (*RedisLedger)(nil)

// NewRedisLedger returns a ledger stored in the set prefix+run.
// An empty prefix uses DefaultLedgerKeyPrefix.
func NewRedisLedger(client *redis.Client, prefix, run string) *RedisLedger {
	if prefix == "" {
		prefix = DefaultLedgerKeyPrefix
	}
	return &RedisLedger{client: client, key: prefix + run}
}

// Key returns the Redis set key.
func (l *RedisLedger) Key() string {
	return l.key
}

// Load implements Ledger.
func (l *RedisLedger) Load(ctx context.Context) (map[string]struct{}, error) {
	members, err := l.client.SMembers(ctx, l.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger %s: %w", l.key, err)
	}
	ids := make(map[string]struct{}, len(members))
	for _, m := range members {
		ids[m] = struct{}{}
	}
	return ids, nil
}

// Append implements Ledger.
func (l *RedisLedger) Append(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrEmptyID
	}
	if err := l.client.SAdd(ctx, l.key, id).Err(); err != nil {
		return fmt.Errorf("failed to append %s to ledger %s: %w", id, l.key, err)
	}
	return nil
}
