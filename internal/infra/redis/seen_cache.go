package redis

import (
	"context"
	"fmt"

	"github.com/socialpulse/harvester/internal/core/domain"
)

// SeenKeyCache is a Redis set of dedup keys per stream, a fast path in
// front of the store lookup. Entries are only added after the store write
// succeeded, so a hit is always trustworthy; a miss just means "ask the
// store".
type SeenKeyCache struct {
	client *Client
}

func NewSeenKeyCache(client *Client) *SeenKeyCache {
	return &SeenKeyCache{client: client}
}

func seenKey(stream domain.StreamKey) string {
	return fmt.Sprintf("seen_keys:%s:%s", stream.Account, stream.Stream)
}

// Contains returns the subset of keys present in the cache.
func (c *SeenKeyCache) Contains(ctx context.Context, stream domain.StreamKey, keys []string) (map[string]struct{}, error) {
	if len(keys) == 0 {
		return map[string]struct{}{}, nil
	}
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		members[i] = k
	}

	hits, err := c.client.rdb.SMIsMember(ctx, seenKey(stream), members...).Result()
	if err != nil {
		return nil, fmt.Errorf("smismember failed: %w", err)
	}

	out := make(map[string]struct{})
	for i, hit := range hits {
		if hit {
			out[keys[i]] = struct{}{}
		}
	}
	return out, nil
}

// Add records keys as stored.
func (c *SeenKeyCache) Add(ctx context.Context, stream domain.StreamKey, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	if err := c.client.rdb.SAdd(ctx, seenKey(stream), members...).Err(); err != nil {
		return fmt.Errorf("sadd failed: %w", err)
	}
	return nil
}
