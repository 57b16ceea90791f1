package validate

import (
	"context"
	"log/slog"

	"github.com/socialpulse/harvester/internal/core/domain"
	"github.com/socialpulse/harvester/internal/infra/storage"
)

// SeenCache is an optional fast path in front of the store lookup. A cache
// miss is not authoritative; the store is always consulted for misses.
type SeenCache interface {
	// Contains returns the subset of keys the cache knows are stored.
	Contains(ctx context.Context, stream domain.StreamKey, keys []string) (map[string]struct{}, error)

	// Add records keys as stored.
	Add(ctx context.Context, stream domain.StreamKey, keys []string) error
}

// Deduplicator drops candidates whose dedup key was admitted earlier in
// this run or in any previous run (via cache/store).
type Deduplicator struct {
	posts storage.PostRepository
	cache SeenCache // nil when not configured
	log   *slog.Logger
}

func NewDeduplicator(posts storage.PostRepository, cache SeenCache) *Deduplicator {
	return &Deduplicator{
		posts: posts,
		cache: cache,
		log:   slog.Default().With("component", "dedup"),
	}
}

// Filter returns the posts whose keys are fresh, preserving order, along
// with the duplicate count. Within the batch the first occurrence of a key
// wins.
func (d *Deduplicator) Filter(ctx context.Context, stream domain.StreamKey, posts []*domain.Post) ([]*domain.Post, int, error) {
	if len(posts) == 0 {
		return nil, 0, nil
	}

	keys := make([]string, 0, len(posts))
	for _, p := range posts {
		keys = append(keys, p.DedupKey)
	}

	seen, err := d.known(ctx, stream, keys)
	if err != nil {
		return nil, 0, err
	}

	fresh := make([]*domain.Post, 0, len(posts))
	duplicates := 0
	for _, p := range posts {
		if _, dup := seen[p.DedupKey]; dup {
			duplicates++
			continue
		}
		seen[p.DedupKey] = struct{}{} // run-local admission
		fresh = append(fresh, p)
	}
	return fresh, duplicates, nil
}

// known resolves which keys are already stored, via cache then store.
func (d *Deduplicator) known(ctx context.Context, stream domain.StreamKey, keys []string) (map[string]struct{}, error) {
	known := make(map[string]struct{})

	remaining := keys
	if d.cache != nil {
		hits, err := d.cache.Contains(ctx, stream, keys)
		if err != nil {
			// Cache trouble degrades to store lookups only.
			d.log.Warn("seen-cache lookup failed", "error", err)
		} else {
			remaining = remaining[:0:0]
			for _, k := range keys {
				if _, ok := hits[k]; ok {
					known[k] = struct{}{}
				} else {
					remaining = append(remaining, k)
				}
			}
		}
	}

	if len(remaining) > 0 {
		stored, err := d.posts.ExistingKeys(ctx, stream, remaining)
		if err != nil {
			return nil, err
		}
		for k := range stored {
			known[k] = struct{}{}
		}
	}
	return known, nil
}

// MarkStored feeds freshly written keys back into the cache. Best-effort:
// the store remains the source of truth.
func (d *Deduplicator) MarkStored(ctx context.Context, stream domain.StreamKey, posts []*domain.Post) {
	if d.cache == nil || len(posts) == 0 {
		return
	}
	keys := make([]string, 0, len(posts))
	for _, p := range posts {
		keys = append(keys, p.DedupKey)
	}
	if err := d.cache.Add(ctx, stream, keys); err != nil {
		d.log.Warn("seen-cache update failed", "error", err)
	}
}
