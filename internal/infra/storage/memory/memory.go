// Package memory provides in-memory repository implementations, used when
// no database is configured and by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/socialpulse/harvester/internal/core/domain"
	"github.com/socialpulse/harvester/internal/infra/storage"
)

type MemoryStorage struct {
	posts      map[domain.StreamKey]map[string]*domain.Post
	watermarks map[domain.StreamKey]*domain.Watermark
	runs       []*domain.Run
	mu         sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		posts:      make(map[domain.StreamKey]map[string]*domain.Post),
		watermarks: make(map[domain.StreamKey]*domain.Watermark),
	}
}

// -----------------------------------------------------------------------------
// Post Repository
// -----------------------------------------------------------------------------

type PostRepo struct {
	store *MemoryStorage
}

func NewPostRepo(store *MemoryStorage) *PostRepo {
	return &PostRepo{store: store}
}

// The post store is keyed by stream only, matching the durable layout (one
// target account per deployment).
func streamOnly(s domain.StreamType) domain.StreamKey {
	return domain.StreamKey{Stream: s}
}

func (r *PostRepo) SaveBatch(ctx context.Context, posts []*domain.Post) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, p := range posts {
		key := streamOnly(p.Stream)
		byKey, ok := r.store.posts[key]
		if !ok {
			byKey = make(map[string]*domain.Post)
			r.store.posts[key] = byKey
		}
		if _, dup := byKey[p.DedupKey]; dup {
			continue
		}
		byKey[p.DedupKey] = p
	}
	return nil
}

func (r *PostRepo) ExistingKeys(ctx context.Context, key domain.StreamKey, dedupKeys []string) (map[string]struct{}, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make(map[string]struct{})
	byKey := r.store.posts[streamOnly(key.Stream)]
	for _, k := range dedupKeys {
		if _, ok := byKey[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out, nil
}

func (r *PostRepo) CountByStream(ctx context.Context, key domain.StreamKey) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.posts[streamOnly(key.Stream)]), nil
}

// -----------------------------------------------------------------------------
// Watermark Repository
// -----------------------------------------------------------------------------

type WatermarkRepo struct {
	store *MemoryStorage
}

func NewWatermarkRepo(store *MemoryStorage) *WatermarkRepo {
	return &WatermarkRepo{store: store}
}

func (r *WatermarkRepo) Get(ctx context.Context, key domain.StreamKey) (*domain.Watermark, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	wm, ok := r.store.watermarks[key]
	if !ok {
		return nil, storage.ErrWatermarkNotFound
	}
	cp := *wm
	return &cp, nil
}

func (r *WatermarkRepo) Save(ctx context.Context, wm *domain.Watermark) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *wm
	r.store.watermarks[domain.StreamKey{Account: wm.Account, Stream: wm.Stream}] = &cp
	return nil
}

func (r *WatermarkRepo) Delete(ctx context.Context, key domain.StreamKey) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.watermarks, key)
	return nil
}

// -----------------------------------------------------------------------------
// Run Repository
// -----------------------------------------------------------------------------

type RunRepo struct {
	store *MemoryStorage
}

func NewRunRepo(store *MemoryStorage) *RunRepo {
	return &RunRepo{store: store}
}

func (r *RunRepo) Save(ctx context.Context, run *domain.Run) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.runs = append(r.store.runs, run)
	return nil
}

func (r *RunRepo) Recent(ctx context.Context, key domain.StreamKey, limit int) ([]*domain.Run, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Run
	for _, run := range r.store.runs {
		if run.Account == key.Account && run.Stream == key.Stream {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *RunRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	kept := r.store.runs[:0]
	var removed int64
	for _, run := range r.store.runs {
		if run.EndedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, run)
	}
	r.store.runs = kept
	return removed, nil
}
