package storage

import (
	"context"
	"errors"
	"time"

	"github.com/socialpulse/harvester/internal/core/domain"
)

var (
	// ErrWatermarkNotFound is returned when a stream has no watermark yet.
	ErrWatermarkNotFound = errors.New("watermark not found")
)

// PostRepository handles the durable, append-only post store.
type PostRepository interface {
	// SaveBatch appends posts. Duplicate dedup keys within the store are a
	// caller bug (dedup runs first) but must not corrupt the store.
	SaveBatch(ctx context.Context, posts []*domain.Post) error

	// ExistingKeys returns the subset of keys already stored for a stream.
	ExistingKeys(ctx context.Context, key domain.StreamKey, dedupKeys []string) (map[string]struct{}, error)

	// CountByStream returns how many posts a stream's store holds.
	CountByStream(ctx context.Context, key domain.StreamKey) (int, error)
}

// WatermarkRepository handles resumability positions.
type WatermarkRepository interface {
	// Get retrieves the watermark for a stream, ErrWatermarkNotFound if none.
	Get(ctx context.Context, key domain.StreamKey) (*domain.Watermark, error)

	// Save upserts the watermark.
	Save(ctx context.Context, wm *domain.Watermark) error

	// Delete removes the watermark so the next run starts from scratch.
	Delete(ctx context.Context, key domain.StreamKey) error
}

// RunRepository persists completed run audit records.
type RunRepository interface {
	// Save stores a completed run.
	Save(ctx context.Context, run *domain.Run) error

	// Recent returns the most recent runs for a stream, newest first.
	Recent(ctx context.Context, key domain.StreamKey, limit int) ([]*domain.Run, error)

	// DeleteOlderThan prunes run audit rows, returning rows removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
