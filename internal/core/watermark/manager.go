// Package watermark tracks the acquisition position for each stream.
//
// The watermark is a bookmark: the newest timestamp known to be fully
// processed for one (account, stream) pair. It advances only after a cycle
// completes without an aggregate failure, and it never regresses, so a
// crash mid-run at worst re-fetches a window that dedup collapses to a
// no-op.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/socialpulse/harvester/internal/acquire/metrics"
	"github.com/socialpulse/harvester/internal/core/domain"
	"github.com/socialpulse/harvester/internal/infra/storage"
)

// ErrRegression is returned when an advance would move a watermark
// backwards. Callers treat it as a bug, not a recoverable condition.
var ErrRegression = errors.New("watermark regression")

// DefaultOverlap pulls fetch windows back behind the watermark to absorb
// backend result reordering.
const DefaultOverlap = 10 * time.Minute

// Manager mediates all watermark reads and writes.
type Manager struct {
	repo    storage.WatermarkRepository
	overlap time.Duration
	now     func() time.Time
}

func NewManager(repo storage.WatermarkRepository, overlap time.Duration) *Manager {
	if overlap <= 0 {
		overlap = DefaultOverlap
	}
	return &Manager{repo: repo, overlap: overlap, now: time.Now}
}

// Get returns the stream's watermark, or a zero-position watermark when
// none has been recorded yet.
func (m *Manager) Get(ctx context.Context, key domain.StreamKey) (*domain.Watermark, error) {
	wm, err := m.repo.Get(ctx, key)
	if errors.Is(err, storage.ErrWatermarkNotFound) {
		return &domain.Watermark{Account: key.Account, Stream: key.Stream}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load watermark: %w", err)
	}
	return wm, nil
}

// LowerBound returns the fetch window start for the stream: the watermark
// pulled back by the overlap margin, or zero time for a fresh stream.
func (m *Manager) LowerBound(ctx context.Context, key domain.StreamKey) (time.Time, error) {
	wm, err := m.Get(ctx, key)
	if err != nil {
		return time.Time{}, err
	}
	return wm.LowerBound(m.overlap), nil
}

// Advance moves the watermark to position, refusing regressions. Advancing
// to the current position is a no-op, not an error (an all-duplicates run
// lands here).
func (m *Manager) Advance(ctx context.Context, key domain.StreamKey, position time.Time, externalID string) error {
	current, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if !current.IsZero() {
		if position.Before(current.Position) {
			return fmt.Errorf("%w: %s -> %s", ErrRegression,
				current.Position.Format(time.RFC3339), position.Format(time.RFC3339))
		}
		if position.Equal(current.Position) {
			return nil
		}
	}

	wm := &domain.Watermark{
		Account:    key.Account,
		Stream:     key.Stream,
		Position:   position,
		ExternalID: externalID,
		UpdatedAt:  m.now().UTC(),
	}
	if err := m.repo.Save(ctx, wm); err != nil {
		return fmt.Errorf("save watermark: %w", err)
	}
	metrics.WatermarkTimestamp.WithLabelValues(key.Account, string(key.Stream)).Set(float64(position.Unix()))
	return nil
}

// Reset deletes the watermark so the next run starts from scratch.
func (m *Manager) Reset(ctx context.Context, key domain.StreamKey) error {
	if err := m.repo.Delete(ctx, key); err != nil {
		return fmt.Errorf("reset watermark: %w", err)
	}
	return nil
}
