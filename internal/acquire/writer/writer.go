// Package writer persists admitted records and advances the watermark.
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/socialpulse/harvester/internal/acquire/metrics"
	"github.com/socialpulse/harvester/internal/core/domain"
	"github.com/socialpulse/harvester/internal/core/watermark"
	"github.com/socialpulse/harvester/internal/infra/storage"
)

// Writer is the single owner of durable-store appends and watermark
// updates. Append and Commit are split deliberately: records written by a
// run that later fails (or is cancelled) stay in the store, but the
// watermark only moves in Commit, after the cycle finished cleanly.
type Writer struct {
	posts storage.PostRepository
	marks *watermark.Manager
	log   *slog.Logger
}

func New(posts storage.PostRepository, marks *watermark.Manager) *Writer {
	return &Writer{
		posts: posts,
		marks: marks,
		log:   slog.Default().With("component", "writer"),
	}
}

// Append stores admitted posts for the stream.
func (w *Writer) Append(ctx context.Context, key domain.StreamKey, posts []*domain.Post) error {
	if len(posts) == 0 {
		return nil
	}
	if err := w.posts.SaveBatch(ctx, posts); err != nil {
		return fmt.Errorf("append posts: %w", err)
	}
	metrics.PostsAdmitted.WithLabelValues(string(key.Stream)).Add(float64(len(posts)))
	w.log.Debug("appended posts", "stream", key.String(), "count", len(posts))
	return nil
}

// Commit advances the watermark to the newest admitted timestamp, keeping
// max(current, newest): overlap re-fetches can deliver older posts the
// dedup set had not seen, and those must not move the watermark backwards
// or fail the cycle. Called only after the full cycle completed without an
// aggregate failure; an empty batch (all duplicates, or genuinely nothing
// new) leaves the watermark untouched.
func (w *Writer) Commit(ctx context.Context, key domain.StreamKey, posts []*domain.Post) error {
	newest, externalID := newestOf(posts)
	if newest.IsZero() {
		return nil
	}
	current, err := w.marks.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}
	if !current.IsZero() && !newest.After(current.Position) {
		return nil
	}
	if err := w.marks.Advance(ctx, key, newest, externalID); err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}
	return nil
}

func newestOf(posts []*domain.Post) (newest time.Time, externalID string) {
	for _, p := range posts {
		if p.Timestamp.After(newest) {
			newest = p.Timestamp
			externalID = p.ExternalID
		}
	}
	return newest, externalID
}
