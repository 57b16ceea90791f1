package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/socialpulse/harvester/internal/infra/storage"
)

// Pruner deletes old run audit rows based on the retention policy.
type Pruner struct {
	retention time.Duration
	runs      storage.RunRepository
}

// NewPruner creates a new Pruner worker. A non-positive retention disables
// pruning.
func NewPruner(retention time.Duration, runs storage.RunRepository) *Pruner {
	return &Pruner{retention: retention, runs: runs}
}

// Start runs the pruner loop until ctx is cancelled.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.retention)
	removed, err := p.runs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("failed to prune run records", "error", err)
		return
	}
	if removed > 0 {
		slog.Debug("pruned run records", "removed", removed)
	}
}
