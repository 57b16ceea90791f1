// Package scheduler composes one fetch-validate-write cycle per stream and
// runs independent streams concurrently.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/socialpulse/harvester/internal/acquire/fallback"
	"github.com/socialpulse/harvester/internal/acquire/metrics"
	"github.com/socialpulse/harvester/internal/acquire/validate"
	"github.com/socialpulse/harvester/internal/acquire/writer"
	"github.com/socialpulse/harvester/internal/core/domain"
	"github.com/socialpulse/harvester/internal/core/watermark"
	"github.com/socialpulse/harvester/internal/infra/backend"
	"github.com/socialpulse/harvester/internal/infra/storage"
)

// Config tunes one account's acquisition.
type Config struct {
	Account       string
	Streams       []domain.StreamType
	Limit         int
	SinceOverride time.Time     // non-zero overrides the watermark lower bound
	Interval      time.Duration // daemon mode poll interval
}

// Scheduler owns the Run and the watermark for each cycle it executes.
type Scheduler struct {
	cfg       Config
	orch      *fallback.Orchestrator
	validator *validate.Validator
	dedup     *validate.Deduplicator
	writer    *writer.Writer
	marks     *watermark.Manager
	runs      storage.RunRepository
	log       *slog.Logger
	now       func() time.Time
}

func New(
	cfg Config,
	orch *fallback.Orchestrator,
	validator *validate.Validator,
	dedup *validate.Deduplicator,
	w *writer.Writer,
	marks *watermark.Manager,
	runs storage.RunRepository,
) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		orch:      orch,
		validator: validator,
		dedup:     dedup,
		writer:    w,
		marks:     marks,
		runs:      runs,
		log:       slog.Default().With("component", "scheduler"),
		now:       time.Now,
	}
}

// RunStream executes one full cycle for key and returns the completed Run.
// On an aggregate failure the Run is still completed and persisted, the
// watermark stays put, and the error is surfaced to the caller.
func (s *Scheduler) RunStream(ctx context.Context, key domain.StreamKey) (*domain.Run, error) {
	run := &domain.Run{
		ID:        uuid.NewString(),
		Account:   key.Account,
		Stream:    key.Stream,
		StartedAt: s.now().UTC(),
	}
	log := s.log.With("run", run.ID, "stream", key.String())

	lower, err := s.lowerBound(ctx, key)
	if err != nil {
		return s.finish(ctx, run, err)
	}

	res, err := s.orch.Fetch(ctx, backend.FetchRequest{
		Account:    key.Account,
		Stream:     key.Stream,
		LowerBound: lower,
		Limit:      s.cfg.Limit,
	}, run)
	if err != nil {
		return s.finish(ctx, run, err)
	}
	run.ServedBy = res.ServedBy

	admitted := make([]*domain.Post, 0, len(res.Posts))
	for _, raw := range res.Posts {
		post, verr := s.validator.Validate(raw, key.Stream, res.ServedBy)
		if verr != nil {
			run.ItemsRejected++
			metrics.PostsRejected.WithLabelValues(string(key.Stream), verr.Field).Inc()
			log.Debug("rejected candidate", "reason", verr.Error())
			continue
		}
		admitted = append(admitted, post)
	}

	fresh, duplicates, err := s.dedup.Filter(ctx, key, admitted)
	if err != nil {
		return s.finish(ctx, run, fmt.Errorf("dedup: %w", err))
	}
	run.ItemsDuplicate = duplicates
	metrics.PostsDuplicate.WithLabelValues(string(key.Stream)).Add(float64(duplicates))

	if err := s.writer.Append(ctx, key, fresh); err != nil {
		return s.finish(ctx, run, err)
	}
	run.ItemsNew = len(fresh)
	s.dedup.MarkStored(ctx, key, fresh)

	// The cycle is complete; only now may the watermark move.
	if err := s.writer.Commit(ctx, key, fresh); err != nil {
		return s.finish(ctx, run, err)
	}

	log.Info("run complete",
		"served_by", run.ServedBy,
		"new", run.ItemsNew,
		"duplicate", run.ItemsDuplicate,
		"rejected", run.ItemsRejected)
	return s.finish(ctx, run, nil)
}

// RunAll executes every configured stream concurrently. Streams share no
// mutable state; each failure is reported through the group.
func (s *Scheduler) RunAll(ctx context.Context) ([]*domain.Run, error) {
	g, gctx := errgroup.WithContext(ctx)
	results := make([]*domain.Run, len(s.cfg.Streams))

	for i, stream := range s.cfg.Streams {
		key := domain.StreamKey{Account: s.cfg.Account, Stream: stream}
		g.Go(func() error {
			run, err := s.RunStream(gctx, key)
			results[i] = run
			return err
		})
	}

	err := g.Wait()
	return results, err
}

// Loop runs acquisition cycles on the configured interval until ctx is
// cancelled. One failed cycle does not stop the loop.
func (s *Scheduler) Loop(ctx context.Context) error {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunAll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error("acquisition cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) lowerBound(ctx context.Context, key domain.StreamKey) (time.Time, error) {
	if !s.cfg.SinceOverride.IsZero() {
		return s.cfg.SinceOverride, nil
	}
	return s.marks.LowerBound(ctx, key)
}

// finish seals the run, persists the audit record and passes err through.
func (s *Scheduler) finish(ctx context.Context, run *domain.Run, err error) (*domain.Run, error) {
	run.EndedAt = s.now().UTC()

	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.RunsTotal.WithLabelValues(string(run.Stream), result).Inc()

	// Audit persistence is best-effort: losing a run record must not turn
	// a successful cycle into a failed one.
	if s.runs != nil {
		if saveErr := s.runs.Save(context.WithoutCancel(ctx), run); saveErr != nil {
			s.log.Warn("failed to persist run record", "run", run.ID, "error", saveErr)
		}
	}
	return run, err
}
