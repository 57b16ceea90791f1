// Package fallback drives backend adapters in priority order, retrying
// transient failures and failing over past fatal ones.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/socialpulse/harvester/internal/acquire/metrics"
	"github.com/socialpulse/harvester/internal/acquire/retry"
	"github.com/socialpulse/harvester/internal/core/domain"
	"github.com/socialpulse/harvester/internal/infra/backend"
)

// Config tunes the orchestrator.
type Config struct {
	// Cooldown is how long a fatally-failed backend is skipped.
	Cooldown time.Duration

	// Retry overrides the retry budget per backend name; DefaultRetry
	// covers everyone else.
	Retry        map[string]retry.Config
	DefaultRetry retry.Config
}

// DefaultCooldown is applied when the config leaves Cooldown zero.
const DefaultCooldown = 15 * time.Minute

// Result is what a successful (or partially successful) fetch yields.
type Result struct {
	Posts    []*domain.RawPost
	ServedBy string
	Partial  bool
}

// Orchestrator iterates backends in priority order, skipping cooled-down
// ones, and returns the first success or partial success. Only total
// exhaustion is surfaced as an error.
type Orchestrator struct {
	adapters []backend.Adapter
	cfg      Config
	states   *stateTable
	log      *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(adapters []backend.Adapter, cfg Config) *Orchestrator {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	now := time.Now
	return &Orchestrator{
		adapters: adapters,
		cfg:      cfg,
		states:   newStateTable(now),
		log:      slog.Default().With("component", "fallback"),
		now:      now,
		sleep:    sleepCtx,
	}
}

// Fetch runs the fallback chain for one request, appending every backend
// outcome to run. The returned error is always a *domain.AggregateError
// (every backend cooled down or failed) or a context error.
func (o *Orchestrator) Fetch(ctx context.Context, req backend.FetchRequest, run *domain.Run) (*Result, error) {
	reasons := make(map[string]string)

	for _, adapter := range o.adapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := adapter.Name()
		if !o.states.available(name) {
			o.log.Debug("skipping backend in cooldown", "backend", name)
			run.RecordAttempt(domain.BackendAttempt{Backend: name, Outcome: domain.OutcomeSkipped})
			reasons[name] = "cooling down"
			continue
		}

		res, attempt, err := o.drive(ctx, adapter, req)
		run.RecordAttempt(attempt)
		metrics.BackendAttempts.WithLabelValues(name, string(attempt.Outcome)).Inc()

		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		reasons[name] = err.Error()
		o.states.coolDown(name, o.cfg.Cooldown, err.Error())
		o.log.Warn("backend failed, falling over",
			"backend", name, "outcome", attempt.Outcome, "error", err)
	}

	return nil, &domain.AggregateError{Reasons: reasons}
}

// drive exercises one backend under its retry budget. A nil error means
// success or partial success (res.Partial distinguishes them); a non-nil
// error means this backend is done for the run and should cool down.
func (o *Orchestrator) drive(
	ctx context.Context,
	adapter backend.Adapter,
	req backend.FetchRequest,
) (*Result, domain.BackendAttempt, error) {
	name := adapter.Name()
	policy := retry.NewPolicy(o.retryConfig(name))

	var lastErr error
	for attempt := 0; attempt < policy.Budget(); attempt++ {
		start := o.now()
		posts, err := o.consume(ctx, adapter, req)
		metrics.FetchDuration.WithLabelValues(name).Observe(o.now().Sub(start).Seconds())

		if err == nil {
			metrics.PostsFetched.WithLabelValues(name, string(req.Stream)).Add(float64(len(posts)))
			return &Result{Posts: posts, ServedBy: name},
				domain.BackendAttempt{
					Backend: name,
					Outcome: domain.OutcomeSuccess,
					Items:   len(posts),
					Retries: attempt,
				}, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.BackendAttempt{Backend: name, Outcome: domain.OutcomeFatal, Error: err.Error()}, err
		}

		// Partial: the adapter yielded items before dying. Keep them,
		// abandon the rest, and do not bench the backend.
		if len(posts) > 0 {
			metrics.PostsFetched.WithLabelValues(name, string(req.Stream)).Add(float64(len(posts)))
			return &Result{Posts: posts, ServedBy: name, Partial: true},
				domain.BackendAttempt{
					Backend: name,
					Outcome: domain.OutcomePartial,
					Items:   len(posts),
					Retries: attempt,
					Error:   err.Error(),
				}, nil
		}

		lastErr = err
		if retry.Classify(err) == retry.ClassFatal {
			return nil, domain.BackendAttempt{
				Backend: name,
				Outcome: domain.OutcomeFatal,
				Retries: attempt,
				Error:   err.Error(),
			}, err
		}

		if attempt == policy.Budget()-1 {
			break
		}
		delay := policy.Delay(attempt)
		o.log.Debug("retrying backend", "backend", name, "attempt", attempt+1, "delay", delay)
		if err := o.sleep(ctx, delay); err != nil {
			return nil, domain.BackendAttempt{Backend: name, Outcome: domain.OutcomeFatal, Error: err.Error()}, err
		}
	}

	// Budget exhausted: escalate to fatal for this backend for this run.
	err := fmt.Errorf("retry budget exhausted after %d attempts: %w", policy.Budget(), lastErr)
	return nil, domain.BackendAttempt{
		Backend: name,
		Outcome: domain.OutcomeExhausted,
		Retries: policy.Budget() - 1,
		Error:   err.Error(),
	}, err
}

// consume opens the adapter's sequence and pulls it to completion or to
// the limit, checking for cancellation between items. Items pulled before
// a mid-sequence failure are returned alongside the error.
func (o *Orchestrator) consume(
	ctx context.Context,
	adapter backend.Adapter,
	req backend.FetchRequest,
) ([]*domain.RawPost, error) {
	it, err := adapter.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	var posts []*domain.RawPost
	for req.Limit <= 0 || len(posts) < req.Limit {
		if err := ctx.Err(); err != nil {
			return posts, err
		}
		p, err := it.Next(ctx)
		if errors.Is(err, backend.ErrEndOfStream) {
			break
		}
		if err != nil {
			return posts, err
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// Snapshot exposes per-backend cooldown state for health reporting.
func (o *Orchestrator) Snapshot() []BackendSnapshot {
	names := make([]string, 0, len(o.adapters))
	for _, a := range o.adapters {
		names = append(names, a.Name())
	}
	return o.states.snapshot(names)
}

func (o *Orchestrator) retryConfig(name string) retry.Config {
	if cfg, ok := o.cfg.Retry[name]; ok {
		return cfg
	}
	return o.cfg.DefaultRetry
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
