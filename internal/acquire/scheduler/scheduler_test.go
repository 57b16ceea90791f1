package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/socialpulse/harvester/internal/acquire/fallback"
	"github.com/socialpulse/harvester/internal/acquire/retry"
	"github.com/socialpulse/harvester/internal/acquire/validate"
	"github.com/socialpulse/harvester/internal/acquire/writer"
	"github.com/socialpulse/harvester/internal/core/domain"
	"github.com/socialpulse/harvester/internal/core/watermark"
	"github.com/socialpulse/harvester/internal/infra/backend"
	"github.com/socialpulse/harvester/internal/infra/storage/memory"
)

type scriptedAdapter struct {
	name  string
	err   error
	posts []*domain.RawPost

	mu      sync.Mutex // RunAll drives streams concurrently
	calls   int
	lastReq backend.FetchRequest
}

func (a *scriptedAdapter) Name() string { return a.name }

func (a *scriptedAdapter) Fetch(ctx context.Context, req backend.FetchRequest) (backend.Iterator, error) {
	a.mu.Lock()
	a.calls++
	a.lastReq = req
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return backend.NewSliceIterator(a.posts), nil
}

func ptr(v int64) *int64 { return &v }

func rawPost(id string, ts time.Time) *domain.RawPost {
	return &domain.RawPost{
		ExternalID: id,
		Author:     "indopopbase",
		Timestamp:  ts.Format(time.RFC3339),
		Text:       "post " + id,
		Likes:      ptr(1),
	}
}

type fixture struct {
	sched    *Scheduler
	store    *memory.MemoryStorage
	posts    *memory.PostRepo
	runs     *memory.RunRepo
	marks    *watermark.Manager
	adapters []*scriptedAdapter
}

func newFixture(t *testing.T, cfg Config, adapters ...*scriptedAdapter) *fixture {
	t.Helper()

	store := memory.NewMemoryStorage()
	posts := memory.NewPostRepo(store)
	runs := memory.NewRunRepo(store)
	marks := watermark.NewManager(memory.NewWatermarkRepo(store), 10*time.Minute)

	generic := make([]backend.Adapter, 0, len(adapters))
	for _, a := range adapters {
		generic = append(generic, a)
	}
	orch := fallback.New(generic, fallback.Config{
		Cooldown:     time.Hour,
		DefaultRetry: retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})

	dedup := validate.NewDeduplicator(posts, nil)
	w := writer.New(posts, marks)

	return &fixture{
		sched:    New(cfg, orch, validate.NewValidator(0), dedup, w, marks, runs),
		store:    store,
		posts:    posts,
		runs:     runs,
		marks:    marks,
		adapters: adapters,
	}
}

var (
	timelineKey = domain.StreamKey{Account: "indopopbase", Stream: domain.StreamTimeline}
	baseTime    = time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)
)

func baseConfig() Config {
	return Config{
		Account: "indopopbase",
		Streams: []domain.StreamType{domain.StreamTimeline},
		Limit:   100,
	}
}

func TestRunStream_FallsBackAndCommits(t *testing.T) {
	flaky := &scriptedAdapter{
		name: "api-bridge",
		err:  domain.NewRetryableError("api-bridge", errors.New("connection timed out")),
	}
	healthy := &scriptedAdapter{
		name: "mirror",
		posts: []*domain.RawPost{
			rawPost("1", baseTime),
			rawPost("2", baseTime.Add(time.Hour)),
			rawPost("3", baseTime.Add(30*time.Minute)),
		},
	}
	f := newFixture(t, baseConfig(), flaky, healthy)

	run, err := f.sched.RunStream(context.Background(), timelineKey)
	if err != nil {
		t.Fatalf("RunStream failed: %v", err)
	}

	if run.ServedBy != "mirror" {
		t.Errorf("Expected mirror to serve, got %s", run.ServedBy)
	}
	if run.ItemsNew != 3 || run.ItemsDuplicate != 0 || run.ItemsRejected != 0 {
		t.Errorf("Unexpected counters: %+v", run)
	}
	if len(run.Attempts) != 2 ||
		run.Attempts[0].Outcome != domain.OutcomeExhausted ||
		run.Attempts[1].Outcome != domain.OutcomeSuccess {
		t.Errorf("Unexpected attempt trail: %+v", run.Attempts)
	}

	count, _ := f.posts.CountByStream(context.Background(), timelineKey)
	if count != 3 {
		t.Errorf("Expected 3 stored posts, got %d", count)
	}

	wm, _ := f.marks.Get(context.Background(), timelineKey)
	if !wm.Position.Equal(baseTime.Add(time.Hour)) {
		t.Errorf("Expected watermark at newest admitted timestamp, got %v", wm.Position)
	}

	saved, _ := f.runs.Recent(context.Background(), timelineKey, 10)
	if len(saved) != 1 || saved[0].ID != run.ID {
		t.Errorf("Expected run audit persisted, got %v", saved)
	}
}

func TestRunStream_RerunIsIdempotent(t *testing.T) {
	healthy := &scriptedAdapter{
		name: "mirror",
		posts: []*domain.RawPost{
			rawPost("1", baseTime),
			rawPost("2", baseTime.Add(time.Hour)),
		},
	}
	f := newFixture(t, baseConfig(), healthy)
	ctx := context.Background()

	if _, err := f.sched.RunStream(ctx, timelineKey); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	second, err := f.sched.RunStream(ctx, timelineKey)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	if second.ItemsNew != 0 || second.ItemsDuplicate != 2 {
		t.Errorf("Expected all duplicates on re-run, got %+v", second)
	}
	count, _ := f.posts.CountByStream(ctx, timelineKey)
	if count != 2 {
		t.Errorf("Store must not grow on re-run, got %d", count)
	}
	wm, _ := f.marks.Get(ctx, timelineKey)
	if !wm.Position.Equal(baseTime.Add(time.Hour)) {
		t.Errorf("Watermark moved on all-duplicate run: %v", wm.Position)
	}
}

func TestRunStream_AggregateFailureLeavesWatermarkAlone(t *testing.T) {
	down := &scriptedAdapter{
		name: "api-bridge",
		err:  domain.NewFatalError("api-bridge", errors.New("login required")),
	}
	alsoDown := &scriptedAdapter{
		name: "mirror",
		err:  domain.NewFatalError("mirror", errors.New("account suspended")),
	}
	f := newFixture(t, baseConfig(), down, alsoDown)

	run, err := f.sched.RunStream(context.Background(), timelineKey)
	if !domain.IsAggregate(err) {
		t.Fatalf("Expected aggregate failure, got %v", err)
	}

	if run == nil || run.EndedAt.IsZero() {
		t.Fatal("Failed run must still be sealed")
	}
	if len(run.Attempts) != 2 {
		t.Errorf("Expected both backends in the trail, got %+v", run.Attempts)
	}

	wm, _ := f.marks.Get(context.Background(), timelineKey)
	if !wm.IsZero() {
		t.Error("Aggregate failure must not move the watermark")
	}

	// The failed run is still on the audit trail.
	saved, _ := f.runs.Recent(context.Background(), timelineKey, 10)
	if len(saved) != 1 {
		t.Errorf("Expected failed run persisted, got %d records", len(saved))
	}
}

func TestRunStream_RejectsWithoutAborting(t *testing.T) {
	bad := rawPost("2", baseTime)
	bad.Author = ""
	healthy := &scriptedAdapter{
		name: "mirror",
		posts: []*domain.RawPost{
			rawPost("1", baseTime),
			bad,
			{ExternalID: "3", Author: "indopopbase", Timestamp: "not a date", Text: "x"},
		},
	}
	f := newFixture(t, baseConfig(), healthy)

	run, err := f.sched.RunStream(context.Background(), timelineKey)
	if err != nil {
		t.Fatalf("RunStream failed: %v", err)
	}
	if run.ItemsNew != 1 || run.ItemsRejected != 2 {
		t.Errorf("Expected 1 new, 2 rejected, got %+v", run)
	}
	count, _ := f.posts.CountByStream(context.Background(), timelineKey)
	if count != 1 {
		t.Errorf("Expected 1 stored post, got %d", count)
	}
}

func TestRunStream_SinceOverrideWinsOverWatermark(t *testing.T) {
	healthy := &scriptedAdapter{name: "mirror", posts: []*domain.RawPost{rawPost("1", baseTime)}}

	override := baseTime.Add(-24 * time.Hour)
	cfg := baseConfig()
	cfg.SinceOverride = override
	f := newFixture(t, cfg, healthy)

	if _, err := f.sched.RunStream(context.Background(), timelineKey); err != nil {
		t.Fatalf("RunStream failed: %v", err)
	}
	if !healthy.lastReq.LowerBound.Equal(override) {
		t.Errorf("Expected override as lower bound, got %v", healthy.lastReq.LowerBound)
	}
}

func TestRunStream_LowerBoundPullsBackByOverlap(t *testing.T) {
	healthy := &scriptedAdapter{name: "mirror", posts: []*domain.RawPost{rawPost("1", baseTime)}}
	f := newFixture(t, baseConfig(), healthy)
	ctx := context.Background()

	if _, err := f.sched.RunStream(ctx, timelineKey); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	healthy.posts = nil
	if _, err := f.sched.RunStream(ctx, timelineKey); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	// Fixture overlap is 10 minutes behind the committed watermark.
	want := baseTime.Add(-10 * time.Minute)
	if !healthy.lastReq.LowerBound.Equal(want) {
		t.Errorf("Expected lower bound %v, got %v", want, healthy.lastReq.LowerBound)
	}
}

func TestRunAll_ExecutesEveryStream(t *testing.T) {
	healthy := &scriptedAdapter{name: "mirror", posts: []*domain.RawPost{rawPost("1", baseTime)}}

	cfg := baseConfig()
	cfg.Streams = []domain.StreamType{domain.StreamTimeline, domain.StreamMentions}
	f := newFixture(t, cfg, healthy)

	runs, err := f.sched.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if len(runs) != 2 || runs[0] == nil || runs[1] == nil {
		t.Fatalf("Expected a run per stream, got %v", runs)
	}
	if runs[0].Stream != domain.StreamTimeline || runs[1].Stream != domain.StreamMentions {
		t.Errorf("Runs out of order: %s, %s", runs[0].Stream, runs[1].Stream)
	}
}
