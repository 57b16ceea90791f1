package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/socialpulse/harvester/internal/acquire/retry"
	"github.com/socialpulse/harvester/internal/core/domain"
	"github.com/socialpulse/harvester/internal/infra/backend"
)

// =============================================================================
// Mock adapter
// =============================================================================

type fakeIterator struct {
	posts   []*domain.RawPost
	failPos int // fail when this many items were yielded, -1 = never
	err     error
	pos     int
}

func (it *fakeIterator) Next(ctx context.Context) (*domain.RawPost, error) {
	if it.failPos >= 0 && it.pos == it.failPos {
		return nil, it.err
	}
	if it.pos >= len(it.posts) {
		return nil, backend.ErrEndOfStream
	}
	p := it.posts[it.pos]
	it.pos++
	return p, nil
}

type fakeAdapter struct {
	name     string
	fetchErr []error // per call; nil entry means an iterator is returned
	iter     func() *fakeIterator
	calls    int
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) Fetch(ctx context.Context, req backend.FetchRequest) (backend.Iterator, error) {
	call := a.calls
	a.calls++
	if call < len(a.fetchErr) && a.fetchErr[call] != nil {
		return nil, a.fetchErr[call]
	}
	if a.iter != nil {
		return a.iter(), nil
	}
	return &fakeIterator{failPos: -1}, nil
}

func rawPosts(n int) []*domain.RawPost {
	posts := make([]*domain.RawPost, n)
	for i := range posts {
		posts[i] = &domain.RawPost{
			ExternalID: string(rune('a' + i)),
			Author:     "someone",
			Timestamp:  "2023-06-01T10:00:00Z",
			Text:       "hello",
		}
	}
	return posts
}

func newTestOrchestrator(adapters []backend.Adapter, cfg Config) (*Orchestrator, *[]time.Duration) {
	o := New(adapters, cfg)
	var delays []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return o, &delays
}

func req() backend.FetchRequest {
	return backend.FetchRequest{Account: "acct", Stream: domain.StreamTimeline, Limit: 100}
}

// =============================================================================
// Tests
// =============================================================================

func TestFetch_FallsOverPastFatalBackend(t *testing.T) {
	a := &fakeAdapter{name: "A", fetchErr: []error{domain.NewFatalError("A", errors.New("login required"))}}
	b := &fakeAdapter{name: "B", iter: func() *fakeIterator {
		return &fakeIterator{posts: rawPosts(2), failPos: -1}
	}}
	o, _ := newTestOrchestrator([]backend.Adapter{a, b}, Config{})

	run := &domain.Run{}
	res, err := o.Fetch(context.Background(), req(), run)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if res.ServedBy != "B" {
		t.Errorf("Expected B to serve, got %s", res.ServedBy)
	}
	if len(res.Posts) != 2 {
		t.Errorf("Expected 2 posts, got %d", len(res.Posts))
	}
	if b.calls != 1 {
		t.Errorf("Expected B invoked once, got %d", b.calls)
	}
	if len(run.Attempts) != 2 {
		t.Fatalf("Expected 2 recorded attempts, got %d", len(run.Attempts))
	}
	if run.Attempts[0].Outcome != domain.OutcomeFatal || run.Attempts[1].Outcome != domain.OutcomeSuccess {
		t.Errorf("Unexpected outcomes: %+v", run.Attempts)
	}
}

func TestFetch_AggregateFailureCarriesAllReasons(t *testing.T) {
	a := &fakeAdapter{name: "A", fetchErr: []error{domain.NewFatalError("A", errors.New("forbidden"))}}
	b := &fakeAdapter{name: "B", fetchErr: []error{domain.NewFatalError("B", errors.New("not found"))}}
	o, _ := newTestOrchestrator([]backend.Adapter{a, b}, Config{})

	run := &domain.Run{}
	_, err := o.Fetch(context.Background(), req(), run)
	if err == nil {
		t.Fatal("Expected aggregate failure")
	}

	var agg *domain.AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("Expected AggregateError, got %T", err)
	}
	if len(agg.Reasons) != 2 {
		t.Errorf("Expected 2 reasons, got %v", agg.Reasons)
	}
	for _, name := range []string{"A", "B"} {
		if _, ok := agg.Reasons[name]; !ok {
			t.Errorf("Missing reason for backend %s", name)
		}
	}
}

func TestFetch_RetryBudgetExhaustionEscalatesAndCoolsDown(t *testing.T) {
	transient := domain.NewRetryableError("A", errors.New("i/o timeout"))
	a := &fakeAdapter{name: "A", fetchErr: []error{transient, transient, transient}}
	b := &fakeAdapter{name: "B", iter: func() *fakeIterator {
		return &fakeIterator{posts: rawPosts(1), failPos: -1}
	}}
	o, delays := newTestOrchestrator([]backend.Adapter{a, b}, Config{
		DefaultRetry: retry.Config{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 30 * time.Second},
	})

	run := &domain.Run{}
	res, err := o.Fetch(context.Background(), req(), run)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if a.calls != 3 {
		t.Errorf("Expected 3 attempts against A, got %d", a.calls)
	}
	if len(*delays) != 2 {
		t.Fatalf("Expected 2 backoff delays, got %d", len(*delays))
	}
	if (*delays)[1] < (*delays)[0] {
		t.Errorf("Backoff delays decreased: %v", *delays)
	}
	if run.Attempts[0].Outcome != domain.OutcomeExhausted {
		t.Errorf("Expected A exhausted, got %s", run.Attempts[0].Outcome)
	}
	if res.ServedBy != "B" {
		t.Errorf("Expected B to serve, got %s", res.ServedBy)
	}
	if o.states.available("A") {
		t.Error("Expected A to be cooling down after exhaustion")
	}
}

func TestFetch_PartialKeepsItemsWithoutCooldown(t *testing.T) {
	a := &fakeAdapter{name: "A", iter: func() *fakeIterator {
		return &fakeIterator{
			posts:   rawPosts(5),
			failPos: 3,
			err:     domain.NewRetryableError("A", errors.New("connection reset")),
		}
	}}
	b := &fakeAdapter{name: "B"}
	o, _ := newTestOrchestrator([]backend.Adapter{a, b}, Config{})

	run := &domain.Run{}
	res, err := o.Fetch(context.Background(), req(), run)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if !res.Partial {
		t.Error("Expected partial result")
	}
	if len(res.Posts) != 3 {
		t.Errorf("Expected the 3 yielded items kept, got %d", len(res.Posts))
	}
	if b.calls != 0 {
		t.Error("Partial success must stop the chain before B")
	}
	if !o.states.available("A") {
		t.Error("Partial success must not cool the backend down")
	}
	if run.Attempts[0].Outcome != domain.OutcomePartial {
		t.Errorf("Expected partial outcome, got %s", run.Attempts[0].Outcome)
	}
}

func TestFetch_SkipsCoolingBackendUntilExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	a := &fakeAdapter{name: "A", iter: func() *fakeIterator {
		return &fakeIterator{posts: rawPosts(1), failPos: -1}
	}}
	o, _ := newTestOrchestrator([]backend.Adapter{a}, Config{Cooldown: time.Minute})
	o.states.now = clock
	o.states.coolDown("A", time.Minute, "forbidden")

	run := &domain.Run{}
	if _, err := o.Fetch(context.Background(), req(), run); err == nil {
		t.Fatal("Expected aggregate failure while A cools down")
	}
	if a.calls != 0 {
		t.Error("Cooling backend must not be invoked")
	}
	if run.Attempts[0].Outcome != domain.OutcomeSkipped {
		t.Errorf("Expected skipped outcome, got %s", run.Attempts[0].Outcome)
	}

	// Advance past the cooldown; the backend becomes available again.
	now = now.Add(2 * time.Minute)
	run2 := &domain.Run{}
	res, err := o.Fetch(context.Background(), req(), run2)
	if err != nil {
		t.Fatalf("Fetch after cooldown failed: %v", err)
	}
	if res.ServedBy != "A" {
		t.Errorf("Expected A available again, got %s", res.ServedBy)
	}
}

// cancelAfter cancels its context once n items have been yielded.
type cancelAfter struct {
	inner  backend.Iterator
	cancel context.CancelFunc
	n      int
	seen   int
}

func (it *cancelAfter) Next(ctx context.Context) (*domain.RawPost, error) {
	p, err := it.inner.Next(ctx)
	if err == nil {
		it.seen++
		if it.seen == it.n {
			it.cancel()
		}
	}
	return p, err
}

func TestFetch_CancellationBetweenItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &cancelAfterAdapter{cancel: cancel}
	o, _ := newTestOrchestrator([]backend.Adapter{a}, Config{})

	_, err := o.Fetch(ctx, req(), &domain.Run{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if !o.states.available("A") {
		t.Error("Cancellation must not cool a backend down")
	}
}

type cancelAfterAdapter struct {
	cancel context.CancelFunc
}

func (a *cancelAfterAdapter) Name() string { return "A" }

func (a *cancelAfterAdapter) Fetch(ctx context.Context, req backend.FetchRequest) (backend.Iterator, error) {
	return &cancelAfter{
		inner:  &fakeIterator{posts: rawPosts(10), failPos: -1},
		cancel: a.cancel,
		n:      2,
	}, nil
}

func TestFetch_LimitBoundsConsumption(t *testing.T) {
	a := &fakeAdapter{name: "A", iter: func() *fakeIterator {
		return &fakeIterator{posts: rawPosts(10), failPos: -1}
	}}
	o, _ := newTestOrchestrator([]backend.Adapter{a}, Config{})

	r := req()
	r.Limit = 4
	res, err := o.Fetch(context.Background(), r, &domain.Run{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(res.Posts) != 4 {
		t.Errorf("Expected 4 posts, got %d", len(res.Posts))
	}
}
