// Package backend defines the capability boundary between the acquisition
// core and concrete data sources. Each source (official API, mirror
// frontend, headless browser bridge, ...) sits behind the same Adapter
// interface so the orchestrator never learns source-specific details.
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/socialpulse/harvester/internal/core/domain"
)

// ErrEndOfStream is returned by Iterator.Next when the sequence is
// exhausted. It signals normal completion, not a failure.
var ErrEndOfStream = errors.New("end of stream")

// FetchRequest bounds one fetch against a single backend.
type FetchRequest struct {
	Account    string
	Stream     domain.StreamType
	LowerBound time.Time // zero means "from the beginning"
	Limit      int       // maximum items the caller will consume
}

// Iterator yields candidate posts lazily. It is finite and not
// restartable: once Next fails or returns ErrEndOfStream, a fresh Fetch is
// required to read again (and it will re-fetch from the lower bound).
type Iterator interface {
	// Next returns the next candidate, ErrEndOfStream when done, or a
	// backend failure. Partial results consumed before a failure are the
	// caller's to keep.
	Next(ctx context.Context) (*domain.RawPost, error)
}

// Adapter is one pluggable data source. Implementations classify their own
// failures via domain.BackendError where they can; untyped errors are
// classified heuristically by the retry policy.
type Adapter interface {
	// Name returns the stable backend identity used for priority ordering,
	// cooldown bookkeeping and audit records.
	Name() string

	// Fetch opens a lazy sequence of raw candidates. It may fail
	// immediately (connection refused, auth wall) or at any point while
	// the sequence is consumed.
	Fetch(ctx context.Context, req FetchRequest) (Iterator, error)
}

// SliceIterator adapts an in-memory slice to the Iterator contract. Used
// by adapters that can only fetch eagerly, and by tests.
type SliceIterator struct {
	posts []*domain.RawPost
	pos   int
}

func NewSliceIterator(posts []*domain.RawPost) *SliceIterator {
	return &SliceIterator{posts: posts}
}

func (it *SliceIterator) Next(ctx context.Context) (*domain.RawPost, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.posts) {
		return nil, ErrEndOfStream
	}
	p := it.posts[it.pos]
	it.pos++
	return p, nil
}
