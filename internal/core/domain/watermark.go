package domain

import "time"

// Watermark records the newest fully-processed position for one stream.
// It only moves forward, and only after a cycle completes without an
// aggregate failure; a crash mid-run therefore re-fetches an overlapping
// window and relies on dedup to make the overlap a no-op.
type Watermark struct {
	Account    string     `db:"account"`
	Stream     StreamType `db:"stream"`
	Position   time.Time  `db:"position"`
	ExternalID string     `db:"external_id"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

// IsZero reports whether no position has been recorded yet.
func (w *Watermark) IsZero() bool {
	return w == nil || w.Position.IsZero()
}

// LowerBound returns the fetch window start: the position pulled back by
// the overlap margin, guarding against backends that deliver out of order.
func (w *Watermark) LowerBound(overlap time.Duration) time.Time {
	if w.IsZero() {
		return time.Time{}
	}
	return w.Position.Add(-overlap)
}
