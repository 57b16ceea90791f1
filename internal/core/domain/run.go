package domain

import "time"

// AttemptOutcome is the terminal result of driving one backend in a run.
type AttemptOutcome string

const (
	OutcomeSuccess   AttemptOutcome = "success"
	OutcomePartial   AttemptOutcome = "partial"
	OutcomeExhausted AttemptOutcome = "exhausted" // retry budget spent
	OutcomeFatal     AttemptOutcome = "fatal"
	OutcomeSkipped   AttemptOutcome = "skipped" // cooling down, not invoked
)

// BackendAttempt records one backend's contribution to a run.
type BackendAttempt struct {
	Backend string         `json:"backend"`
	Outcome AttemptOutcome `json:"outcome"`
	Items   int            `json:"items"`
	Retries int            `json:"retries"`
	Error   string         `json:"error,omitempty"`
}

// Run is the audit record of one fetch-validate-write cycle for one
// (account, stream) pair. It is mutated only while the cycle executes and
// is immutable once EndedAt is set.
type Run struct {
	ID             string           `db:"id"`
	Account        string           `db:"account"`
	Stream         StreamType       `db:"stream"`
	StartedAt      time.Time        `db:"started_at"`
	EndedAt        time.Time        `db:"ended_at"`
	Attempts       []BackendAttempt `db:"-"`
	ServedBy       string           `db:"served_by"`
	ItemsNew       int              `db:"items_new"`
	ItemsDuplicate int              `db:"items_duplicate"`
	ItemsRejected  int              `db:"items_rejected"`
}

// RecordAttempt appends a backend outcome to the audit trail.
func (r *Run) RecordAttempt(a BackendAttempt) {
	r.Attempts = append(r.Attempts, a)
}

// Duration returns how long the run took, zero if still executing.
func (r *Run) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}
