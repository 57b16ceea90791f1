package fallback

import (
	"sync"
	"time"

	"github.com/socialpulse/harvester/internal/acquire/metrics"
)

// BackendStatus is the availability state of one backend.
type BackendStatus string

const (
	StatusAvailable   BackendStatus = "available"
	StatusCoolingDown BackendStatus = "cooling_down"
)

// backendState tracks one backend's cooldown bookkeeping.
type backendState struct {
	status       BackendStatus
	coolingUntil time.Time
	lastError    string
	lastFailure  time.Time
}

// stateTable is the per-backend state machine map, keyed by backend
// identity. AVAILABLE -> (fatal failure) -> COOLING_DOWN(until) ->
// AVAILABLE once now >= until.
type stateTable struct {
	mu     sync.Mutex
	states map[string]*backendState
	now    func() time.Time
}

func newStateTable(now func() time.Time) *stateTable {
	return &stateTable{states: make(map[string]*backendState), now: now}
}

func (t *stateTable) get(name string) *backendState {
	if s, ok := t.states[name]; ok {
		return s
	}
	s := &backendState{status: StatusAvailable}
	t.states[name] = s
	return s
}

// available reports whether the backend may be invoked, transitioning
// expired cooldowns back to AVAILABLE on the way.
func (t *stateTable) available(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.get(name)
	if s.status == StatusCoolingDown && !t.now().Before(s.coolingUntil) {
		s.status = StatusAvailable
		s.coolingUntil = time.Time{}
		metrics.BackendCooling.WithLabelValues(name).Set(0)
	}
	return s.status == StatusAvailable
}

// coolDown puts the backend on the bench until now + d.
func (t *stateTable) coolDown(name string, d time.Duration, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.get(name)
	s.status = StatusCoolingDown
	s.coolingUntil = t.now().Add(d)
	s.lastError = reason
	s.lastFailure = t.now()
	metrics.BackendCooling.WithLabelValues(name).Set(1)
}

// BackendSnapshot is a point-in-time view of one backend's state, exposed
// for health reporting.
type BackendSnapshot struct {
	Name         string        `json:"name"`
	Status       BackendStatus `json:"status"`
	CoolingUntil time.Time     `json:"cooling_until,omitzero"`
	LastError    string        `json:"last_error,omitempty"`
}

func (t *stateTable) snapshot(names []string) []BackendSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]BackendSnapshot, 0, len(names))
	for _, name := range names {
		s := t.get(name)
		out = append(out, BackendSnapshot{
			Name:         name,
			Status:       s.status,
			CoolingUntil: s.coolingUntil,
			LastError:    s.lastError,
		})
	}
	return out
}
