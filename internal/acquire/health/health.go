// Package health reports acquisition liveness: backend availability and
// watermark freshness per stream.
package health

import (
	"context"
	"time"

	"github.com/socialpulse/harvester/internal/acquire/fallback"
	"github.com/socialpulse/harvester/internal/core/domain"
	"github.com/socialpulse/harvester/internal/core/watermark"
)

// Status grades the service.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded" // some backends benched
	StatusCritical Status = "critical" // every backend benched
)

// StreamHealth reports one stream's acquisition position.
type StreamHealth struct {
	Stream        string    `json:"stream"`
	Watermark     time.Time `json:"watermark,omitzero"`
	WatermarkAge  string    `json:"watermark_age,omitempty"`
	HasCheckpoint bool      `json:"has_checkpoint"`
}

// Report is the full health snapshot.
type Report struct {
	Status   Status                     `json:"status"`
	Backends []fallback.BackendSnapshot `json:"backends"`
	Streams  []StreamHealth             `json:"streams"`
}

// Monitor assembles health reports.
type Monitor struct {
	orch    *fallback.Orchestrator
	marks   *watermark.Manager
	account string
	streams []domain.StreamType
	now     func() time.Time
}

func NewMonitor(orch *fallback.Orchestrator, marks *watermark.Manager, account string, streams []domain.StreamType) *Monitor {
	return &Monitor{orch: orch, marks: marks, account: account, streams: streams, now: time.Now}
}

// Check builds a point-in-time report. Worst case wins: all backends
// cooling is critical, any backend cooling is degraded.
func (m *Monitor) Check(ctx context.Context) Report {
	backends := m.orch.Snapshot()

	cooling := 0
	for _, b := range backends {
		if b.Status == fallback.StatusCoolingDown {
			cooling++
		}
	}
	status := StatusHealthy
	switch {
	case len(backends) > 0 && cooling == len(backends):
		status = StatusCritical
	case cooling > 0:
		status = StatusDegraded
	}

	streams := make([]StreamHealth, 0, len(m.streams))
	for _, stream := range m.streams {
		sh := StreamHealth{Stream: string(stream)}
		wm, err := m.marks.Get(ctx, domain.StreamKey{Account: m.account, Stream: stream})
		if err == nil && !wm.IsZero() {
			sh.Watermark = wm.Position
			sh.WatermarkAge = m.now().Sub(wm.Position).Truncate(time.Second).String()
			sh.HasCheckpoint = true
		}
		streams = append(streams, sh)
	}

	return Report{Status: status, Backends: backends, Streams: streams}
}
