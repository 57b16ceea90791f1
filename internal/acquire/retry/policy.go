// Package retry classifies backend failures and computes backoff delays.
package retry

import (
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/socialpulse/harvester/internal/core/domain"
)

// Class determines how the orchestrator reacts to a failure.
type Class int

const (
	// ClassRetryable consumes one attempt of the budget and backs off.
	ClassRetryable Class = iota
	// ClassFatal stops driving this backend and cools it down.
	ClassFatal
)

// Config defines one backend's retry behavior.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 1 * time.Second,
	MaxDelay:     30 * time.Second,
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultConfig.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultConfig.MaxDelay
	}
	return c
}

// Classify maps an adapter failure to a Class. Typed errors carry their own
// classification; anything else is sniffed from the message, defaulting to
// retryable because transient faults dominate in practice.
func Classify(err error) Class {
	if err == nil {
		return ClassRetryable // should not happen
	}

	var be *domain.BackendError
	if errors.As(err, &be) {
		if be.Kind == domain.KindFatal {
			return ClassFatal
		}
		return ClassRetryable
	}

	s := strings.ToLower(err.Error())

	// Fatal (auth walls, missing resources, permanent refusal)
	if strings.Contains(s, "401") || strings.Contains(s, "unauthorized") ||
		strings.Contains(s, "403") || strings.Contains(s, "forbidden") ||
		strings.Contains(s, "404") || strings.Contains(s, "not found") ||
		strings.Contains(s, "login required") ||
		strings.Contains(s, "account suspended") {
		return ClassFatal
	}

	// Retryable (timeouts, 5xx, rate limiting, flaky networks)
	return ClassRetryable
}

// Policy computes jittered exponential backoff. One Policy instance covers
// one attempt budget against one backend; the prev tracking keeps the
// jittered series non-decreasing.
type Policy struct {
	cfg  Config
	prev time.Duration
	rand func() float64 // 0..1, swappable in tests
}

func NewPolicy(cfg Config) *Policy {
	return &Policy{cfg: cfg.withDefaults(), rand: rand.Float64}
}

// Budget returns the attempt budget.
func (p *Policy) Budget() int { return p.cfg.MaxAttempts }

// Delay returns the backoff before retry number attempt (0-based). The raw
// delay is min(max, initial*2^attempt) scaled by jitter in [0.8, 1.2], then
// clamped to never fall below the previous delay of this budget.
func (p *Policy) Delay(attempt int) time.Duration {
	raw := p.cfg.InitialDelay << uint(attempt)
	if raw <= 0 || raw > p.cfg.MaxDelay { // <<= overflow guard
		raw = p.cfg.MaxDelay
	}

	jitter := 0.8 + 0.4*p.rand()
	d := time.Duration(float64(raw) * jitter)
	if d < p.prev {
		d = p.prev
	}
	p.prev = d
	return d
}
