// Package ratelimit implements the per-conversation sliding-window spam gate.
package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultWindow    = 10 * time.Second
	DefaultThreshold = 5
)

// Store keeps rate windows keyed by conversation. Record appends now to the
// window for key, drops entries older than window, trims the result to the
// newest capacity entries and reports the window length before the append
// (after pruning) and after the trim.
type Store interface {
	Record(ctx context.Context, key string, now time.Time, window time.Duration, capacity int) (before, after int, err error)
}

// Verdict is the outcome of one CheckAndRecord call.
type Verdict struct {
	Tripped   bool
	FirstTrip bool // the window reached threshold+1 on this call
	Count     int
}

// Gate is a sliding-window spam detector.
type Gate struct {
	store     Store
	window    time.Duration
	threshold int
	now       func() time.Time
}

type Option func(*Gate)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate creates a Gate. Zero window or threshold select the defaults.
func NewGate(store Store, window time.Duration, threshold int, opts ...Option) *Gate {
	if store == nil {
		store = NewMemoryStore()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	g := &Gate{store: store, window: window, threshold: threshold, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Threshold returns the number of messages allowed per window.
func (g *Gate) Threshold() int { return g.threshold }

// CheckAndRecord records one message for key and reports whether the
// window is over the threshold. Store failures are logged and treated as
// not tripped.
func (g *Gate) CheckAndRecord(ctx context.Context, key string) Verdict {
	capacity := g.threshold + 1
	before, after, err := g.store.Record(ctx, key, g.now(), g.window, capacity)
	if err != nil {
		slog.Warn("ratelimit: record failed", "key", key, "err", err)
		return Verdict{}
	}
	tripped := after > g.threshold
	return Verdict{
		Tripped:   tripped,
		FirstTrip: tripped && before < capacity,
		Count:     after,
	}
}
