// Package equity maintains the bounded time series of account equity samples
// used for charting over selectable look-back windows. The recorder only ever
// reads ledger-derived values; it is a materialized view, never authoritative.
package equity

import (
	"fmt"
	"sync"
	"time"

	"papertrader/internal/domain"
	"papertrader/internal/ports"
)

const (
	DefaultMaxPoints = 4096
	DefaultMaxAge    = 30 * 24 * time.Hour
)

// rangeWindows maps the named look-back ranges to concrete durations.
// Bucket boundaries are a presentation choice, not safety-critical; they only
// need to be internally consistent.
var rangeWindows = map[string]time.Duration{
	"1h": time.Hour,
	"1d": 24 * time.Hour,
	"1w": 7 * 24 * time.Hour,
	"1m": 30 * 24 * time.Hour,
}

// RangeAll selects the entire retained series.
const RangeAll = "all"

// Recorder appends timestamped equity samples to an ordered series and evicts
// from the oldest end once the series exceeds its retention limits.
type Recorder struct {
	mu        sync.Mutex
	points    []domain.EquityPoint
	maxPoints int
	maxAge    time.Duration
	now       func() time.Time
}

// Config holds construction parameters for a Recorder.
type Config struct {
	MaxPoints int              // Retention cap by count; DefaultMaxPoints when <= 0
	MaxAge    time.Duration    // Retention cap by age; DefaultMaxAge when <= 0
	Now       func() time.Time // Clock for range queries; defaults to time.Now
}

// New creates a Recorder with the given retention policy.
func New(cfg Config) *Recorder {
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = DefaultMaxPoints
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		points:    make([]domain.EquityPoint, 0),
		maxPoints: cfg.MaxPoints,
		maxAge:    cfg.MaxAge,
		now:       now,
	}
}

// Record appends one equity sample and evicts points that fall outside the
// retention window. Samples are expected in time order.
func (r *Recorder) Record(at time.Time, equityValue float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.points = append(r.points, domain.EquityPoint{At: at, Equity: equityValue})

	if over := len(r.points) - r.maxPoints; over > 0 {
		r.points = r.points[over:]
	}
	cutoff := at.Add(-r.maxAge)
	idx := 0
	for idx < len(r.points) && r.points[idx].At.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		r.points = r.points[idx:]
	}
}

// Query returns a copy of the points whose timestamp falls within the named
// look-back range ending now ("1h", "1d", "1w", "1m"), or the full series for
// "all". It never mutates the underlying series and can be called repeatedly
// with different ranges.
func (r *Recorder) Query(rangeSelector string) ([]domain.EquityPoint, error) {
	if rangeSelector == RangeAll {
		r.mu.Lock()
		defer r.mu.Unlock()
		return append([]domain.EquityPoint(nil), r.points...), nil
	}

	window, ok := rangeWindows[rangeSelector]
	if !ok {
		return nil, fmt.Errorf("range %q: %w", rangeSelector, ports.ErrInvalidRequest)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	since := r.now().Add(-window)
	out := make([]domain.EquityPoint, 0)
	for _, p := range r.points {
		if !p.At.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Ranges returns the named look-back ranges, including "all".
func Ranges() []string {
	return []string{"1h", "1d", "1w", "1m", RangeAll}
}

// Window returns the duration behind a named look-back range. It reports
// false for "all" and for unknown names.
func Window(rangeSelector string) (time.Duration, bool) {
	window, ok := rangeWindows[rangeSelector]
	return window, ok
}

// Len returns the number of retained points.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.points)
}

// Clear drops all retained points. Used when the account is reset.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = r.points[:0]
}
