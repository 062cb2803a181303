package monitor

import (
	"sync"
	"time"

	"github.com/wonny/vigil/internal/instrument"
	"github.com/wonny/vigil/internal/signal"
)

// RateLimiter enforces the sliding one-hour alert cap per instrument.
// State is in-process only and lost on restart; the worst case after
// a restart is a temporarily looser limit, never a wrong signal.
//
// Each instrument owns a cell with its own lock so bursts of
// overlapping ticks for different instruments never contend.
// ⭐ SSOT: 알림 횟수 제한은 여기서만
type RateLimiter struct {
	mu    sync.Mutex
	cells map[int64]*limitCell
}

type limitCell struct {
	mu     sync.Mutex
	stamps []time.Time // recent successful dispatch times
}

// NewRateLimiter creates an alert rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		cells: make(map[int64]*limitCell),
	}
}

const window = time.Hour

// Allow decides whether one more alert may be dispatched for the
// instrument at time now. On allow the dispatch timestamp is
// recorded, including for strong-signal bypasses.
func (l *RateLimiter) Allow(instrumentID int64, sig signal.Signal, policy instrument.AlertPolicy, now time.Time) bool {
	if !policy.Enabled || policy.MaxPerHour <= 0 {
		return true
	}

	cell := l.cell(instrumentID)
	cell.mu.Lock()
	defer cell.mu.Unlock()

	cell.prune(now)

	if policy.BypassStrongSignals && sig.IsStrong() {
		cell.stamps = append(cell.stamps, now)
		return true
	}

	if len(cell.stamps) >= policy.MaxPerHour {
		return false
	}

	cell.stamps = append(cell.stamps, now)
	return true
}

// Count returns how many dispatches are inside the window for an
// instrument. Used by the status surfaces.
func (l *RateLimiter) Count(instrumentID int64, now time.Time) int {
	cell := l.cell(instrumentID)
	cell.mu.Lock()
	defer cell.mu.Unlock()

	cell.prune(now)
	return len(cell.stamps)
}

func (l *RateLimiter) cell(instrumentID int64) *limitCell {
	l.mu.Lock()
	defer l.mu.Unlock()

	cell, ok := l.cells[instrumentID]
	if !ok {
		cell = &limitCell{}
		l.cells[instrumentID] = cell
	}
	return cell
}

// prune drops stamps older than the window. Caller holds cell.mu.
func (c *limitCell) prune(now time.Time) {
	cutoff := now.Add(-window)
	kept := c.stamps[:0]
	for _, ts := range c.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	c.stamps = kept
}
