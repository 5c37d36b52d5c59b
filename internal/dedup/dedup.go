// Package dedup drops inbound messages the bus delivers more than once.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/jackpot/internal/clock"
)

// DefaultWindow is how long a message id is remembered.
const DefaultWindow = 10 * time.Minute

// Filter remembers recently seen message ids.
type Filter struct {
	clock  clock.Clock
	window time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
}

func New(clk clock.Clock, window time.Duration) *Filter {
	if clk == nil {
		clk = clock.Real{}
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Filter{clock: clk, window: window, seen: make(map[string]time.Time)}
}

// Seen records id and reports whether it was already recorded within the
// window. An empty id is never a duplicate.
func (f *Filter) Seen(id string) bool {
	if id == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.Now()
	if at, ok := f.seen[id]; ok && now.Sub(at) <= f.window {
		return true
	}
	f.seen[id] = now
	return false
}

// Sweep forgets ids older than the window.
func (f *Filter) Sweep() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := f.clock.Now().Add(-f.window)
	removed := 0
	for id, at := range f.seen {
		if at.Before(cutoff) {
			delete(f.seen, id)
			removed++
		}
	}
	return removed
}

func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

// Run sweeps every interval until ctx is cancelled.
func (f *Filter) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = f.window
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.Sweep()
		}
	}
}
