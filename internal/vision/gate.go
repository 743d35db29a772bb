// internal/vision/gate.go
package vision

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval keeps the recognizer under a 10 requests/minute quota.
const DefaultInterval = 7 * time.Second

// Gate serializes access to the vision model and enforces a minimum
// interval between the end of one exchange and the start of the next.
// A holder keeps the gate for the whole exchange, including any manual
// fallback, so callers sharing a Gate never overlap.
type Gate struct {
	interval time.Duration
	now      func() time.Time

	slot chan struct{}
	mu   sync.Mutex
	last time.Time
}

// NewGate creates a gate with the given minimum interval. A non-positive
// interval only serializes.
func NewGate(interval time.Duration) *Gate {
	g := &Gate{
		interval: interval,
		now:      time.Now,
		slot:     make(chan struct{}, 1),
	}
	g.slot <- struct{}{}
	return g
}

// Acquire blocks until the caller owns the gate and the interval since the
// previous release has elapsed. The returned release func must be called
// exactly once.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case <-g.slot:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	g.mu.Lock()
	last := g.last
	g.mu.Unlock()

	if !last.IsZero() {
		if wait := g.interval - g.now().Sub(last); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				g.slot <- struct{}{}
				return nil, ctx.Err()
			}
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.last = g.now()
			g.mu.Unlock()
			g.slot <- struct{}{}
		})
	}, nil
}

// Interval returns the configured minimum spacing.
func (g *Gate) Interval() time.Duration {
	return g.interval
}
