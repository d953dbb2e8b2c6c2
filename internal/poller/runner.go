// internal/poller/runner.go
package poller

import (
	"context"
	"time"
)

// Run polls once at start, then on every tick, and emits each PollResult
// on out. One goroutine per poller. No overlap. No retries.
// A slow reader delays the next tick; missed ticks are dropped.
func (p *Poller) Run(ctx context.Context, out chan<- PollResult) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		res := p.PollOnce()
		select {
		case <-ctx.Done():
			return
		case out <- res:
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
