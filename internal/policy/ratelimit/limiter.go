// Package ratelimit paces the requests of a single crawl.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/sitesnap/internal/crawler"
	"github.com/JakeFAU/sitesnap/internal/metrics"
)

// Pacer makes every call to Pause wait a full delay, however long the
// preceding fetch took. The limiter refills one token per delay; Pause empties
// the bucket before waiting on it.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a Pacer for delay. A non-positive delay never waits.
func NewPacer(delay time.Duration) *Pacer {
	if delay <= 0 {
		return &Pacer{}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

// Pause blocks for the delay or until ctx ends.
func (p *Pacer) Pause(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	start := time.Now()
	// A zero burst clamps the refilled tokens to nothing at start.
	p.limiter.SetBurstAt(start, 0)
	p.limiter.SetBurstAt(start, 1)
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pace crawl: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObservePaceDelay(waited)
	}
	return nil
}

// Factory adapts NewPacer to crawler.PacerFunc.
func Factory(delay time.Duration) crawler.Pacer {
	return NewPacer(delay)
}
