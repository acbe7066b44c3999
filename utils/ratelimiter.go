package utils

import (
	"context"
	"math/rand"
	"time"
)

// Pacer sleeps a random interval in [min, max] after each navigation
type Pacer struct {
	min time.Duration
	max time.Duration
}

// NewPacer creates a Pacer; max below min is clamped to min
func NewPacer(min, max time.Duration) *Pacer {
	if max < min {
		max = min
	}
	return &Pacer{min: min, max: max}
}

// Next picks the next delay
func (p *Pacer) Next() time.Duration {
	if p.max == p.min {
		return p.min
	}
	return p.min + time.Duration(rand.Int63n(int64(p.max-p.min)+1))
}

// Wait blocks for one randomized interval or until ctx is done
func (p *Pacer) Wait(ctx context.Context) error {
	d := p.Next()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
