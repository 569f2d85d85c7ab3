package provider

import (
	"context"
	"sync"
	"time"
)

// Pacer serializes provider calls and keeps at least delay between the
// start of consecutive calls. One Pacer is shared by all workers.
type Pacer struct {
	mu    sync.Mutex
	delay time.Duration
	last  time.Time
}

// NewPacer creates a pacer with the given inter-call delay.
func NewPacer(delay time.Duration) *Pacer {
	return &Pacer{delay: delay}
}

// Do waits for the caller's turn and runs fn. It returns ctx's error
// without calling fn if ctx is done while waiting.
func (p *Pacer) Do(ctx context.Context, fn func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.last.IsZero() {
		if wait := p.delay - time.Since(p.last); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.last = time.Now()
	return fn()
}
