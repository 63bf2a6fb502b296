// Package retry holds the backoff policy shared by every acquisition path:
// profile fetches and the browser's challenge polling.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Policy is an exponential backoff with jitter, capped at Max.
// The zero value is usable after defaults are applied by New.
type Policy struct {
	// Attempts is the total number of tries. Default: 4.
	Attempts int
	// Base is the first backoff. Default: 2s.
	Base time.Duration
	// Max caps any single backoff. Default: 30s.
	Max time.Duration
	// Jitter is the fraction of the backoff added at random, in [0,1]. Zero disables it.
	Jitter float64

	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	// Rand returns a float in [0,1). Tests replace it.
	Rand func() float64
}

// New returns p with defaults filled in.
func New(p Policy) Policy {
	if p.Attempts <= 0 {
		p.Attempts = 4
	}
	if p.Base <= 0 {
		p.Base = 2 * time.Second
	}
	if p.Max <= 0 {
		p.Max = 30 * time.Second
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
	if p.Sleep == nil {
		p.Sleep = Sleep
	}
	if p.Rand == nil {
		p.Rand = rand.Float64
	}
	return p
}

// Backoff returns the wait after the given zero-based failed attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Max {
			d = p.Max
			break
		}
	}
	if p.Jitter > 0 && p.Rand != nil {
		d += time.Duration(float64(d) * p.Jitter * p.Rand())
	}
	if d > p.Max {
		d = p.Max
	}
	return d
}

// Wait sleeps for Backoff(attempt), returning early with ctx's error.
func (p Policy) Wait(ctx context.Context, attempt int) error {
	return p.Sleep(ctx, p.Backoff(attempt))
}

type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying; Do returns it unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// Do calls fn up to Attempts times, waiting between failures. It returns nil
// on the first success, the error of a Permanent failure, ctx's error if
// cancelled, or the last error once attempts are spent.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	var last error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		var perm *permanent
		if errors.As(err, &perm) {
			return perm.err
		}
		last = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < p.Attempts-1 {
			if werr := p.Wait(ctx, attempt); werr != nil {
				return werr
			}
		}
	}
	return last
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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
