package judge0

import (
	"context"
	"time"
)

// Clock abstracts time so polling can be driven by a fake in tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
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

// Backoff is the retry policy used while polling: the wait starts at Initial,
// is multiplied by Multiplier after every failure and never exceeds Max.
// Deadline bounds the whole operation.
type Backoff struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
	Deadline   time.Time

	current time.Duration
}

func NewBackoff(initial time.Duration, multiplier float64, max time.Duration, deadline time.Time) *Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if multiplier < 1 {
		multiplier = 2
	}
	if max < initial {
		max = initial
	}
	return &Backoff{Initial: initial, Multiplier: multiplier, Max: max, Deadline: deadline, current: initial}
}

// Window is the wait the next failure would cause.
func (b *Backoff) Window() time.Duration {
	if b.current <= 0 {
		return b.Initial
	}
	return b.current
}

// Next returns the wait for the current failure and grows the window for the next one.
func (b *Backoff) Next() time.Duration {
	wait := b.Window()
	grown := time.Duration(float64(wait) * b.Multiplier)
	if grown > b.Max || grown <= 0 {
		grown = b.Max
	}
	b.current = grown
	return wait
}

func (b *Backoff) Reset() { b.current = b.Initial }

// Remaining is the time left before the deadline, never negative.
func (b *Backoff) Remaining(now time.Time) time.Duration {
	if d := b.Deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Exhausted reports whether waiting out the current window would cross the deadline.
func (b *Backoff) Exhausted(now time.Time) bool {
	return b.Remaining(now) <= b.Window()
}

// Clamp shortens d so that a sleep never goes past the deadline.
func (b *Backoff) Clamp(d time.Duration, now time.Time) time.Duration {
	if r := b.Remaining(now); d > r {
		return r
	}
	return d
}
