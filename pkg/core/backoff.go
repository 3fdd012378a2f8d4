package core

import (
	"math/rand"
	"time"
)

// Backoff produces successive retry delays
type Backoff interface {
	Next() time.Duration
	Reset()
}

// ExponentialBackoff doubles the delay from Base up to Max. Jitter adds up
// to that fraction of the delay at random.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64

	cur time.Duration
}

// NewExponentialBackoff creates a backoff starting at base and capped at max
func NewExponentialBackoff(base, max time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{Base: base, Max: max}
}

func (b *ExponentialBackoff) Next() time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if b.cur == 0 {
		b.cur = b.Base
	} else {
		b.cur *= 2
		if b.Max > 0 && b.cur > b.Max {
			b.cur = b.Max
		}
	}

	delay := b.cur
	if b.Jitter > 0 {
		delay += time.Duration(rand.Float64() * b.Jitter * float64(b.cur))
	}
	return delay
}

func (b *ExponentialBackoff) Reset() {
	b.cur = 0
}
