package sender

import (
	"math"
	"math/rand/v2"
	"time"
)

// ExponentialBackoff spaces out retries of a posting to the sink.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter spreads each delay by up to this fraction either way.
	Jitter float64

	rand func() float64
}

func NewExponentialBackoff(initial, max time.Duration) *ExponentialBackoff {
	if max < initial {
		max = initial
	}
	return &ExponentialBackoff{
		InitialDelay: initial,
		MaxDelay:     max,
		Multiplier:   2,
		Jitter:       0.1,
		rand:         rand.Float64,
	}
}

// NextDelay is the wait after the given zero-based failed attempt, never
// above MaxDelay.
func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	ceiling := float64(b.MaxDelay)
	delay := math.Min(float64(b.InitialDelay)*math.Pow(b.Multiplier, float64(attempt)), ceiling)

	r := rand.Float64
	if b.rand != nil {
		r = b.rand
	}
	delay *= 1 + b.Jitter*(2*r()-1)

	return time.Duration(math.Max(0, math.Min(delay, ceiling)))
}
