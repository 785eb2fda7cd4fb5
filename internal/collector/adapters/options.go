package adapters

import (
	"math/rand/v2"
	"time"
)

type deps struct {
	open Opener
	rng  *rand.Rand
	now  func() time.Time
}

type Option func(*deps)

// WithOpener replaces the serial port opener.
func WithOpener(open Opener) Option {
	return func(d *deps) { d.open = open }
}

func WithRand(rng *rand.Rand) Option {
	return func(d *deps) { d.rng = rng }
}

func WithClock(now func() time.Time) Option {
	return func(d *deps) { d.now = now }
}

func buildDeps(opts []Option) deps {
	d := deps{
		open: OpenSerial,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(&d)
	}
	if d.rng == nil {
		seed := uint64(time.Now().UnixNano())
		d.rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return d
}
