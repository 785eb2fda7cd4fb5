package fault

import (
	"math"

	"github.com/speedwagon-io/idlerguard/internal/model"
)

const (
	DefaultTolerance = 3.0
	DefaultWeight    = 10.0
	DefaultThreshold = 0.2
)

type Scorer struct {
	catalog   Catalog
	tolerance float64
	weight    float64
	threshold float64
}

type Option func(*Scorer)

func WithTolerance(hz float64) Option {
	return func(s *Scorer) { s.tolerance = hz }
}

func WithWeight(w float64) Option {
	return func(s *Scorer) { s.weight = w }
}

func WithThreshold(t float64) Option {
	return func(s *Scorer) { s.threshold = t }
}

func NewScorer(catalog Catalog, opts ...Option) *Scorer {
	s := &Scorer{
		catalog:   catalog,
		tolerance: DefaultTolerance,
		weight:    DefaultWeight,
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scorer) Catalog() Catalog {
	return s.catalog
}

// Score accumulates amplitude*weight for every peak within tolerance of a
// class frequency and reports the highest-scoring class if it clears the
// threshold. Confidence is the winning score clamped to 1.
func (s *Scorer) Score(peaks []model.SpectralPeak) model.FaultVerdict {
	scores := make(map[string]float64, s.catalog.Len())
	for _, sig := range s.catalog.signatures {
		scores[sig.Class] = 0
	}

	for _, p := range peaks {
		for _, sig := range s.catalog.signatures {
			for _, f := range sig.Frequencies {
				if math.Abs(p.Frequency-f) < s.tolerance {
					scores[sig.Class] += p.Amplitude * s.weight
				}
			}
		}
	}

	best, bestScore := "", math.Inf(-1)
	for _, sig := range s.catalog.signatures {
		if scores[sig.Class] > bestScore {
			best, bestScore = sig.Class, scores[sig.Class]
		}
	}

	if bestScore > s.threshold {
		return model.FaultVerdict{
			Detected:   true,
			FaultClass: best,
			Confidence: math.Min(bestScore, 1.0),
			Scores:     scores,
		}
	}
	return model.FaultVerdict{Scores: scores}
}
