package fault

import (
	"math"
	"testing"

	"github.com/matryer/is"

	"github.com/speedwagon-io/idlerguard/internal/model"
)

func TestScoreEmptyPeaks(t *testing.T) {
	is := is.New(t)

	v := NewScorer(DefaultCatalog()).Score(nil)

	is.True(!v.Detected)
	is.Equal(v.FaultClass, "")
	is.Equal(len(v.Scores), 6)
	for class, score := range v.Scores {
		if score != 0 {
			t.Fatalf("class %s: expected zero score, got %v", class, score)
		}
	}
}

func TestScoreDetectsBearingOuter(t *testing.T) {
	is := is.New(t)

	peaks := []model.SpectralPeak{
		{Frequency: 85.4, Amplitude: 0.01, Axis: "X"},
		{Frequency: 103.6, Amplitude: 0.02, Axis: "Y"},
		{Frequency: 30, Amplitude: 0.9, Axis: "Z"},
	}

	v := NewScorer(DefaultCatalog()).Score(peaks)

	is.True(v.Detected)
	is.Equal(v.FaultClass, "bearing_outer")
	is.True(math.Abs(v.Confidence-0.3) < 1e-9)
	is.True(math.Abs(v.Scores["bearing_outer"]-0.3) < 1e-9)
}

func TestScoreClampsConfidence(t *testing.T) {
	is := is.New(t)

	v := NewScorer(DefaultCatalog()).Score([]model.SpectralPeak{{Frequency: 85.4, Amplitude: 0.5}})

	is.True(v.Detected)
	is.Equal(v.Confidence, 1.0)
	is.True(math.Abs(v.Scores["bearing_outer"]-5.0) < 1e-9)
}

func TestScoreBelowThreshold(t *testing.T) {
	is := is.New(t)

	v := NewScorer(DefaultCatalog()).Score([]model.SpectralPeak{{Frequency: 128.9, Amplitude: 0.01}})

	is.True(!v.Detected)
	is.Equal(v.FaultClass, "")
	is.Equal(v.Confidence, 0.0)
	is.True(v.Scores["bearing_outer"] > 0)
}

func TestScoreToleranceIsStrict(t *testing.T) {
	is := is.New(t)

	v := NewScorer(DefaultCatalog()).Score([]model.SpectralPeak{{Frequency: 88.5, Amplitude: 1}})
	is.Equal(v.Scores["bearing_outer"], 0.0)

	v = NewScorer(DefaultCatalog()).Score([]model.SpectralPeak{{Frequency: 87.9, Amplitude: 1}})
	is.Equal(v.Scores["bearing_outer"], 10.0)
}

// A peak at 47.1 Hz sits within tolerance of roller_defect (46.3) and
// unbalance (47.1); both get the full contribution and the earlier catalog
// entry wins the tie.
func TestScoreSharedPeakAndTieBreak(t *testing.T) {
	is := is.New(t)

	v := NewScorer(DefaultCatalog()).Score([]model.SpectralPeak{{Frequency: 47.1, Amplitude: 0.05}})

	is.Equal(v.Scores["roller_defect"], v.Scores["unbalance"])
	is.True(v.Detected)
	is.Equal(v.FaultClass, "roller_defect")
}

func TestScorerOptions(t *testing.T) {
	is := is.New(t)

	s := NewScorer(DefaultCatalog(), WithTolerance(0.5), WithWeight(1), WithThreshold(0.05))
	v := s.Score([]model.SpectralPeak{{Frequency: 47.1, Amplitude: 0.1}})

	is.True(v.Detected)
	is.Equal(v.FaultClass, "unbalance")
	is.Equal(v.Scores["roller_defect"], 0.0)
}

func TestNewCatalogValidation(t *testing.T) {
	cases := map[string][]Signature{
		"empty":          nil,
		"missing class":  {{Frequencies: []float64{1}}},
		"duplicate":      {{Class: "a", Frequencies: []float64{1}}, {Class: "a", Frequencies: []float64{2}}},
		"no frequencies": {{Class: "a"}},
		"bad frequency":  {{Class: "a", Frequencies: []float64{-1}}},
	}

	for name, sigs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewCatalog(sigs)
			if err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestCatalogIsReadOnly(t *testing.T) {
	is := is.New(t)

	c := DefaultCatalog()
	sigs := c.Signatures()
	sigs[0].Frequencies[0] = 1

	freqs, ok := c.Frequencies("bearing_outer")
	is.True(ok)
	is.Equal(freqs[0], 85.4)
	is.Equal(c.Classes()[0], "bearing_outer")
}
