package adapters

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/speedwagon-io/idlerguard/internal/model"
)

const (
	rotationHz     = 30.0
	simulatedPeaks = 8
	noisePeaks     = 5
	probeTopN      = 8
	minWindow      = 32
)

var axisNames = []string{"X", "Y", "Z"}

// syntheticSpectrum builds the peak list of a simulated sample: the
// rotation fundamental with its 2nd and 3rd harmonics on every axis, a few
// broadband noise peaks, and the injected fault's frequencies if any.
func syntheticSpectrum(rng *rand.Rand, axes []string, values map[string]float64, faultFreqs []float64) []model.SpectralPeak {
	peaks := make([]model.SpectralPeak, 0, len(axes)*3+noisePeaks+len(faultFreqs))

	for _, axis := range axes {
		amp := math.Abs(values[axis]) * uniform(rng, 0.7, 1.0)
		peaks = append(peaks, model.SpectralPeak{Frequency: rotationHz, Amplitude: amp, Axis: axis})
		for _, h := range []float64{2, 3} {
			peaks = append(peaks, model.SpectralPeak{
				Frequency: rotationHz * h,
				Amplitude: amp / h * uniform(rng, 0.8, 1.2),
				Axis:      axis,
			})
		}
	}

	for i := 0; i < noisePeaks; i++ {
		peaks = append(peaks, model.SpectralPeak{
			Frequency: uniform(rng, 5, 300),
			Amplitude: uniform(rng, 0.01, 0.05),
			Axis:      axisNames[rng.IntN(len(axisNames))],
		})
	}

	for _, f := range faultFreqs {
		peaks = append(peaks, model.SpectralPeak{
			Frequency: f,
			Amplitude: uniform(rng, 0.1, 0.3),
			Axis:      axisNames[rng.IntN(len(axisNames))],
		})
	}

	return topPeaks(peaks, simulatedPeaks)
}

// probePeaks measures the magnitude of each probe frequency in samples
// (taken at sampleRate Hz) and returns the strongest ones. Frequencies at
// or above Nyquist are skipped.
func probePeaks(samples []float64, sampleRate float64, freqs []float64, axis string) []model.SpectralPeak {
	if len(samples) < minWindow {
		return nil
	}

	centered := make([]float64, len(samples))
	var mean float64
	for _, s := range samples {
		mean += s
	}
	mean /= float64(len(samples))
	for i, s := range samples {
		centered[i] = s - mean
	}

	peaks := make([]model.SpectralPeak, 0, len(freqs))
	for _, f := range freqs {
		if f <= 0 || f >= sampleRate/2 {
			continue
		}
		peaks = append(peaks, model.SpectralPeak{
			Frequency: f,
			Amplitude: goertzel(centered, sampleRate, f),
			Axis:      axis,
		})
	}
	return topPeaks(peaks, probeTopN)
}

// goertzel returns the single-sided amplitude of freq in samples.
func goertzel(samples []float64, sampleRate, freq float64) float64 {
	coeff := 2 * math.Cos(2*math.Pi*freq/sampleRate)
	var s1, s2 float64
	for _, x := range samples {
		s0 := x + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}
	power := s1*s1 + s2*s2 - coeff*s1*s2
	if power < 0 {
		power = 0
	}
	return 2 * math.Sqrt(power) / float64(len(samples))
}

func topPeaks(peaks []model.SpectralPeak, n int) []model.SpectralPeak {
	sort.SliceStable(peaks, func(i, j int) bool {
		return peaks[i].Amplitude > peaks[j].Amplitude
	})
	if len(peaks) > n {
		peaks = peaks[:n]
	}
	return peaks
}

func compositeMagnitude(values map[string]float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
