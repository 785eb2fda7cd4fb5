package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/speedwagon-io/idlerguard/internal/fault"
	"github.com/speedwagon-io/idlerguard/internal/lib/logger/sl"
	"github.com/speedwagon-io/idlerguard/internal/model"
)

const (
	defaultAxes        = 3
	defaultWindow      = 256
	defaultFaultChance = 0.002
	vibrationBaseline  = 0.1
	vibrationUnit      = "g"
	compositeAxis      = "composite"
)

// Vibration is a tri-axial accelerometer probe on a serial line.
//
// Params: baud_rate, data_bits, stop_bits, axis (1-3), window (samples
// kept for peak probing), fault_probability (simulation only).
type Vibration struct {
	log    *slog.Logger
	cfg    model.SensorConfig
	scorer *fault.Scorer
	open   Opener
	rng    *rand.Rand
	now    func() time.Time

	axes        []string
	faultChance float64
	probes      []float64

	link   *lineLink
	window []float64
	next   int
	filled bool
}

func NewVibration(log *slog.Logger, cfg model.SensorConfig, scorer *fault.Scorer, opts ...Option) *Vibration {
	d := buildDeps(opts)

	n := cfg.Int("axis", defaultAxes)
	if n < 1 {
		n = 1
	}
	if n > len(axisNames) {
		n = len(axisNames)
	}

	size := cfg.Int("window", defaultWindow)
	if size < minWindow {
		size = minWindow
	}

	return &Vibration{
		log:         log.With(slog.String("adapter", "vibration")),
		cfg:         cfg,
		scorer:      scorer,
		open:        d.open,
		rng:         d.rng,
		now:         d.now,
		axes:        axisNames[:n],
		faultChance: cfg.Float("fault_probability", defaultFaultChance),
		probes:      probeFrequencies(scorer.Catalog()),
		window:      make([]float64, size),
	}
}

func (v *Vibration) Type() model.SensorType {
	return model.SensorVibration
}

func (v *Vibration) Connect(ctx context.Context) error {
	if v.cfg.Simulate() {
		v.log.Info("using simulated vibration data")
		return nil
	}

	link, err := dial(v.open, v.cfg)
	if err != nil {
		return err
	}

	resp, err := link.command(ctx, "INIT")
	if err != nil {
		link.close()
		return fmt.Errorf("failed to initialize vibration probe: %w", err)
	}
	if resp != "OK" {
		link.close()
		return fmt.Errorf("vibration probe rejected INIT: %q", resp)
	}

	rate := strconv.FormatFloat(v.cfg.SamplingRate(), 'f', -1, 64)
	resp, err = link.command(ctx, "RATE "+rate)
	if err != nil || resp != "OK" {
		v.log.Warn("failed to set sampling rate",
			slog.String("rate", rate),
			slog.String("response", resp),
			sl.Err(err),
		)
	}

	v.link = link
	v.resetWindow()
	v.log.Info("vibration probe connected")
	return nil
}

func (v *Vibration) Disconnect() error {
	if v.link == nil {
		return nil
	}
	link := v.link
	v.link = nil

	if err := link.send("CLOSE"); err != nil {
		v.log.Debug("failed to send CLOSE", sl.Err(err))
	}
	if err := link.close(); err != nil {
		return fmt.Errorf("failed to close vibration probe: %w", err)
	}
	v.log.Info("vibration probe disconnected")
	return nil
}

func (v *Vibration) Read(ctx context.Context) (any, error) {
	if v.link == nil {
		return nil, ErrNotConnected
	}

	resp, err := v.link.command(ctx, "READ")
	if err != nil {
		return nil, err
	}
	values, err := parseAxes(resp)
	if err != nil {
		return nil, err
	}

	composite := compositeMagnitude(values)
	v.push(composite)

	peaks := probePeaks(v.samples(), v.cfg.SamplingRate(), v.probes, compositeAxis)
	return &model.VibrationPayload{
		AxisValues:   values,
		Composite:    composite,
		Unit:         vibrationUnit,
		SamplingRate: v.cfg.SamplingRate(),
		Peaks:        peaks,
		Verdict:      v.scorer.Score(peaks),
	}, nil
}

func (v *Vibration) Simulate(ctx context.Context) (any, error) {
	t := float64(v.now().UnixNano()) / float64(time.Second)
	phase := t * rotationHz

	var (
		faultClass string
		faultFreqs []float64
	)
	factor := 1.0
	anomaly := v.rng.Float64() < v.faultChance && v.scorer.Catalog().Len() > 0
	if anomaly {
		classes := v.scorer.Catalog().Classes()
		faultClass = classes[v.rng.IntN(len(classes))]
		faultFreqs, _ = v.scorer.Catalog().Frequencies(faultClass)
		factor = uniform(v.rng, 3, 10)
		v.log.Info("simulated vibration fault",
			slog.String("fault_type", faultClass),
			slog.Float64("factor", factor),
		)
	}

	values := make(map[string]float64, len(v.axes))
	for _, axis := range v.axes {
		af := axisFactor(axis)
		sine := 0.05 * math.Sin(phase*af)
		noise := uniform(v.rng, -0.03, 0.03)

		var faultPart float64
		for _, f := range faultFreqs {
			faultPart += 0.08 * math.Sin(t*f*2*math.Pi)
		}
		faultPart *= factor

		values[axis] = (vibrationBaseline + sine + noise + faultPart) * af
	}

	peaks := syntheticSpectrum(v.rng, v.axes, values, faultFreqs)
	return &model.VibrationPayload{
		AxisValues:    values,
		Composite:     compositeMagnitude(values),
		Unit:          vibrationUnit,
		SamplingRate:  v.cfg.SamplingRate(),
		Peaks:         peaks,
		Verdict:       v.scorer.Score(peaks),
		Simulated:     true,
		Anomaly:       anomaly,
		InjectedFault: faultClass,
	}, nil
}

func (v *Vibration) push(sample float64) {
	v.window[v.next] = sample
	v.next = (v.next + 1) % len(v.window)
	if v.next == 0 {
		v.filled = true
	}
}

// samples returns the window in chronological order.
func (v *Vibration) samples() []float64 {
	if !v.filled {
		return v.window[:v.next]
	}
	out := make([]float64, 0, len(v.window))
	out = append(out, v.window[v.next:]...)
	return append(out, v.window[:v.next]...)
}

func (v *Vibration) resetWindow() {
	v.next = 0
	v.filled = false
}

func axisFactor(axis string) float64 {
	switch axis {
	case "X":
		return 0.8
	case "Z":
		return 1.2
	default:
		return 1.0
	}
}

// parseAxes parses "X:0.123,Y:0.456,Z:0.789".
func parseAxes(line string) (map[string]float64, error) {
	values := make(map[string]float64, 3)
	for _, part := range strings.Split(line, ",") {
		name, raw, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("bad axis value in %q: %w", line, err)
		}
		values[strings.TrimSpace(name)] = f
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no axis values in %q", line)
	}
	return values, nil
}

func probeFrequencies(c fault.Catalog) []float64 {
	freqs := []float64{rotationHz, rotationHz * 2, rotationHz * 3}
	for _, sig := range c.Signatures() {
		freqs = append(freqs, sig.Frequencies...)
	}
	return freqs
}
