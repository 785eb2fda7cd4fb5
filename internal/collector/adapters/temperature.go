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

	"github.com/speedwagon-io/idlerguard/internal/model"
)

const (
	bearingBaselineC     = 35.0
	hourlyDriftC         = 5.0
	defaultAnomalyChance = 0.001
)

// Temperature is a bearing thermometer answering READ with "T:<celsius>".
type Temperature struct {
	log  *slog.Logger
	cfg  model.SensorConfig
	open Opener
	rng  *rand.Rand
	now  func() time.Time

	unit          string
	anomalyChance float64
	link          *lineLink
}

func NewTemperature(log *slog.Logger, cfg model.SensorConfig, opts ...Option) *Temperature {
	d := buildDeps(opts)
	return &Temperature{
		log:           log.With(slog.String("adapter", "temperature")),
		cfg:           cfg,
		open:          d.open,
		rng:           d.rng,
		now:           d.now,
		unit:          cfg.String("unit", "celsius"),
		anomalyChance: cfg.Float("anomaly_probability", defaultAnomalyChance),
	}
}

func (t *Temperature) Type() model.SensorType {
	return model.SensorTemperature
}

func (t *Temperature) Connect(ctx context.Context) error {
	if t.cfg.Simulate() {
		t.log.Info("using simulated temperature data")
		return nil
	}

	link, err := dial(t.open, t.cfg)
	if err != nil {
		return err
	}
	t.link = link
	t.log.Info("temperature probe connected")
	return nil
}

func (t *Temperature) Disconnect() error {
	if t.link == nil {
		return nil
	}
	link := t.link
	t.link = nil
	if err := link.close(); err != nil {
		return fmt.Errorf("failed to close temperature probe: %w", err)
	}
	return nil
}

func (t *Temperature) Read(ctx context.Context) (any, error) {
	if t.link == nil {
		return nil, ErrNotConnected
	}

	resp, err := t.link.command(ctx, "READ")
	if err != nil {
		return nil, err
	}
	celsius, err := parseTemperature(resp)
	if err != nil {
		return nil, err
	}

	return &model.TemperaturePayload{
		Celsius: celsius,
		Unit:    t.unit,
	}, nil
}

func (t *Temperature) Simulate(ctx context.Context) (any, error) {
	hours := float64(t.now().Unix()) / 3600
	_, frac := math.Modf(hours)

	celsius := bearingBaselineC + hourlyDriftC*frac + uniform(t.rng, -0.5, 0.5)

	anomaly := t.rng.Float64() < t.anomalyChance
	if anomaly {
		extra := uniform(t.rng, 15, 60)
		celsius += extra
		t.log.Info("simulated temperature anomaly", slog.Float64("delta_c", extra))
	}

	return &model.TemperaturePayload{
		Celsius:   celsius,
		Unit:      t.unit,
		Simulated: true,
		Anomaly:   anomaly,
	}, nil
}

// parseTemperature accepts "T:35.2" or a bare number.
func parseTemperature(line string) (float64, error) {
	raw := line
	if _, after, ok := strings.Cut(line, ":"); ok {
		raw = after
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("bad temperature reply %q: %w", line, err)
	}
	return v, nil
}
