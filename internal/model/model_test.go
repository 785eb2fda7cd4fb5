package model

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestNewSensorConfigRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name     string
		deviceID string
		rate     float64
	}{
		{"zero rate", "/dev/ttyUSB0", 0},
		{"negative rate", "/dev/ttyUSB0", -1},
		{"nan rate", "/dev/ttyUSB0", math.NaN()},
		{"empty device", "", 10},
		{"padded device", " /dev/ttyUSB0", 10},
		{"control char", "/dev/tty\nUSB0", 10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)
			_, err := NewSensorConfig(tc.deviceID, false, tc.rate, nil)
			is.True(errors.Is(err, ErrInvalidConfig))

			var cfgErr *ConfigError
			is.True(errors.As(err, &cfgErr))
		})
	}
}

func TestSensorConfigCopiesParams(t *testing.T) {
	is := is.New(t)

	params := map[string]any{"baud_rate": 19200, "unit": "celsius", "gain": 2.5}
	cfg, err := NewSensorConfig("/dev/ttyUSB0", true, 1, params)
	is.NoErr(err)

	params["baud_rate"] = 1

	is.Equal(cfg.Int("baud_rate", 9600), 19200)
	is.Equal(cfg.Float("gain", 1), 2.5)
	is.Equal(cfg.String("unit", "kelvin"), "celsius")
	is.Equal(cfg.Int("missing", 7), 7)
	is.True(cfg.Simulate())
	is.Equal(cfg.SamplingRate(), 1.0)
}

func TestSensorStatusText(t *testing.T) {
	is := is.New(t)

	b, err := json.Marshal(struct {
		S SensorStatus `json:"s"`
	}{StatusWarmingUp})
	is.NoErr(err)
	is.Equal(string(b), `{"s":"warming_up"}`)
	is.Equal(SensorStatus(42).String(), "status(42)")
}

func TestNewVibrationAlertSeverity(t *testing.T) {
	is := is.New(t)

	r := SensorReading{Type: SensorVibration, DeviceID: "/dev/ttyUSB1", Timestamp: time.Now()}
	p := VibrationPayload{Composite: 1.5, Verdict: FaultVerdict{Detected: true, FaultClass: "unbalance", Confidence: 1}}

	a := NewVibrationAlert(r, p)
	is.Equal(a.Severity, SeverityHigh)
	is.Equal(a.FaultType, "unbalance")

	p.Composite = 0.4
	is.Equal(NewVibrationAlert(r, p).Severity, SeverityMedium)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	is := is.New(t)

	env, err := NewEnvelope(KindTemperature, "site-1", "temperature", "/dev/ttyUSB0", TemperaturePost{Temperature: 42.5})
	is.NoErr(err)
	is.True(env.ID != "")

	data, err := env.ToJSON()
	is.NoErr(err)

	back, err := EnvelopeFromJSON(data)
	is.NoErr(err)
	is.Equal(back.ID, env.ID)

	var post TemperaturePost
	is.NoErr(json.Unmarshal(back.Body, &post))
	is.Equal(post.Temperature, 42.5)
}
