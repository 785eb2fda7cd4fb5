package model

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"strings"
	"unicode"
)

var ErrInvalidConfig = errors.New("invalid sensor config")

type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// SensorConfig is immutable once built by NewSensorConfig.
type SensorConfig struct {
	deviceID     string
	simulate     bool
	samplingRate float64
	params       map[string]any
}

func NewSensorConfig(deviceID string, simulate bool, samplingRate float64, params map[string]any) (SensorConfig, error) {
	if err := validateDeviceID(deviceID); err != nil {
		return SensorConfig{}, err
	}
	if math.IsNaN(samplingRate) || math.IsInf(samplingRate, 0) || samplingRate <= 0 {
		return SensorConfig{}, &ConfigError{Field: "sampling_rate", Reason: fmt.Sprintf("must be > 0, got %v", samplingRate)}
	}

	return SensorConfig{
		deviceID:     deviceID,
		simulate:     simulate,
		samplingRate: samplingRate,
		params:       maps.Clone(params),
	}, nil
}

func validateDeviceID(id string) error {
	if id == "" {
		return &ConfigError{Field: "device_id", Reason: "is required"}
	}
	if strings.TrimSpace(id) != id {
		return &ConfigError{Field: "device_id", Reason: "has surrounding whitespace"}
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return &ConfigError{Field: "device_id", Reason: "contains control characters"}
		}
	}
	return nil
}

func (c SensorConfig) DeviceID() string      { return c.deviceID }
func (c SensorConfig) Simulate() bool        { return c.simulate }
func (c SensorConfig) SamplingRate() float64 { return c.samplingRate }

func (c SensorConfig) Param(key string) (any, bool) {
	v, ok := c.params[key]
	return v, ok
}

func (c SensorConfig) Float(key string, def float64) float64 {
	switch v := c.params[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	default:
		return def
	}
}

func (c SensorConfig) Int(key string, def int) int {
	switch v := c.params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func (c SensorConfig) String(key, def string) string {
	if v, ok := c.params[key].(string); ok && v != "" {
		return v
	}
	return def
}
