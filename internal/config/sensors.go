package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/speedwagon-io/idlerguard/internal/fault"
	"github.com/speedwagon-io/idlerguard/internal/model"
)

type SensorsConfig struct {
	SiteID          string            `yaml:"site_id" env-required:"true"`
	SiteName        string            `yaml:"site_name"`
	Sensors         []SensorEntry     `yaml:"sensors"`
	FaultSignatures []fault.Signature `yaml:"fault_signatures"`
}

// SensorEntry is one sensor as written in the file. Key defaults to the
// sensor type.
type SensorEntry struct {
	Key          string         `yaml:"key"`
	Type         string         `yaml:"type"`
	DeviceID     string         `yaml:"device_id"`
	Simulate     bool           `yaml:"simulate"`
	SamplingRate float64        `yaml:"sampling_rate"`
	Disabled     bool           `yaml:"disabled"`
	Params       map[string]any `yaml:"params"`
}

// Sensor is a validated sensor ready to be turned into an engine.
type Sensor struct {
	Key    string
	Type   model.SensorType
	Config model.SensorConfig
}

func LoadSensors(configPath string) (*SensorsConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("sensors config file not found: %s", configPath)
	}

	var cfg SensorsConfig
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read sensors config: %w", err)
	}

	return &cfg, nil
}

func MustLoadSensors(configPath string) *SensorsConfig {
	cfg, err := LoadSensors(configPath)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

// Build validates every enabled sensor and the fault catalog. All problems
// are reported together.
func (c *SensorsConfig) Build() ([]Sensor, fault.Catalog, error) {
	var (
		errs    []error
		sensors []Sensor
	)
	seen := make(map[string]struct{}, len(c.Sensors))

	for i, entry := range c.Sensors {
		if entry.Disabled {
			continue
		}

		typ, err := model.ParseSensorType(entry.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("sensors[%d]: %w", i, err))
			continue
		}

		key := entry.Key
		if key == "" {
			key = string(typ)
		}
		if _, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("sensors[%d]: duplicate key %q", i, key))
			continue
		}
		seen[key] = struct{}{}

		sc, err := model.NewSensorConfig(entry.DeviceID, entry.Simulate, entry.SamplingRate, entry.Params)
		if err != nil {
			errs = append(errs, fmt.Errorf("sensor %q: %w", key, err))
			continue
		}

		sensors = append(sensors, Sensor{Key: key, Type: typ, Config: sc})
	}

	catalog := fault.DefaultCatalog()
	if len(c.FaultSignatures) > 0 {
		custom, err := fault.NewCatalog(c.FaultSignatures)
		if err != nil {
			errs = append(errs, fmt.Errorf("fault_signatures: %w", err))
		} else {
			catalog = custom
		}
	}

	if len(errs) > 0 {
		return nil, fault.Catalog{}, errors.Join(errs...)
	}
	return sensors, catalog, nil
}
