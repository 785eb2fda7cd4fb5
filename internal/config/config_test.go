package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/speedwagon-io/idlerguard/internal/model"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	is := is.New(t)

	path := writeFile(t, "config.yaml", `
env: dev
sensors:
  config_path: /etc/idlerguard/sensors.yaml
sender:
  url: http://inspection.local:5000
`)

	cfg, err := Load(path)
	is.NoErr(err)
	is.Equal(cfg.Env, "dev")
	is.Equal(cfg.Sensors.ConfigPath, "/etc/idlerguard/sensors.yaml")
	is.Equal(cfg.Sender.URL, "http://inspection.local:5000")
	is.Equal(cfg.Sender.Timeout, 2*time.Second)
	is.Equal(cfg.Sender.Retry.MaxAttempts, 3)
	is.Equal(cfg.Acquisition.MaxErrors, 5)
	is.Equal(cfg.Acquisition.Cooldown, 2*time.Second)
	is.Equal(cfg.Acquisition.QueueCapacity, 100)
	is.Equal(cfg.Buffer.RetryInterval, 30*time.Second)
	is.True(cfg.Buffer.Enabled)
	is.Equal(cfg.Health.Address, ":8080")
	is.Equal(cfg.Log.Format, "json")
}

func TestLoadMissingFile(t *testing.T) {
	is := is.New(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "not found"))
}

func TestLoadFromEnvPath(t *testing.T) {
	is := is.New(t)

	path := writeFile(t, "config.yaml", "sensors:\n  config_path: s.yaml\n")
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load("")
	is.NoErr(err)
	is.Equal(cfg.Sensors.ConfigPath, "s.yaml")
}

func TestMustLoadPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MustLoad did not panic on a missing file")
		}
	}()
	MustLoad(filepath.Join(t.TempDir(), "missing.yaml"))
}

const sensorsYAML = `
site_id: belt-7
site_name: Conveyor 7
sensors:
  - key: vib-head
    type: vibration
    device_id: /dev/ttyUSB0
    sampling_rate: 500
    params:
      baud_rate: 115200
      axis: 3
  - type: temperature
    device_id: sim-temp
    simulate: true
    sampling_rate: 1
  - key: cam
    type: camera
    device_id: "0"
    simulate: true
    sampling_rate: 30
    disabled: true
`

func TestBuildSensors(t *testing.T) {
	is := is.New(t)

	cfg, err := LoadSensors(writeFile(t, "sensors.yaml", sensorsYAML))
	is.NoErr(err)
	is.Equal(cfg.SiteID, "belt-7")

	sensors, catalog, err := cfg.Build()
	is.NoErr(err)
	is.Equal(len(sensors), 2)
	is.Equal(catalog.Len(), 6)

	is.Equal(sensors[0].Key, "vib-head")
	is.Equal(sensors[0].Type, model.SensorVibration)
	is.Equal(sensors[0].Config.SamplingRate(), 500.0)
	is.Equal(sensors[0].Config.Int("baud_rate", 0), 115200)

	is.Equal(sensors[1].Key, "temperature")
	is.True(sensors[1].Config.Simulate())
}

func TestBuildReportsAllProblems(t *testing.T) {
	is := is.New(t)

	cfg := &SensorsConfig{
		SiteID: "x",
		Sensors: []SensorEntry{
			{Type: "sonar", DeviceID: "a", SamplingRate: 1},
			{Key: "t", Type: "temperature", DeviceID: "b", SamplingRate: 0},
			{Key: "v", Type: "vibration", DeviceID: "c", SamplingRate: 10},
			{Key: "v", Type: "vibration", DeviceID: "d", SamplingRate: 10},
		},
	}

	_, _, err := cfg.Build()
	is.True(err != nil)
	is.True(errors.Is(err, model.ErrInvalidConfig))
	msg := err.Error()
	is.True(strings.Contains(msg, "sonar"))
	is.True(strings.Contains(msg, `duplicate key "v"`))
}

func TestBuildCustomCatalog(t *testing.T) {
	is := is.New(t)

	cfg, err := LoadSensors(writeFile(t, "sensors.yaml", `
site_id: belt-9
fault_signatures:
  - class: belt_slip
    frequencies: [12.5, 25]
`))
	is.NoErr(err)

	_, catalog, err := cfg.Build()
	is.NoErr(err)
	is.Equal(catalog.Classes(), []string{"belt_slip"})

	cfg.FaultSignatures = append(cfg.FaultSignatures, cfg.FaultSignatures[0])
	_, _, err = cfg.Build()
	is.True(err != nil)
}

func TestLoadSensorsRequiresSiteID(t *testing.T) {
	is := is.New(t)

	_, err := LoadSensors(writeFile(t, "sensors.yaml", "sensors: []\n"))
	is.True(err != nil)
}
