package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env         string            `yaml:"env" env-default:"prod"`
	Sensors     SensorsRef        `yaml:"sensors"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Sender      SenderConfig      `yaml:"sender"`
	Buffer      BufferConfig      `yaml:"buffer"`
	Health      HealthConfig      `yaml:"health"`
	Log         LogConfig         `yaml:"log"`
}

type SensorsRef struct {
	ConfigPath string `yaml:"config_path" env:"SENSORS_CONFIG_PATH" env-required:"true"`
}

// AcquisitionConfig holds engine defaults applied to every sensor.
type AcquisitionConfig struct {
	MaxErrors     int           `yaml:"max_errors" env-default:"5"`
	Cooldown      time.Duration `yaml:"cooldown" env-default:"2s"`
	QueueCapacity int           `yaml:"queue_capacity" env-default:"100"`
	StopTimeout   time.Duration `yaml:"stop_timeout" env-default:"5s"`
	PollTimeout   time.Duration `yaml:"poll_timeout" env-default:"1s"`
}

type SenderConfig struct {
	URL     string        `yaml:"url" env:"SENDER_URL" env-default:"http://localhost:5000"`
	Token   string        `yaml:"token" env:"SENDER_TOKEN"`
	Timeout time.Duration `yaml:"timeout" env-default:"2s"`
	Retry   RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" env-default:"3"`
	InitialDelay time.Duration `yaml:"initial_delay" env-default:"500ms"`
	MaxDelay     time.Duration `yaml:"max_delay" env-default:"10s"`
}

type BufferConfig struct {
	Enabled       bool          `yaml:"enabled" env-default:"true"`
	Path          string        `yaml:"path" env-default:"/var/lib/idlerguard/buffer.db"`
	MaxAge        time.Duration `yaml:"max_age" env-default:"24h"`
	RetryInterval time.Duration `yaml:"retry_interval" env-default:"30s"`
	BatchSize     int           `yaml:"batch_size" env-default:"100"`
}

type HealthConfig struct {
	Address string `yaml:"address" env-default:":8080"`
}

type LogConfig struct {
	Level  string `yaml:"level" env-default:"info"`
	Format string `yaml:"format" env-default:"json"`
}

// Load reads the daemon config. An empty path falls back to CONFIG_PATH
// and then to config/config.yaml.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	if configPath == "" {
		configPath = "config/config.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return &cfg, nil
}

func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}
