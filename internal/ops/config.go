package ops

import (
	"fmt"
	"os"
	"time"

	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"
)

// Config mirrors the YAML config layout. Credentials may be supplied via
// environment instead of the file.
type Config struct {
	Bus        BusConfig        `yaml:"bus"`
	Order      OrderConfig      `yaml:"order"`
	Recorder   RecorderConfig   `yaml:"recorder"`
	Experiment ExperimentConfig `yaml:"experiment"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Profiler   ProfilerConfig   `yaml:"profiler"`
}

// BusConfig tunes event fan-out.
type BusConfig struct {
	MaxBufferedBytes int `yaml:"maxBufferedBytes"`
}

// OrderConfig describes the exchange order-entry endpoint.
type OrderConfig struct {
	URL               string `yaml:"url"`
	APIKey            string `yaml:"apiKey"`
	APISecret         string `yaml:"apiSecret"`
	Disabled          bool   `yaml:"disabled"`
	PingIntervalSec   int    `yaml:"pingIntervalSec"`
	RequestTimeoutSec int    `yaml:"requestTimeoutSec"`
}

// RecorderConfig tunes session capture and replay.
type RecorderConfig struct {
	AllowedTopics     []string `yaml:"allowedTopics"`
	StatusIntervalSec int      `yaml:"statusIntervalSec"`
}

// ExperimentConfig tunes the phase-rotation scheduler.
type ExperimentConfig struct {
	PollIntervalSec   int     `yaml:"pollIntervalSec"`
	StatusIntervalSec int     `yaml:"statusIntervalSec"`
	RunLogDir         string  `yaml:"runLogDir"`
	SymbolCount       int     `yaml:"symbolCount"`
	MinMarketCap      float64 `yaml:"minMarketCap"`
}

// ArchiveConfig describes the optional Postgres run archive.
type ArchiveConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbName"`
}

// ProfilerConfig enables continuous profiling.
type ProfilerConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ServerAddress string `yaml:"serverAddress"`
	AppName       string `yaml:"appName"`
}

// Default returns a runnable configuration with the order channel disabled,
// for simulated sessions without a config file.
func Default() Config {
	cfg := Config{}
	cfg.Order.Disabled = true
	return cfg.applyEnv().withDefaults()
}

// Load reads a YAML config file, overlays environment credentials, applies
// defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}
	cfg = cfg.applyEnv().withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv lets environment variables supersede file credentials so keys
// never need to live in the config file.
func (c Config) applyEnv() Config {
	if v := os.Getenv("ORDER_API_KEY"); v != "" {
		c.Order.APIKey = v
	}
	if v := os.Getenv("ORDER_API_SECRET"); v != "" {
		c.Order.APISecret = v
	}
	if v := os.Getenv("ARCHIVE_PASSWORD"); v != "" {
		c.Archive.Password = v
	}
	return c
}

func (c Config) withDefaults() Config {
	if c.Order.PingIntervalSec <= 0 {
		c.Order.PingIntervalSec = 20
	}
	if c.Order.RequestTimeoutSec <= 0 {
		c.Order.RequestTimeoutSec = 5
	}
	if c.Recorder.StatusIntervalSec <= 0 {
		c.Recorder.StatusIntervalSec = 1
	}
	if c.Experiment.PollIntervalSec <= 0 {
		c.Experiment.PollIntervalSec = 1
	}
	if c.Experiment.StatusIntervalSec <= 0 {
		c.Experiment.StatusIntervalSec = 1
	}
	if c.Experiment.RunLogDir == "" {
		c.Experiment.RunLogDir = "."
	}
	if c.Experiment.SymbolCount <= 0 {
		c.Experiment.SymbolCount = 10
	}
	if c.Archive.Port == 0 {
		c.Archive.Port = 5432
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Bus.MaxBufferedBytes < 0 {
		return fmt.Errorf("invalid config: bus.maxBufferedBytes must be >= 0")
	}
	if !c.Order.Disabled {
		if c.Order.URL == "" {
			return fmt.Errorf("invalid config: order.url is empty")
		}
		if c.Order.APIKey == "" || c.Order.APISecret == "" {
			return fmt.Errorf("invalid config: order credentials are empty")
		}
	}
	if c.Archive.Enabled {
		if c.Archive.Host == "" {
			return fmt.Errorf("invalid config: archive.host is empty")
		}
		if c.Archive.DBName == "" {
			return fmt.Errorf("invalid config: archive.dbName is empty")
		}
	}
	if c.Profiler.Enabled && c.Profiler.ServerAddress == "" {
		return fmt.Errorf("invalid config: profiler.serverAddress is empty")
	}
	return nil
}

// PingInterval returns the keep-alive cadence as a duration.
func (c OrderConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSec) * time.Second
}

// RequestTimeout returns the default request deadline as a duration.
func (c OrderConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}
