// Package config loads the runtime configuration from file, environment
// and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

// StoreConfig selects and configures the metadata store backend.
type StoreConfig struct {
	// Driver is one of "memory", "sqlite", "mysql" or "postgres".
	Driver string `mapstructure:"driver"`

	// DSN is the backend connection string. For sqlite this is the path of
	// the embedded metadata file.
	DSN string `mapstructure:"dsn"`
}

// SchedulerConfig tunes the scheduling loop.
type SchedulerConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	HeartbeatInterval  time.Duration `mapstructure:"heartbeat_interval"`
	SourceWorkers      int           `mapstructure:"source_workers"`
	DestinationWorkers int           `mapstructure:"destination_workers"`
	ValidationWorkers  int           `mapstructure:"validation_workers"`
	StrictVerification bool          `mapstructure:"strict_verification"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is a logrus level name ("debug", "info", "warn", "error").
	Level string `mapstructure:"level"`
}

// Load reads the configuration from the given file, overlaid by WAREHAUL_*
// environment variables. An empty file path searches for warehaul.yaml in
// the working directory; a missing file is not an error, defaults apply.
func Load(file string) (Config, error) {
	v := viper.New()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", ".warehaul.meta.db")
	v.SetDefault("scheduler.poll_interval", 500*time.Millisecond)
	v.SetDefault("scheduler.heartbeat_interval", 5*time.Second)
	v.SetDefault("scheduler.source_workers", 4)
	v.SetDefault("scheduler.destination_workers", 4)
	v.SetDefault("scheduler.validation_workers", 4)
	v.SetDefault("scheduler.strict_verification", false)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("warehaul")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("warehaul")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if file != "" {
			return Config{}, fmt.Errorf("failed to read config %s: %w", file, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}
