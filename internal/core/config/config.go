package config

import (
	"fmt"
	"time"

	"github.com/socialpulse/harvester/internal/core/domain"
	redisclient "github.com/socialpulse/harvester/internal/infra/redis"
	"github.com/socialpulse/harvester/internal/infra/storage/postgres"
)

// Duration accepts YAML duration strings ("15m", "1h30m") as well as plain
// nanosecond integers.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := unmarshal(&n); err != nil {
		return fmt.Errorf("invalid duration value")
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server      ServerConfig       `yaml:"server"`
	Acquisition AcquisitionConfig  `yaml:"acquisition"`
	Redis       redisclient.Config `yaml:"redis"`
	Logging     LoggingConfig      `yaml:"logging"`
	Database    postgres.Config    `yaml:"database"`
	Retention   RetentionConfig    `yaml:"retention"`
}

// ServerConfig holds health/metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RetentionConfig bounds how long run audit rows are kept. Zero keeps them
// forever.
type RetentionConfig struct {
	Runs Duration `yaml:"runs"`
}

// AcquisitionConfig holds settings for the target account's streams.
type AcquisitionConfig struct {
	Account   string              `yaml:"account"`
	Streams   []domain.StreamType `yaml:"streams"`
	Limit     int                 `yaml:"limit"`
	Since     string              `yaml:"since"`    // optional lower-bound override, RFC3339 or YYYY-MM-DD
	Interval  Duration            `yaml:"interval"` // daemon poll interval
	Overlap   Duration            `yaml:"overlap"`  // watermark safety margin
	ClockSkew Duration            `yaml:"clock_skew"`
	Cooldown  Duration            `yaml:"cooldown"`
	Backends  []BackendConfig     `yaml:"backends"` // priority order
}

// BackendConfig holds settings for one data source, in fallback priority
// order.
type BackendConfig struct {
	Name    string      `yaml:"name"`
	URL     string      `yaml:"url"`
	Timeout Duration    `yaml:"timeout"`
	Retry   RetryConfig `yaml:"retry"`
}

// RetryConfig holds per-backend retry tuning.
type RetryConfig struct {
	MaxAttempts  int      `yaml:"max_attempts"`
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
}
