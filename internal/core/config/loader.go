package config

import (
	"fmt"
	"os"
	"time"

	"github.com/araddon/dateparse"
	"gopkg.in/yaml.v2"

	"github.com/socialpulse/harvester/internal/core/domain"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	a := &cfg.Acquisition
	if len(a.Streams) == 0 {
		a.Streams = []domain.StreamType{domain.StreamTimeline, domain.StreamMentions}
	}
	if a.Limit == 0 {
		a.Limit = 1000
	}
	if a.Interval == 0 {
		a.Interval = Duration(15 * time.Minute)
	}
	if a.Overlap == 0 {
		a.Overlap = Duration(10 * time.Minute)
	}
	if a.ClockSkew == 0 {
		a.ClockSkew = Duration(5 * time.Minute)
	}
	if a.Cooldown == 0 {
		a.Cooldown = Duration(15 * time.Minute)
	}
	for i := range a.Backends {
		if a.Backends[i].Timeout == 0 {
			a.Backends[i].Timeout = Duration(30 * time.Second)
		}
	}
}

// Validate rejects invalid invocation parameters before any backend is
// touched.
func (cfg *AppConfig) Validate() error {
	a := cfg.Acquisition
	if a.Account == "" {
		return fmt.Errorf("acquisition.account is required")
	}
	if a.Limit < 0 {
		return fmt.Errorf("acquisition.limit must be non-negative, got %d", a.Limit)
	}
	for _, s := range a.Streams {
		if !s.Valid() {
			return fmt.Errorf("unknown stream type %q", s)
		}
	}
	if len(a.Backends) == 0 {
		return fmt.Errorf("at least one backend is required")
	}
	names := make(map[string]struct{}, len(a.Backends))
	for _, b := range a.Backends {
		if b.Name == "" {
			return fmt.Errorf("backend name is required")
		}
		if _, dup := names[b.Name]; dup {
			return fmt.Errorf("duplicate backend %q", b.Name)
		}
		names[b.Name] = struct{}{}
		if b.Retry.MaxAttempts < 0 {
			return fmt.Errorf("backend %q: retry.max_attempts must be non-negative", b.Name)
		}
	}
	if a.Since != "" {
		if _, err := dateparse.ParseAny(a.Since); err != nil {
			return fmt.Errorf("acquisition.since: %w", err)
		}
	}
	return nil
}

// SinceTime returns the parsed lower-bound override, zero when unset.
// Validate has already guaranteed the string parses.
func (a AcquisitionConfig) SinceTime() time.Time {
	if a.Since == "" {
		return time.Time{}
	}
	t, _ := dateparse.ParseAny(a.Since)
	return t
}
