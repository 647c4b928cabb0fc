package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file, applies defaults and
// environment variable overrides, and validates the result.
//
// Environment variables follow the naming convention CALLISTO_SECTION_FIELD
// (e.g., CALLISTO_SERVER_LISTEN_ADDRESS) and take precedence over the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies CALLISTO_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("CALLISTO_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}

	if val := os.Getenv("CALLISTO_BUCKET_MAX_TOKENS"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Admission.Bucket.MaxTokens = f
		}
	}
	if val := os.Getenv("CALLISTO_BUCKET_REFILL_RATE"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Admission.Bucket.RefillRate = f
		}
	}
	if val := os.Getenv("CALLISTO_BUCKET_FAIL_MODE"); val != "" {
		cfg.Admission.Bucket.FailMode = val
	}

	if val := os.Getenv("CALLISTO_QUEUE_MAX_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Admission.Queue.MaxQueueSize = i
		}
	}
	if val := os.Getenv("CALLISTO_QUEUE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Admission.Queue.QueueTimeout = d
		}
	}

	if val := os.Getenv("CALLISTO_LOG_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("CALLISTO_LOG_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
}
