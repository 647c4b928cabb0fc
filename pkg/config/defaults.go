package config

import "time"

// ApplyDefaults fills in default values for any field the configuration
// file omitted. It never overrides an explicitly set value.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = "127.0.0.1:8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Admission.Bucket.MaxTokens == 0 {
		cfg.Admission.Bucket.MaxTokens = 100
	}
	if cfg.Admission.Bucket.RefillRate == 0 {
		cfg.Admission.Bucket.RefillRate = 10
	}
	if cfg.Admission.Bucket.FailMode == "" {
		cfg.Admission.Bucket.FailMode = "open"
	}

	if cfg.Admission.Queue.MaxQueueSize == 0 {
		cfg.Admission.Queue.MaxQueueSize = 50
	}
	if cfg.Admission.Queue.QueueTimeout == 0 {
		cfg.Admission.Queue.QueueTimeout = 30 * time.Second
	}
	if cfg.Admission.Queue.SweepInterval == 0 {
		cfg.Admission.Queue.SweepInterval = 100 * time.Millisecond
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = "/metrics"
	}
}

// Default returns a fully defaulted configuration.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
