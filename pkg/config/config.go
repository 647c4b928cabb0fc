package config

import "time"

// Config is the root configuration structure for Callisto.
type Config struct {
	// Server contains HTTP server configuration.
	Server ServerConfig `yaml:"server"`

	// Admission contains token bucket and queue configuration.
	Admission AdmissionConfig `yaml:"admission"`

	// Retention contains idle bucket state pruning configuration.
	Retention RetentionConfig `yaml:"retention"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port". Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out a response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown. Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AdmissionConfig contains configuration for the admission limiter.
type AdmissionConfig struct {
	// Bucket configures the per-key token bucket.
	Bucket BucketConfig `yaml:"bucket"`

	// Queue configures the waiting queue for denied requests.
	Queue QueueConfig `yaml:"queue"`
}

// BucketConfig contains configuration for the token bucket.
type BucketConfig struct {
	// MaxTokens is the bucket capacity (maximum burst) per key.
	// Default: 100
	MaxTokens float64 `yaml:"max_tokens"`

	// RefillRate is the number of tokens refilled per second per key.
	// Default: 10
	RefillRate float64 `yaml:"refill_rate"`

	// Window bounds the refill a long-idle key can accrue.
	// Zero means no bound beyond MaxTokens.
	Window time.Duration `yaml:"window"`

	// FailMode is "open" (admit on internal error) or "closed" (deny).
	// Default: "open"
	FailMode string `yaml:"fail_mode"`
}

// QueueConfig contains configuration for the waiting queue.
type QueueConfig struct {
	// MaxQueueSize is the maximum number of waiting requests per key.
	// Default: 50
	MaxQueueSize int `yaml:"max_queue_size"`

	// QueueTimeout is how long a request may wait before rejection.
	// Default: 30s
	QueueTimeout time.Duration `yaml:"queue_timeout"`

	// SweepInterval is the period of the admission sweep.
	// Default: 100ms
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// Debug enables per-request debug logging in the queue.
	Debug bool `yaml:"debug"`
}

// RetentionConfig contains configuration for idle bucket pruning.
// Pruning is disabled by default: bucket state is kept indefinitely.
type RetentionConfig struct {
	// MaxIdle is the age past which idle bucket state is pruned.
	// Zero disables pruning.
	MaxIdle time.Duration `yaml:"max_idle"`

	// PruneSchedule is a cron expression for scheduled pruning.
	// Example: "*/10 * * * *". Empty disables the scheduler.
	PruneSchedule string `yaml:"prune_schedule"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures Prometheus metrics exposition.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains configuration for structured logging.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format: "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig contains configuration for metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`
}

// MetricsEnabled reports whether metrics exposition is on, applying the
// default when the field was omitted.
func (m *MetricsConfig) MetricsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}
