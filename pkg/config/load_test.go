package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, "admission:\n  bucket:\n    max_tokens: 42\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Admission.Bucket.MaxTokens != 42 {
		t.Errorf("max_tokens = %v, want 42 from file", cfg.Admission.Bucket.MaxTokens)
	}
	if cfg.Admission.Bucket.RefillRate != 10 {
		t.Errorf("refill_rate = %v, want default 10", cfg.Admission.Bucket.RefillRate)
	}
	if cfg.Server.ListenAddress != "127.0.0.1:8080" {
		t.Errorf("listen_address = %q, want default", cfg.Server.ListenAddress)
	}
	if cfg.Admission.Queue.SweepInterval != 100*time.Millisecond {
		t.Errorf("sweep_interval = %v, want default 100ms", cfg.Admission.Queue.SweepInterval)
	}
	if !cfg.Telemetry.Metrics.MetricsEnabled() {
		t.Error("metrics should be enabled by default")
	}
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  listen_address: "0.0.0.0:9090"
  shutdown_timeout: 5s
admission:
  bucket:
    max_tokens: 10
    refill_rate: 2.5
    window: 60s
    fail_mode: closed
  queue:
    max_queue_size: 5
    queue_timeout: 10s
    sweep_interval: 50ms
    debug: true
retention:
  max_idle: 1h
  prune_schedule: "*/10 * * * *"
telemetry:
  logging:
    level: debug
    format: text
  metrics:
    enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("listen_address = %q", cfg.Server.ListenAddress)
	}
	if cfg.Admission.Bucket.FailMode != "closed" {
		t.Errorf("fail_mode = %q, want closed", cfg.Admission.Bucket.FailMode)
	}
	if cfg.Admission.Bucket.Window != time.Minute {
		t.Errorf("window = %v, want 1m", cfg.Admission.Bucket.Window)
	}
	if !cfg.Admission.Queue.Debug {
		t.Error("queue.debug should be true")
	}
	if cfg.Retention.MaxIdle != time.Hour {
		t.Errorf("max_idle = %v, want 1h", cfg.Retention.MaxIdle)
	}
	if cfg.Telemetry.Metrics.MetricsEnabled() {
		t.Error("metrics should be disabled")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "admission: [not: a: mapping\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	path := writeConfigFile(t, "admission:\n  bucket:\n    fail_mode: maybe\n")

	_, err := Load(path)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CALLISTO_SERVER_LISTEN_ADDRESS", "0.0.0.0:7000")
	t.Setenv("CALLISTO_BUCKET_MAX_TOKENS", "7")
	t.Setenv("CALLISTO_QUEUE_TIMEOUT", "3s")

	path := writeConfigFile(t, "server:\n  listen_address: \"127.0.0.1:8080\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:7000" {
		t.Errorf("listen_address = %q, want env override", cfg.Server.ListenAddress)
	}
	if cfg.Admission.Bucket.MaxTokens != 7 {
		t.Errorf("max_tokens = %v, want env override 7", cfg.Admission.Bucket.MaxTokens)
	}
	if cfg.Admission.Queue.QueueTimeout != 3*time.Second {
		t.Errorf("queue_timeout = %v, want env override 3s", cfg.Admission.Queue.QueueTimeout)
	}
}
