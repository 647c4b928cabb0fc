package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("admission:\n  bucket:\n    max_tokens: 10\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	reloaded := make(chan *Config, 1)
	go func() {
		w.Watch(func(cfg *Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		})
	}()
	defer w.Stop()

	// Give the watcher a moment to register before mutating the file.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("admission:\n  bucket:\n    max_tokens: 99\n"), 0o644); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Admission.Bucket.MaxTokens != 99 {
			t.Errorf("reloaded max_tokens = %v, want 99", cfg.Admission.Bucket.MaxTokens)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestWatcher_InvalidChangeKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("admission:\n  bucket:\n    max_tokens: 10\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	reloaded := make(chan *Config, 1)
	go func() {
		w.Watch(func(cfg *Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		})
	}()
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("admission:\n  bucket:\n    fail_mode: maybe\n"), 0o644); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}

	// The broken config must not be delivered.
	select {
	case cfg := <-reloaded:
		t.Fatalf("invalid config was delivered: %+v", cfg)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestDebouncer_CoalescesBursts(t *testing.T) {
	d := newDebouncer(50 * time.Millisecond)

	fired := make(chan struct{}, 10)
	for i := 0; i < 5; i++ {
		d.trigger(func() { fired <- struct{}{} })
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("debounced callback never fired")
	}

	// The burst collapses into exactly one firing.
	select {
	case <-fired:
		t.Fatal("debouncer fired more than once for one burst")
	case <-time.After(150 * time.Millisecond):
	}
}
