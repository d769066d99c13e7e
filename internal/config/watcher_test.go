package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	Reset()
	defer Reset()

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte("reconnect:\n  max_attempts: 4\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	if _, err := Load(configFile); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	changes := make(chan *Config, 4)
	w, err := NewWatcher(configFile, func(cfg *Config) { changes <- cfg })
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := os.WriteFile(configFile, []byte("reconnect:\n  max_attempts: 9\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite config file: %v", err)
	}

	select {
	case cfg := <-changes:
		if cfg.Reconnect.MaxAttempts != 9 {
			t.Errorf("reconnect.max_attempts = %d, want 9", cfg.Reconnect.MaxAttempts)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the change")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	Reset()
	defer Reset()

	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	if _, err := Load(configFile); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	changes := make(chan *Config, 1)
	w, err := NewWatcher(configFile, func(cfg *Config) { changes <- cfg })
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	select {
	case <-changes:
		t.Fatal("unrelated file triggered a reload")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "config.yaml"), func(*Config) {})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	w.Stop()
	w.Stop()
}
