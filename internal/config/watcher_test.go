package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	body := `{"loop": {"max_consecutive_failures": 9}}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Loop.MaxConsecutiveFailures != 9 {
			t.Errorf("expected the changed value, got %d", cfg.Loop.MaxConsecutiveFailures)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcherAppliesLastOfRapidWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	reloads := make(chan int, 8)
	w, err := NewWatcher(path, func(cfg *Config) {
		reloads <- cfg.Loop.MaxConsecutiveFailures
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	w.debounceDur = 200 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	// A double save: the first write is superseded within the debounce
	// window. Only the final content may be applied.
	if err := os.WriteFile(path, []byte(`{"loop": {"max_consecutive_failures": 7}}`), 0644); err != nil {
		t.Fatalf("first write: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"loop": {"max_consecutive_failures": 9}}`), 0644); err != nil {
		t.Fatalf("second write: %v", err)
	}

	select {
	case got := <-reloads:
		if got != 9 {
			t.Fatalf("expected the last write applied, reloaded max_consecutive_failures = %d, want 9", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	// The settled state must stay at the final value: no stale reload
	// of the first write arrives afterwards.
	select {
	case got := <-reloads:
		if got != 9 {
			t.Errorf("stale value %d reloaded after settle", got)
		}
	case <-time.After(600 * time.Millisecond):
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	reloaded := make(chan struct{}, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("write unrelated: %v", err)
	}

	select {
	case <-reloaded:
		t.Error("a sibling file must not trigger a reload")
	case <-time.After(500 * time.Millisecond):
	}
}
