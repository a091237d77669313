package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tasknexus/decomp-engine/internal/logging"
)

func startWatcher(t *testing.T, root string, cfg Config, ignore []string) chan string {
	t.Helper()
	triggers := make(chan string, 16)
	w, err := New(root, []string{"src"}, ignore, cfg, func(_ context.Context, trigger string) {
		triggers <- trigger
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
	return triggers
}

func waitTrigger(t *testing.T, triggers chan string, want string, timeout time.Duration) {
	t.Helper()
	select {
	case got := <-triggers:
		if got != want {
			t.Fatalf("trigger = %q, want %q", got, want)
		}
	case <-time.After(timeout):
		t.Fatalf("no %q trigger within %v", want, timeout)
	}
}

func assertQuiet(t *testing.T, triggers chan string, d time.Duration) {
	t.Helper()
	select {
	case got := <-triggers:
		t.Fatalf("unexpected trigger %q", got)
	case <-time.After(d):
	}
}

func TestWatcher_DebouncedFSTrigger(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	triggers := startWatcher(t, root, Config{DebounceMs: 50, RescanIntervalSec: 3600}, nil)

	// Two rapid writes collapse into one trigger.
	if err := os.WriteFile(filepath.Join(root, "src", "a.js"), []byte("a"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "b.js"), []byte("b"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitTrigger(t, triggers, TriggerFS, 2*time.Second)
	assertQuiet(t, triggers, 250*time.Millisecond)
}

func TestWatcher_IntervalTrigger(t *testing.T) {
	triggers := startWatcher(t, t.TempDir(), Config{DebounceMs: 50, RescanIntervalSec: 1}, nil)
	waitTrigger(t, triggers, TriggerInterval, 3*time.Second)
}

func TestWatcher_IgnoresStateDir(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".decomp"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	triggers := startWatcher(t, root, Config{DebounceMs: 50, RescanIntervalSec: 3600}, []string{".decomp"})

	if err := os.WriteFile(filepath.Join(root, ".decomp", "project_state.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	assertQuiet(t, triggers, 300*time.Millisecond)

	// A real project change still comes through.
	if err := os.WriteFile(filepath.Join(root, "package.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitTrigger(t, triggers, TriggerFS, 2*time.Second)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	root := t.TempDir()
	triggers := make(chan string, 16)
	w, err := New(root, nil, nil, Config{DebounceMs: 50, RescanIntervalSec: 3600}, func(_ context.Context, trigger string) {
		triggers <- trigger
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	w.Stop()
	w.Stop()

	if err := os.WriteFile(filepath.Join(root, "late.js"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	assertQuiet(t, triggers, 300*time.Millisecond)
}

func TestNew_AppliesDefaults(t *testing.T) {
	w, err := New(t.TempDir(), nil, nil, Config{}, func(context.Context, string) {}, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(w.Stop)

	if w.cfg.DebounceMs != 500 {
		t.Errorf("DebounceMs = %d, want 500", w.cfg.DebounceMs)
	}
	if w.cfg.RescanIntervalSec != 300 {
		t.Errorf("RescanIntervalSec = %d, want 300", w.cfg.RescanIntervalSec)
	}
}
