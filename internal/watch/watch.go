// Package watch drives rescan cycles from filesystem activity: a debounced
// fsnotify watcher over the project root and its source directories, with
// a periodic ticker as fallback for anything the watcher misses.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/tasknexus/decomp-engine/internal/logging"
)

// Cycle trigger labels reported to the engine.
const (
	TriggerFS       = "fs"
	TriggerInterval = "interval"
)

// Config holds tunable parameters for the watch loop.
type Config struct {
	DebounceMs        int
	RescanIntervalSec int
}

// Watcher invokes the cycle callback when the project changes on disk.
// Each invocation runs synchronously inside the watch goroutine, so
// cycles never overlap.
type Watcher struct {
	root    string
	dirs    []string
	ignore  map[string]struct{}
	cfg     Config
	onCycle func(context.Context, string)
	log     *logging.Logger

	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a Watcher with sensible defaults for zero-value config
// fields. sourceDirs are watched recursively; ignoreDirs are skipped at
// any depth (the engine's own state directory belongs here, or every
// broadcast would trigger another cycle).
func New(root string, sourceDirs, ignoreDirs []string, cfg Config, onCycle func(context.Context, string), log *logging.Logger) (*Watcher, error) {
	if cfg.DebounceMs == 0 {
		cfg.DebounceMs = 500
	}
	if cfg.RescanIntervalSec == 0 {
		cfg.RescanIntervalSec = 300
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem watcher: %w", err)
	}

	ignore := make(map[string]struct{}, len(ignoreDirs))
	for _, d := range ignoreDirs {
		ignore[d] = struct{}{}
	}

	return &Watcher{
		root:    root,
		dirs:    sourceDirs,
		ignore:  ignore,
		cfg:     cfg,
		onCycle: onCycle,
		log:     log,
		watcher: fsw,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start registers the watch paths and spawns the event loop.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.root); err != nil {
		return fmt.Errorf("watching project root: %w", err)
	}
	for _, dir := range w.dirs {
		w.addTree(filepath.Join(w.root, dir))
	}

	go w.run(ctx)
	return nil
}

// Stop shuts the watch loop down. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
}

// addTree registers dir and every subdirectory, skipping ignored names.
// Missing directories are fine; they get picked up if created later.
func (w *Watcher) addTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if _, skip := w.ignore[d.Name()]; skip {
			return filepath.SkipDir
		}
		_ = w.watcher.Add(path)
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	debounce := time.Duration(w.cfg.DebounceMs) * time.Millisecond
	rescan := time.NewTicker(time.Duration(w.cfg.RescanIntervalSec) * time.Second)
	defer rescan.Stop()

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			// New directories join the watch set immediately.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.addTree(event.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.log.Debug(ctx, "filesystem change settled, triggering cycle")
			w.onCycle(ctx, TriggerFS)

		case <-rescan.C:
			w.onCycle(ctx, TriggerInterval)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn(ctx, "filesystem watcher error", zap.Error(err))
		}
	}
}

// relevant filters events down to content changes outside ignored
// directories. Chmod-only events never trigger a cycle.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return true
	}
	for _, segment := range strings.Split(filepath.ToSlash(rel), "/") {
		if _, skip := w.ignore[segment]; skip {
			return false
		}
	}
	return true
}
