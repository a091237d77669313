// Package main is the entry point for the decomposition engine daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tasknexus/decomp-engine/internal/config"
	"github.com/tasknexus/decomp-engine/internal/engine"
	"github.com/tasknexus/decomp-engine/internal/ipc"
	"github.com/tasknexus/decomp-engine/internal/journal"
	"github.com/tasknexus/decomp-engine/internal/logging"
	"github.com/tasknexus/decomp-engine/internal/watch"
)

const configFileName = "decomp.yaml"

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to configuration YAML file")
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("decompd %s (commit=%s, built=%s)\n", version, commit, date)
		os.Exit(0)
	}

	// Resolve config path: --config flag > DECOMP_CONFIG env > auto-discover.
	// No file at all is fine; the defaults target the current directory.
	path := *configPath
	if path == "" {
		path = os.Getenv("DECOMP_CONFIG")
	}
	if path == "" {
		path = discoverConfig()
	}

	cfg, err := config.Load(path)
	if err != nil {
		fatal(fmt.Sprintf("load config: %v", err))
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fatal(fmt.Sprintf("init logging: %v", err))
	}
	defer log.Sync()

	// The journal expects its parent directory to exist.
	if err := os.MkdirAll(cfg.StateDirPath(), 0755); err != nil {
		fatal(fmt.Sprintf("create state dir: %v", err))
	}

	db, err := journal.NewDB(cfg.JournalDBPath())
	if err != nil {
		fatal(fmt.Sprintf("open journal: %v", err))
	}
	defer db.Close()

	eng := engine.New(cfg, db, log)
	ctx := context.Background()

	if *once {
		rec, err := eng.RunCycle(ctx, "manual")
		if err != nil {
			fatal(fmt.Sprintf("run cycle: %v", err))
		}
		fmt.Printf("cycle %s: project=%s files=%d gate_passed=%v\n",
			rec.CycleID, rec.ProjectType, rec.FileCount, rec.GatePassed)
		return
	}

	// The engine's own state directory must never feed the watcher, or every
	// broadcast would trigger another cycle.
	ignore := append([]string{}, cfg.Engine.ExcludeDirs...)
	ignore = append(ignore, filepath.Base(cfg.Engine.StateDir))

	watcher, err := watch.New(cfg.Engine.ProjectRoot, cfg.Engine.SourceDirs, ignore, watch.Config{
		DebounceMs:        cfg.Watch.DebounceMs,
		RescanIntervalSec: cfg.Watch.RescanIntervalSec,
	}, func(ctx context.Context, trigger string) {
		if _, err := eng.RunCycle(ctx, trigger); err != nil {
			log.Error(ctx, "cycle failed", zap.String("trigger", trigger), zap.Error(err))
		}
	}, log)
	if err != nil {
		fatal(fmt.Sprintf("init watcher: %v", err))
	}
	if err := watcher.Start(ctx); err != nil {
		fatal(fmt.Sprintf("start watcher: %v", err))
	}

	handler := &ipc.Handler{Engine: eng}
	srv := ipc.NewServer(handler, cfg.Server.ListenAddr)

	// Graceful shutdown on interrupt.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info(ctx, "shutting down")

		watcher.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "server shutdown", zap.Error(err))
		}
	}()

	log.Info(ctx, "decomposition engine listening",
		zap.String("addr", cfg.Server.ListenAddr),
		zap.String("project_root", cfg.Engine.ProjectRoot),
		zap.String("version", version))

	if err := srv.Start(); err != nil && err != http.ErrServerClosed {
		fatal(fmt.Sprintf("server error: %v", err))
	}

	if err := eng.Close(); err != nil {
		log.Warn(ctx, "engine close", zap.Error(err))
	}
}

// discoverConfig looks for decomp.yaml next to the executable, then in the
// cwd. An empty return means run on defaults.
func discoverConfig() string {
	// Next to executable.
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), configFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	// Current working directory.
	if _, err := os.Stat(configFileName); err == nil {
		return configFileName
	}
	return ""
}

// fatal prints an error and exits. Used before and after the structured
// logger is available; boot failures should be readable without a JSON
// decoder.
func fatal(msg string) {
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", msg)
	os.Exit(1)
}
