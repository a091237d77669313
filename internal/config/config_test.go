package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tasknexus/decomp-engine/internal/domain"
)

// validYAML returns a small valid configuration YAML string.
func validYAML() string {
	return `
engine:
  project_root: /tmp/project
  tag: sprint-12
scoring:
  expansion_threshold: 5
server:
  listen_addr: ":9901"
`
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Valid(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, validYAML())

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.ProjectRoot != "/tmp/project" {
		t.Errorf("ProjectRoot = %q, want /tmp/project", cfg.Engine.ProjectRoot)
	}
	if cfg.Engine.Tag != "sprint-12" {
		t.Errorf("Tag = %q, want sprint-12", cfg.Engine.Tag)
	}
	if cfg.Scoring.ExpansionThreshold != 5 {
		t.Errorf("ExpansionThreshold = %d, want 5", cfg.Scoring.ExpansionThreshold)
	}
	if cfg.Server.ListenAddr != ":9901" {
		t.Errorf("ListenAddr = %q, want :9901", cfg.Server.ListenAddr)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.StateDir != ".decomp" {
		t.Errorf("StateDir = %q, want .decomp", cfg.Engine.StateDir)
	}
	if cfg.Scoring.ExpansionThreshold != 6 {
		t.Errorf("ExpansionThreshold = %d, want 6", cfg.Scoring.ExpansionThreshold)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "engine: [unterminated")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, validYAML())

	t.Setenv("DECOMP_SERVER_LISTEN_ADDR", ":7777")
	t.Setenv("DECOMP_ENGINE_TAG", "hotfix")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":7777" {
		t.Errorf("ListenAddr = %q, want :7777 from env", cfg.Server.ListenAddr)
	}
	if cfg.Engine.Tag != "hotfix" {
		t.Errorf("Tag = %q, want hotfix from env", cfg.Engine.Tag)
	}
}

func TestLoad_MinExceedsMax(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
scoring:
  min_subtasks: 9
  max_subtasks: 4
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for min > max, got nil")
	}
	engineErr, ok := err.(*domain.EngineError)
	if !ok {
		t.Fatalf("expected EngineError, got %T", err)
	}
	if engineErr.Code != domain.ErrConfigInvalid.Code {
		t.Errorf("Code = %d, want %d", engineErr.Code, domain.ErrConfigInvalid.Code)
	}
}

func TestLoad_NegativeTimeout(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
runner:
  build_timeout_sec: -5
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for negative timeout, got nil")
	}
	engineErr, ok := err.(*domain.EngineError)
	if !ok {
		t.Fatalf("expected EngineError, got %T", err)
	}
	if engineErr.Code != domain.ErrConfigInvalid.Code {
		t.Errorf("Code = %d, want %d", engineErr.Code, domain.ErrConfigInvalid.Code)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, validYAML())

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Scoring.MaxSubtasks != 8 {
		t.Errorf("MaxSubtasks = %d, want 8", cfg.Scoring.MaxSubtasks)
	}
	if cfg.Scoring.MinSubtasks != 3 {
		t.Errorf("MinSubtasks = %d, want 3", cfg.Scoring.MinSubtasks)
	}
	if cfg.Runner.BuildTimeoutSec != 120 {
		t.Errorf("BuildTimeoutSec = %d, want 120", cfg.Runner.BuildTimeoutSec)
	}
	if cfg.Guard.RateLimitPerMinute != 60 {
		t.Errorf("RateLimitPerMinute = %d, want 60", cfg.Guard.RateLimitPerMinute)
	}
	if cfg.Watch.RescanIntervalSec != 300 {
		t.Errorf("RescanIntervalSec = %d, want 300", cfg.Watch.RescanIntervalSec)
	}
	if len(cfg.Engine.SourceDirs) != 4 {
		t.Errorf("SourceDirs = %v, want 4 defaults", cfg.Engine.SourceDirs)
	}
}

func TestPaths_RelativeAnchoredAtRoot(t *testing.T) {
	cfg := Default()
	cfg.Engine.ProjectRoot = "/tmp/project"

	if got := cfg.StateDirPath(); got != "/tmp/project/.decomp" {
		t.Errorf("StateDirPath = %q", got)
	}
	if got := cfg.TasksFilePath(); got != "/tmp/project/.decomp/tasks/tasks.json" {
		t.Errorf("TasksFilePath = %q", got)
	}
	if got := cfg.JournalDBPath(); got != "/tmp/project/.decomp/journal.db" {
		t.Errorf("JournalDBPath = %q", got)
	}
	if got := cfg.SyncDirPath(); got != "/tmp/project/.decomp/agent_sync" {
		t.Errorf("SyncDirPath = %q", got)
	}
}

func TestPaths_AbsoluteLeftAlone(t *testing.T) {
	cfg := Default()
	cfg.Engine.ProjectRoot = "/tmp/project"
	cfg.Engine.JournalPath = "/var/lib/decomp/journal.db"

	if got := cfg.JournalDBPath(); got != "/var/lib/decomp/journal.db" {
		t.Errorf("JournalDBPath = %q, want absolute path unchanged", got)
	}
}
