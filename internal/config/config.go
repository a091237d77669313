// Package config provides configuration loading for the decomposition engine.
//
// Precedence (highest to lowest): environment variables with the DECOMP_
// prefix, then the YAML config file, then hardcoded defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/tasknexus/decomp-engine/internal/domain"
)

// Config holds the engine's runtime configuration.
type Config struct {
	Engine  EngineConfig  `koanf:"engine"`
	Scoring ScoringConfig `koanf:"scoring"`
	Runner  RunnerConfig  `koanf:"runner"`
	Guard   GuardConfig   `koanf:"guard"`
	Watch   WatchConfig   `koanf:"watch"`
	Git     GitConfig     `koanf:"git"`
	Server  ServerConfig  `koanf:"server"`
	Logging LoggingConfig `koanf:"logging"`
}

// EngineConfig locates the project under management and the engine's own
// state directory within it.
type EngineConfig struct {
	ProjectRoot string   `koanf:"project_root"`
	StateDir    string   `koanf:"state_dir"`
	TasksFile   string   `koanf:"tasks_file"`
	JournalPath string   `koanf:"journal_path"`
	Tag         string   `koanf:"tag"`
	SourceDirs  []string `koanf:"source_dirs"`
	ExcludeDirs []string `koanf:"exclude_dirs"`
}

// ScoringConfig tunes complexity scoring and expansion suggestions.
type ScoringConfig struct {
	ExpansionThreshold int `koanf:"expansion_threshold"`
	MaxSubtasks        int `koanf:"max_subtasks"`
	MinSubtasks        int `koanf:"min_subtasks"`
}

// RunnerConfig bounds external verification commands.
type RunnerConfig struct {
	AnalysisTimeoutSec int `koanf:"analysis_timeout_sec"`
	BuildTimeoutSec    int `koanf:"build_timeout_sec"`
}

// GuardConfig restricts what the runner may execute and how fast.
type GuardConfig struct {
	AllowedCommands    []string `koanf:"allowed_commands"`
	DeniedPatterns     []string `koanf:"denied_patterns"`
	RateLimitPerMinute int      `koanf:"rate_limit_per_minute"`
	BatchBudgetSec     float64  `koanf:"batch_budget_sec"`
}

// WatchConfig controls the filesystem watcher and the periodic rescan.
type WatchConfig struct {
	DebounceMs        int `koanf:"debounce_ms"`
	RescanIntervalSec int `koanf:"rescan_interval_sec"`
}

// GitConfig controls optional branch and commit automation.
type GitConfig struct {
	AutoBranch   bool   `koanf:"auto_branch"`
	AutoCommit   bool   `koanf:"auto_commit"`
	BranchPrefix string `koanf:"branch_prefix"`
	AuthorName   string `koanf:"author_name"`
	AuthorEmail  string `koanf:"author_email"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	ListenAddr string `koanf:"listen_addr"`
}

// LoggingConfig holds the log level and output format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Load reads a YAML config file, overlays DECOMP_-prefixed environment
// variables, applies defaults, and validates. A missing file is not an
// error; the defaults plus environment are used.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			content, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	// Environment overrides: DECOMP_SERVER_LISTEN_ADDR -> server.listen_addr.
	// The first underscore separates section from field name.
	if err := k.Load(env.Provider("DECOMP_", ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, "DECOMP_"))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the built-in configuration with no file or environment
// applied. Used by tests and one-shot invocations.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Engine.ProjectRoot == "" {
		c.Engine.ProjectRoot = "."
	}
	if c.Engine.StateDir == "" {
		c.Engine.StateDir = ".decomp"
	}
	if c.Engine.Tag == "" {
		c.Engine.Tag = "master"
	}
	if len(c.Engine.SourceDirs) == 0 {
		c.Engine.SourceDirs = []string{"src", "components", "services", "utils"}
	}
	if len(c.Engine.ExcludeDirs) == 0 {
		c.Engine.ExcludeDirs = []string{".git", "node_modules", ".next", "build", "dist", "__pycache__", "target", "vendor"}
	}
	if c.Scoring.ExpansionThreshold == 0 {
		c.Scoring.ExpansionThreshold = 6
	}
	if c.Scoring.MaxSubtasks == 0 {
		c.Scoring.MaxSubtasks = 8
	}
	if c.Scoring.MinSubtasks == 0 {
		c.Scoring.MinSubtasks = 3
	}
	if c.Runner.AnalysisTimeoutSec == 0 {
		c.Runner.AnalysisTimeoutSec = 60
	}
	if c.Runner.BuildTimeoutSec == 0 {
		c.Runner.BuildTimeoutSec = 120
	}
	if c.Guard.RateLimitPerMinute == 0 {
		c.Guard.RateLimitPerMinute = 60
	}
	if c.Guard.BatchBudgetSec == 0 {
		c.Guard.BatchBudgetSec = 600
	}
	if c.Watch.DebounceMs == 0 {
		c.Watch.DebounceMs = 500
	}
	if c.Watch.RescanIntervalSec == 0 {
		c.Watch.RescanIntervalSec = 300
	}
	if c.Git.BranchPrefix == "" {
		c.Git.BranchPrefix = "feature/"
	}
	if c.Git.AuthorName == "" {
		c.Git.AuthorName = "decomp-engine"
	}
	if c.Git.AuthorEmail == "" {
		c.Git.AuthorEmail = "decomp-engine@localhost"
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":9700"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.Scoring.ExpansionThreshold < 0 {
		problems = append(problems, "scoring.expansion_threshold must not be negative")
	}
	if c.Scoring.MinSubtasks > c.Scoring.MaxSubtasks {
		problems = append(problems, "scoring.min_subtasks must not exceed scoring.max_subtasks")
	}
	if c.Runner.AnalysisTimeoutSec < 0 || c.Runner.BuildTimeoutSec < 0 {
		problems = append(problems, "runner timeouts must not be negative")
	}
	if c.Guard.RateLimitPerMinute < 0 {
		problems = append(problems, "guard.rate_limit_per_minute must not be negative")
	}
	if c.Guard.BatchBudgetSec < 0 {
		problems = append(problems, "guard.batch_budget_sec must not be negative")
	}
	if c.Watch.DebounceMs < 0 || c.Watch.RescanIntervalSec < 0 {
		problems = append(problems, "watch intervals must not be negative")
	}

	if len(problems) > 0 {
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}

// resolve anchors a relative path at the project root.
func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Engine.ProjectRoot, p)
}

// StateDirPath returns the absolute-ish path of the engine state directory.
func (c *Config) StateDirPath() string {
	return c.resolve(c.Engine.StateDir)
}

// TasksFilePath returns the path of the external task document.
func (c *Config) TasksFilePath() string {
	if c.Engine.TasksFile != "" {
		return c.resolve(c.Engine.TasksFile)
	}
	return filepath.Join(c.StateDirPath(), "tasks", "tasks.json")
}

// JournalDBPath returns the path of the SQLite journal.
func (c *Config) JournalDBPath() string {
	if c.Engine.JournalPath != "" {
		return c.resolve(c.Engine.JournalPath)
	}
	return filepath.Join(c.StateDirPath(), "journal.db")
}

// SyncDirPath returns the directory consumer projections are published to.
func (c *Config) SyncDirPath() string {
	return filepath.Join(c.StateDirPath(), "agent_sync")
}
