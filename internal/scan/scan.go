// Package scan produces read-only snapshots of a managed project: detected
// type, existing files, declared dependencies, and comment markers. Missing
// or unreadable resources degrade to empty sets, never errors.
package scan

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/tasknexus/decomp-engine/internal/domain"
	"github.com/tasknexus/decomp-engine/internal/logging"
)

// Scanner walks a project root and assembles ProjectSnapshots.
type Scanner struct {
	root        string
	sourceDirs  []string
	excludeDirs map[string]struct{}
	log         *logging.Logger
}

// New creates a Scanner rooted at the given directory. sourceDirs are the
// subdirectories walked for files and comment markers; excludeDirs are
// directory names skipped at any depth.
func New(root string, sourceDirs, excludeDirs []string, log *logging.Logger) *Scanner {
	ex := make(map[string]struct{}, len(excludeDirs))
	for _, d := range excludeDirs {
		ex[d] = struct{}{}
	}
	return &Scanner{root: root, sourceDirs: sourceDirs, excludeDirs: ex, log: log}
}

// Snapshot assembles the current view of the project. Every section is
// best-effort; an absent manifest or source directory yields an empty set.
func (s *Scanner) Snapshot(ctx context.Context) domain.ProjectSnapshot {
	snap := domain.ProjectSnapshot{Type: DetectType(s.root)}
	snap.Dependencies = Dependencies(s.root, snap.Type)
	snap.Files = s.files()
	snap.Notes = s.notes()

	s.log.Debug(ctx, "project scanned",
		zap.String("project_type", string(snap.Type)),
		zap.Int("files", len(snap.Files)),
		zap.Int("dependencies", len(snap.Dependencies)),
		zap.Int("notes", len(snap.Notes)))
	return snap
}

// files walks the configured source directories and returns project-relative
// slash-separated paths, sorted.
func (s *Scanner) files() []string {
	var out []string
	for _, dir := range s.sourceDirs {
		base := filepath.Join(s.root, dir)
		info, err := os.Stat(base)
		if err != nil || !info.IsDir() {
			continue
		}
		_ = filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if _, skip := s.excludeDirs[d.Name()]; skip {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(s.root, path)
			if err != nil {
				return nil
			}
			out = append(out, filepath.ToSlash(rel))
			return nil
		})
	}
	return sortedSet(out)
}

// sortedSet deduplicates and sorts. Snapshot sequences carry set semantics,
// so a stable order keeps repeated scans byte-identical.
func sortedSet(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}
