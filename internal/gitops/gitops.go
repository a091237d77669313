// Package gitops performs local git automation for the engine: branch and
// commit snapshots folded into the project state, per-task feature
// branches, and auto-commits after passing quality gates. Everything is
// local; nothing is ever pushed.
package gitops

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/tasknexus/decomp-engine/internal/domain"
	"github.com/tasknexus/decomp-engine/internal/logging"
)

// Config controls which git automations run and how commits are signed.
type Config struct {
	AutoBranch   bool
	AutoCommit   bool
	BranchPrefix string
	AuthorName   string
	AuthorEmail  string
}

// Ops wraps one project repository.
type Ops struct {
	root string
	cfg  Config
	log  *logging.Logger
}

// New creates an Ops rooted at the project directory.
func New(root string, cfg Config, log *logging.Logger) *Ops {
	return &Ops{root: root, cfg: cfg, log: log}
}

// Snapshot reports the current branch and short commit hash. A directory
// that is not a git repository, or a repository without a usable HEAD,
// reads as the default branch with no commit — never an error.
func (o *Ops) Snapshot(ctx context.Context) (branch, commit string) {
	branch = "main"

	repo, err := git.PlainOpen(o.root)
	if err != nil {
		return branch, ""
	}
	head, err := repo.Head()
	if err != nil {
		return branch, ""
	}
	if head.Name().IsBranch() {
		branch = head.Name().Short()
	}
	return branch, shortHash(head.Hash().String())
}

// EnsureBranch creates the task's feature branch, or switches to it when
// it already exists, and returns its name. With auto-branching disabled
// the current branch is returned unchanged.
func (o *Ops) EnsureBranch(ctx context.Context, taskID int, description string) (string, error) {
	current, _ := o.Snapshot(ctx)
	if !o.cfg.AutoBranch {
		return current, nil
	}

	repo, err := git.PlainOpen(o.root)
	if err != nil {
		return current, domain.ErrGitUnavailable
	}
	wt, err := repo.Worktree()
	if err != nil {
		return current, fmt.Errorf("opening worktree: %w", err)
	}

	name := BranchName(o.cfg.BranchPrefix, taskID, description)
	ref := plumbing.NewBranchReferenceName(name)

	opts := &git.CheckoutOptions{Branch: ref}
	if _, err := repo.Reference(ref, true); err != nil {
		opts.Create = true
	}
	if err := wt.Checkout(opts); err != nil {
		return current, fmt.Errorf("checking out %s: %w", name, err)
	}

	o.log.Info(ctx, "switched to task branch", zap.String("branch", name))
	return name, nil
}

// Commit stages every change and commits with a scope-derived message.
// A clean tree, or auto-commit disabled, commits nothing and returns an
// empty hash.
func (o *Ops) Commit(ctx context.Context, taskID int, description string) (string, error) {
	if !o.cfg.AutoCommit {
		return "", nil
	}

	repo, err := git.PlainOpen(o.root)
	if err != nil {
		return "", domain.ErrGitUnavailable
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("opening worktree: %w", err)
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("staging changes: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("reading status: %w", err)
	}
	if status.IsClean() {
		o.log.Debug(ctx, "no changes to commit")
		return "", nil
	}

	changed := make([]string, 0, len(status))
	for path := range status {
		changed = append(changed, path)
	}

	msg := commitMessage(taskID, description, changed)
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{
			Name:  o.cfg.AuthorName,
			Email: o.cfg.AuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}

	short := shortHash(hash.String())
	o.log.Info(ctx, "committed changes",
		zap.String("commit", short), zap.Int("files", len(changed)))
	return short, nil
}

var (
	slugStrip    = regexp.MustCompile(`[^\w\s-]`)
	slugCollapse = regexp.MustCompile(`[-\s]+`)
)

// BranchName builds the feature branch name for a task:
// "<prefix>task-<id>-<slug>", slug capped at 30 characters.
func BranchName(prefix string, taskID int, description string) string {
	slug := strings.TrimSpace(slugStrip.ReplaceAllString(description, ""))
	slug = slugCollapse.ReplaceAllString(slug, "-")
	if len(slug) > 30 {
		slug = slug[:30]
	}
	return strings.ToLower(fmt.Sprintf("%stask-%d-%s", prefix, taskID, slug))
}

// commitMessage renders the conventional-commit style message:
// "feat(<scope>): <short description>" plus a task trailer.
func commitMessage(taskID int, description string, changed []string) string {
	short := description
	if len(short) > 50 {
		short = short[:50]
	}
	return fmt.Sprintf("feat(%s): %s\n\nTask %d: %s", commitScope(changed), short, taskID, description)
}

// scopeOrder fixes the tie-break for commitScope so equal counts resolve
// deterministically.
var scopeOrder = []string{"components", "services", "tests", "docs", "core"}

// commitScope derives the commit scope from the changed paths by simple
// substring votes; the most common scope wins, otherwise "misc".
func commitScope(changed []string) string {
	counts := map[string]int{}
	for _, path := range changed {
		lower := strings.ToLower(path)
		switch {
		case strings.Contains(lower, "component"):
			counts["components"]++
		case strings.Contains(lower, "service"):
			counts["services"]++
		case strings.Contains(lower, "test"):
			counts["tests"]++
		case strings.Contains(lower, "doc"), strings.Contains(lower, "readme"):
			counts["docs"]++
		case containsAny(path, ".js", ".ts", ".py", ".rs", ".go"):
			counts["core"]++
		}
	}

	best, bestCount := "misc", 0
	for _, scope := range scopeOrder {
		if counts[scope] > bestCount {
			best, bestCount = scope, counts[scope]
		}
	}
	return best
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
