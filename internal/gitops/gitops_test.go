package gitops

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/tasknexus/decomp-engine/internal/domain"
	"github.com/tasknexus/decomp-engine/internal/logging"
)

var testConfig = Config{
	AutoBranch:   true,
	AutoCommit:   true,
	BranchPrefix: "feature/",
	AuthorName:   "tester",
	AuthorEmail:  "tester@example.com",
}

// initRepo creates a repository with one commit on master.
func initRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# demo\n"), 0o644); err != nil {
		t.Fatalf("write README: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if _, err := wt.Add("README.md"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	sig := &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()}
	if _, err := wt.Commit("initial", &git.CommitOptions{Author: sig}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return dir, repo
}

func TestSnapshot_NonRepo(t *testing.T) {
	o := New(t.TempDir(), testConfig, logging.NewNop())
	branch, commit := o.Snapshot(context.Background())
	if branch != "main" {
		t.Errorf("branch = %q, want main", branch)
	}
	if commit != "" {
		t.Errorf("commit = %q, want empty", commit)
	}
}

func TestSnapshot_Repo(t *testing.T) {
	dir, repo := initRepo(t)
	o := New(dir, testConfig, logging.NewNop())

	branch, commit := o.Snapshot(context.Background())
	if branch != "master" {
		t.Errorf("branch = %q, want master", branch)
	}

	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if want := head.Hash().String()[:8]; commit != want {
		t.Errorf("commit = %q, want %q", commit, want)
	}
}

func TestBranchName(t *testing.T) {
	tests := []struct {
		prefix string
		taskID int
		desc   string
		want   string
	}{
		{"feature/", 3, "Add User Auth!", "feature/task-3-add-user-auth"},
		{"feature/", 1, "Fix  bug -- now", "feature/task-1-fix-bug-now"},
		{"feature/", 7, "", "feature/task-7-"},
		{"", 12, "Implement the Whole Massive Refactoring of Everything", "task-12-implement-the-whole-massive-re"},
	}
	for _, tt := range tests {
		if got := BranchName(tt.prefix, tt.taskID, tt.desc); got != tt.want {
			t.Errorf("BranchName(%q, %d, %q) = %q, want %q", tt.prefix, tt.taskID, tt.desc, got, tt.want)
		}
	}
}

func TestEnsureBranch_CreatesAndSwitches(t *testing.T) {
	dir, repo := initRepo(t)
	o := New(dir, testConfig, logging.NewNop())
	ctx := context.Background()

	name, err := o.EnsureBranch(ctx, 5, "Add login")
	if err != nil {
		t.Fatalf("EnsureBranch: %v", err)
	}
	if name != "feature/task-5-add-login" {
		t.Errorf("name = %q, want feature/task-5-add-login", name)
	}

	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.Name().Short() != name {
		t.Errorf("HEAD = %q, want %q", head.Name().Short(), name)
	}

	// Second call switches to the existing branch.
	again, err := o.EnsureBranch(ctx, 5, "Add login")
	if err != nil {
		t.Fatalf("EnsureBranch again: %v", err)
	}
	if again != name {
		t.Errorf("second call = %q, want %q", again, name)
	}
}

func TestEnsureBranch_DisabledKeepsCurrent(t *testing.T) {
	dir, repo := initRepo(t)
	cfg := testConfig
	cfg.AutoBranch = false
	o := New(dir, cfg, logging.NewNop())

	name, err := o.EnsureBranch(context.Background(), 5, "Add login")
	if err != nil {
		t.Fatalf("EnsureBranch: %v", err)
	}
	if name != "master" {
		t.Errorf("name = %q, want master", name)
	}
	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.Name().Short() != "master" {
		t.Errorf("HEAD moved to %q", head.Name().Short())
	}
}

func TestEnsureBranch_NonRepo(t *testing.T) {
	o := New(t.TempDir(), testConfig, logging.NewNop())
	_, err := o.EnsureBranch(context.Background(), 1, "anything")
	if err != domain.ErrGitUnavailable {
		t.Fatalf("expected ErrGitUnavailable, got %v", err)
	}
}

func TestCommit_CleanTreeCommitsNothing(t *testing.T) {
	dir, _ := initRepo(t)
	o := New(dir, testConfig, logging.NewNop())

	hash, err := o.Commit(context.Background(), 1, "nothing changed")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if hash != "" {
		t.Errorf("hash = %q, want empty for clean tree", hash)
	}
}

func TestCommit_DisabledCommitsNothing(t *testing.T) {
	dir, _ := initRepo(t)
	if err := os.WriteFile(filepath.Join(dir, "new.go"), []byte("package new\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := testConfig
	cfg.AutoCommit = false
	o := New(dir, cfg, logging.NewNop())

	hash, err := o.Commit(context.Background(), 1, "should be skipped")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if hash != "" {
		t.Errorf("hash = %q, want empty when disabled", hash)
	}
}

func TestCommit_StagesAndCommits(t *testing.T) {
	dir, repo := initRepo(t)
	if err := os.MkdirAll(filepath.Join(dir, "tests"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tests", "login.spec.js"), []byte("test()\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	o := New(dir, testConfig, logging.NewNop())
	hash, err := o.Commit(context.Background(), 2, "Add login tests")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(hash) != 8 {
		t.Fatalf("hash = %q, want 8 characters", hash)
	}

	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.Hash().String()[:8] != hash {
		t.Errorf("returned hash %q does not match HEAD %q", hash, head.Hash().String()[:8])
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		t.Fatalf("CommitObject: %v", err)
	}
	if !strings.Contains(commit.Message, "feat(tests): Add login tests") {
		t.Errorf("message = %q, want feat(tests) subject", commit.Message)
	}
	if !strings.Contains(commit.Message, "Task 2: Add login tests") {
		t.Errorf("message = %q, want task trailer", commit.Message)
	}
	if commit.Author.Name != "tester" {
		t.Errorf("author = %q, want tester", commit.Author.Name)
	}

	// Nothing left to commit afterwards.
	again, err := o.Commit(context.Background(), 2, "Add login tests")
	if err != nil {
		t.Fatalf("second Commit: %v", err)
	}
	if again != "" {
		t.Errorf("second commit hash = %q, want empty", again)
	}
}

func TestCommitScope(t *testing.T) {
	tests := []struct {
		name    string
		changed []string
		want    string
	}{
		{"empty", nil, "misc"},
		{"component file", []string{"src/components/UserProfile.js"}, "components"},
		{"majority wins", []string{"src/api/userService.js", "src/api/authService.js", "src/components/x.js"}, "services"},
		{"readme", []string{"README.md"}, "docs"},
		{"source file", []string{"main.go"}, "core"},
		{"json counts as core", []string{"data.json"}, "core"},
		{"tie breaks in fixed order", []string{"src/components/a.js", "src/services/b.js"}, "components"},
		{"unmatched", []string{"Makefile"}, "misc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := commitScope(tt.changed); got != tt.want {
				t.Errorf("commitScope(%v) = %q, want %q", tt.changed, got, tt.want)
			}
		})
	}
}
