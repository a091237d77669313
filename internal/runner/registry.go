// Package runner selects and executes the external verification commands
// for completed subtasks. Commands are opaque programs: their exit code and
// captured output are the entire contract.
package runner

import (
	"strings"

	"github.com/tasknexus/decomp-engine/internal/domain"
)

// fallbackCommand is used for project types with no registered commands.
const fallbackCommand = "echo 'No tests configured'"

// CommandSet holds one project type's verification commands by role. An
// empty role is skipped during selection; an empty Smoke falls back to Test.
type CommandSet struct {
	Test  string
	Build string
	Lint  string
	Smoke string
}

// Registry maps project types to their command sets.
type Registry struct {
	sets map[domain.ProjectType]CommandSet
}

// NewRegistry creates a registry seeded with the built-in command sets.
func NewRegistry() *Registry {
	return &Registry{
		sets: map[domain.ProjectType]CommandSet{
			domain.TypeReact: {
				Test:  "npm test -- --watchAll=false",
				Build: "npm run build",
				Lint:  "npm run lint",
				Smoke: "npm test -- --watchAll=false --passWithNoTests",
			},
			domain.TypeVue: {
				Test:  "npm test",
				Build: "npm run build",
				Lint:  "npm run lint",
			},
			domain.TypeAngular: {
				Test:  "npx ng test --watch=false",
				Build: "npx ng build",
				Lint:  "npx ng lint",
			},
			domain.TypeNode: {
				Test:  "npm test",
				Build: "npm run build",
				Lint:  "npm run lint",
			},
			domain.TypePython: {
				Test:  "python -m pytest",
				Build: "python -m build",
				Lint:  "python -m flake8",
			},
			domain.TypeRust: {
				Test:  "cargo test",
				Build: "cargo build --release",
				Lint:  "cargo clippy",
			},
			domain.TypeGo: {
				Test:  "go test -cover ./...",
				Build: "go build ./...",
				Lint:  "go vet ./...",
			},
		},
	}
}

// Register adds a command set for a new project type. Built-in and
// previously registered types cannot be replaced.
func (r *Registry) Register(ptype domain.ProjectType, set CommandSet) error {
	if _, ok := r.sets[ptype]; ok {
		return domain.ErrCommandRegistered
	}
	r.sets[ptype] = set
	return nil
}

// Lookup returns the command set for a project type. Unknown types get a
// placeholder set whose only command reports that no tests are configured.
func (r *Registry) Lookup(ptype domain.ProjectType) CommandSet {
	if set, ok := r.sets[ptype]; ok {
		return set
	}
	return CommandSet{Test: fallbackCommand, Smoke: fallbackCommand}
}

// SelectForSubtask maps a subtask classification to the commands that
// verify it: dependency installs get the cheap smoke run, file creation and
// implementation work get the full test-and-build pair, anything else gets
// the smoke run.
func (r *Registry) SelectForSubtask(ptype domain.ProjectType, classification string) []string {
	set := r.Lookup(ptype)
	smoke := set.Smoke
	if smoke == "" {
		smoke = set.Test
	}

	c := strings.ToLower(classification)
	var selected []string
	switch {
	case strings.Contains(c, "dependency"):
		selected = []string{smoke}
	case strings.Contains(c, "file"), strings.Contains(c, "component"):
		selected = []string{set.Test, set.Build}
	case strings.Contains(c, "implement"):
		selected = []string{set.Test, set.Build}
	default:
		selected = []string{smoke}
	}

	commands := []string{}
	for _, cmd := range selected {
		if cmd != "" {
			commands = append(commands, cmd)
		}
	}
	return commands
}
