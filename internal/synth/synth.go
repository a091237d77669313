// Package synth turns gap reports into ordered subtask lists and classifies
// subtask titles for verification command selection.
package synth

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tasknexus/decomp-engine/internal/domain"
)

// noteTitleLimit bounds the note excerpt embedded in a subtask title.
const noteTitleLimit = 50

// Synthesize generates subtasks from a gap report. Generation order is
// fixed: dependencies, files, implementation gaps, notes, then one trailing
// integration subtask when more than one file is missing. IDs are dense and
// 1-based in that order; rerunning on an equal report reproduces the exact
// same list.
func Synthesize(report domain.GapReport) []domain.Subtask {
	var subtasks []domain.Subtask
	id := 1

	add := func(s domain.Subtask) {
		s.ID = id
		s.Status = domain.TaskPending
		if s.Dependencies == nil {
			s.Dependencies = []int{}
		}
		subtasks = append(subtasks, s)
		id++
	}

	for _, dep := range report.MissingDependencies {
		add(domain.Subtask{
			Title:        fmt.Sprintf("Install %s dependency", dep),
			Description:  fmt.Sprintf("Add %s to the project manifest and configure for use", dep),
			Details:      fmt.Sprintf("Install %s with the project's package manager and set up initial configuration", dep),
			TestStrategy: fmt.Sprintf("Verify %s is properly installed and importable", dep),
		})
	}

	for _, file := range report.MissingFiles {
		stem := fileStem(file)
		add(domain.Subtask{
			Title:        fmt.Sprintf("Create %s file", stem),
			Description:  fmt.Sprintf("Implement %s with required functionality", file),
			Details:      fmt.Sprintf("Create %s with proper structure and exports", file),
			TestStrategy: fmt.Sprintf("Ensure %s can be imported and used correctly", file),
		})
	}

	for _, gap := range report.ImplementationGaps {
		add(domain.Subtask{
			Title:        fmt.Sprintf("Implement %s", gap),
			Description:  fmt.Sprintf("Add %s to meet task requirements", gap),
			Details:      fmt.Sprintf("Research and implement %s following best practices", gap),
			TestStrategy: fmt.Sprintf("Test %s functionality thoroughly", gap),
		})
	}

	for _, note := range report.RelevantNotes {
		full := note.Location + ": " + note.Text
		add(domain.Subtask{
			Title:        fmt.Sprintf("Address TODO: %s...", truncate(full, noteTitleLimit)),
			Description:  "Resolve TODO comment found in codebase",
			Details:      full,
			TestStrategy: "Verify TODO item is properly resolved",
		})
	}

	if len(report.MissingFiles) > 1 {
		deps := make([]int, 0, id-1)
		for i := 1; i < id; i++ {
			deps = append(deps, i)
		}
		add(domain.Subtask{
			Title:        "Integration testing",
			Description:  "Test integration between all components",
			Details:      "Create integration tests to verify all components work together",
			TestStrategy: "End-to-end testing of complete functionality",
			Dependencies: deps,
		})
	}

	return subtasks
}

// Classify buckets a subtask title for test selection. The checks are
// ordered; the first match wins.
func Classify(title string) string {
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "install") && strings.Contains(lower, "dependency"):
		return "dependency_install"
	case strings.Contains(lower, "create") && strings.Contains(lower, "file"):
		return "file_creation"
	case strings.Contains(lower, "implement"):
		return "implementation"
	case strings.Contains(lower, "test"):
		return "testing"
	default:
		return "unknown"
	}
}

// fileStem strips the directory and the last extension only, so
// "src/components/UserProfile.test.js" becomes "UserProfile.test".
func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// truncate limits s to n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
