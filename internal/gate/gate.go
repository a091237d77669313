// Package gate evaluates readiness of the shared project document: whether
// recorded work may be considered done and progression may continue.
package gate

import (
	"fmt"
	"strings"

	"github.com/tasknexus/decomp-engine/internal/domain"
)

// check inspects one aspect of project state. A failing check reports a
// human-readable reason.
type check func(st *domain.ProjectState) (ok bool, reason string)

// namedGate pairs a stable gate name with its check.
type namedGate struct {
	name  string
	check check
}

// gates are evaluated in this fixed order. Every gate always runs so the
// result carries the complete reason list, not just the first failure.
var gates = []namedGate{
	{"tests", testGate},
	{"build", buildGate},
	{"errors", errorGate},
}

// Evaluate runs every gate against the document and aggregates failures.
func Evaluate(st *domain.ProjectState) domain.GateResult {
	result := domain.GateResult{Passed: true, Reasons: []string{}}
	for _, g := range gates {
		ok, reason := g.check(st)
		if !ok {
			result.Passed = false
			result.Reasons = append(result.Reasons, reason)
		}
	}
	return result
}

// testGate fails when any recorded result is an explicit failure. Errored
// executions do not count here; the batch that produced them already marked
// the build failed.
func testGate(st *domain.ProjectState) (bool, string) {
	failures := 0
	for _, r := range st.TestResults {
		if r == domain.ResultFail {
			failures++
		}
	}
	if failures > 0 {
		return false, fmt.Sprintf("%d test failures", failures)
	}
	return true, ""
}

// buildGate fails only on an explicit failed status. Unknown passes: no
// build has run yet.
func buildGate(st *domain.ProjectState) (bool, string) {
	if st.BuildStatus == domain.BuildFailed {
		return false, "build failing"
	}
	return true, ""
}

// errorGate fails when the error log holds entries mentioning "error".
// The match is a blunt case-insensitive substring check, so benign messages
// containing the word are flagged too.
func errorGate(st *domain.ProjectState) (bool, string) {
	critical := 0
	for _, e := range st.Errors {
		if strings.Contains(strings.ToLower(e), "error") {
			critical++
		}
	}
	if critical > 0 {
		return false, fmt.Sprintf("%d critical errors", critical)
	}
	return true, ""
}
