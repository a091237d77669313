// Package gap compares a task's implied requirements against a project
// snapshot and reports what is missing: files, dependencies, implementation
// aspects, and related comment markers. The extraction rules are crude
// keyword and suffix patterns; they trade precision for zero configuration.
package gap

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/tasknexus/decomp-engine/internal/domain"
	"github.com/tasknexus/decomp-engine/internal/logging"
)

// Name extraction patterns. The captured word keeps its original casing so
// "UserProfile component" surfaces as UserProfile, not Userprofile.
var (
	componentPattern = regexp.MustCompile(`(?i)(\w+)\s*(?:component|scanner|modal|button)`)
	servicePattern   = regexp.MustCompile(`(?i)(\w+)\s*(?:api|service)`)
	utilPattern      = regexp.MustCompile(`(?i)(\w+)\s*(?:util|helper)`)
)

// Analyzer derives GapReports. It is stateless and safe for concurrent use.
type Analyzer struct {
	log *logging.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(log *logging.Logger) *Analyzer {
	return &Analyzer{log: log}
}

// Analyze inspects one task against the snapshot. Identical inputs produce
// identical reports; sequences keep detection order.
func (a *Analyzer) Analyze(ctx context.Context, task domain.Task, snap domain.ProjectSnapshot) domain.GapReport {
	// The test strategy field is deliberately excluded: it describes how to
	// verify, not what to build.
	rawText := strings.Join([]string{task.Title, task.Description, task.Details}, " ")
	lowerText := strings.ToLower(rawText)

	files := toSet(snap.Files)
	deps := toSet(snap.Dependencies)

	report := domain.GapReport{
		MissingFiles:        missingFiles(rawText, lowerText, files),
		MissingDependencies: missingDependencies(lowerText, deps),
		ImplementationGaps:  implementationGaps(lowerText, snap.Files),
		RelevantNotes:       relevantNotes(lowerText, snap.Notes),
	}
	report.Score = len(report.MissingFiles)*2 +
		len(report.MissingDependencies)*3 +
		len(report.ImplementationGaps)*2 +
		len(report.RelevantNotes)

	a.log.Debug(ctx, "gap analysis complete",
		zap.Int("task_id", task.ID),
		zap.Int("missing_files", len(report.MissingFiles)),
		zap.Int("missing_dependencies", len(report.MissingDependencies)),
		zap.Int("implementation_gaps", len(report.ImplementationGaps)),
		zap.Int("relevant_notes", len(report.RelevantNotes)),
		zap.Int("gap_score", report.Score))
	return report
}

// missingFiles extracts entity names from the task text and maps them to
// expected paths, keeping only those absent from the snapshot.
func missingFiles(rawText, lowerText string, existing map[string]struct{}) []string {
	var missing []string

	appendMissing := func(paths ...string) {
		for _, p := range paths {
			if _, ok := existing[p]; !ok {
				missing = append(missing, p)
			}
		}
	}

	for _, m := range componentPattern.FindAllStringSubmatch(rawText, -1) {
		name := capitalizeFirst(m[1])
		appendMissing(
			"src/components/"+name+".js",
			"src/components/"+name+".test.js",
		)
	}

	if strings.Contains(lowerText, "api") || strings.Contains(lowerText, "service") {
		for _, m := range servicePattern.FindAllStringSubmatch(rawText, -1) {
			name := capitalizeFirst(m[1])
			appendMissing(
				"src/services/"+name+"API.js",
				"src/services/"+name+"API.test.js",
			)
		}
	}

	if strings.Contains(lowerText, "util") || strings.Contains(lowerText, "helper") {
		for _, m := range utilPattern.FindAllStringSubmatch(rawText, -1) {
			appendMissing("src/utils/" + strings.ToLower(m[1]) + ".js")
		}
	}

	return missing
}

// dependencyRule maps trigger keywords to a suggested package, suppressed
// when any of the satisfiedBy packages is already declared.
type dependencyRule struct {
	triggers    []string
	suggest     string
	satisfiedBy []string
}

var dependencyRules = []dependencyRule{
	{[]string{"barcode", "scanner", "camera"}, "html5-qrcode", []string{"html5-qrcode", "quagga"}},
	{[]string{"api"}, "axios", []string{"axios", "fetch"}},
	{[]string{"offline", "cache"}, "dexie", []string{"dexie", "idb"}},
	{[]string{"test"}, "@testing-library/react", []string{"@testing-library/react"}},
}

func missingDependencies(lowerText string, deps map[string]struct{}) []string {
	var missing []string
	for _, rule := range dependencyRules {
		if !containsAny(lowerText, rule.triggers) {
			continue
		}
		satisfied := false
		for _, dep := range rule.satisfiedBy {
			if _, ok := deps[dep]; ok {
				satisfied = true
				break
			}
		}
		if !satisfied {
			missing = append(missing, rule.suggest)
		}
	}
	return missing
}

func implementationGaps(lowerText string, existingFiles []string) []string {
	var gaps []string

	if containsAny(lowerText, []string{"error", "handling"}) {
		gaps = append(gaps, "Error handling implementation")
	}

	if containsAny(lowerText, []string{"test", "testing"}) {
		hasTests := false
		for _, f := range existingFiles {
			if strings.Contains(f, "test") {
				hasTests = true
				break
			}
		}
		if !hasTests {
			gaps = append(gaps, "Test setup and implementation")
		}
	}

	if containsAny(lowerText, []string{"performance", "optimize"}) {
		gaps = append(gaps, "Performance monitoring setup", "Optimization implementation")
	}

	if containsAny(lowerText, []string{"interface", "ui"}) {
		gaps = append(gaps, "Accessibility implementation")
	}

	if containsAny(lowerText, []string{"mobile", "pwa", "responsive"}) {
		gaps = append(gaps, "Mobile optimization", "PWA compliance checks")
	}

	return gaps
}

// relevantNotes keeps the notes sharing at least one whitespace-delimited
// token with the task text.
func relevantNotes(lowerText string, notes []domain.Note) []domain.Note {
	taskTokens := toSet(strings.Fields(lowerText))

	var relevant []domain.Note
	for _, note := range notes {
		for _, tok := range strings.Fields(strings.ToLower(note.Text)) {
			if _, ok := taskTokens[tok]; ok {
				relevant = append(relevant, note)
				break
			}
		}
	}
	return relevant
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
