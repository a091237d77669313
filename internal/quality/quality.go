// Package quality scores project health across weighted dimensions and
// renders an overall verdict. The report is advisory: it feeds the state
// document and projections but never blocks progression on its own.
package quality

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tasknexus/decomp-engine/internal/domain"
	"github.com/tasknexus/decomp-engine/internal/state"
)

// criticalScore is the floor below which a metric becomes a critical issue
// rather than a warning.
const criticalScore = 2.0

// dimensionOrder fixes metric ordering in reports.
var dimensionOrder = []domain.QualityDimension{
	domain.DimTestCoverage,
	domain.DimBuildHealth,
	domain.DimErrorBudget,
	domain.DimLintScore,
	domain.DimDocCoverage,
	domain.DimSecurityScore,
}

// thresholds are the per-dimension pass marks on the 0-10 scale.
var thresholds = map[domain.QualityDimension]float64{
	domain.DimTestCoverage:  8.0,
	domain.DimBuildHealth:   7.0,
	domain.DimErrorBudget:   7.0,
	domain.DimLintScore:     8.0,
	domain.DimDocCoverage:   7.0,
	domain.DimSecurityScore: 7.0,
}

// MetricValidator validates computed metrics before they enter a report.
type MetricValidator struct{}

// Validate checks all fields of the given metric and returns an error
// listing all violations if any are found.
func (v *MetricValidator) Validate(m domain.QualityMetric) error {
	var violations []string

	if m.Dimension == "" {
		violations = append(violations, "Dimension must be non-empty")
	}
	if m.Score < 0 || m.Score > 10 {
		violations = append(violations, fmt.Sprintf("Score %.2f out of range [0, 10]", m.Score))
	}
	if m.Threshold < 0 || m.Threshold > 10 {
		violations = append(violations, fmt.Sprintf("Threshold %.2f out of range [0, 10]", m.Threshold))
	}
	if m.Weight <= 0 {
		violations = append(violations, fmt.Sprintf("Weight %.2f must be positive", m.Weight))
	}

	if len(violations) > 0 {
		msg := strings.Join(violations, "; ")
		return domain.NewEngineError(domain.ErrMetricInvalid.Code, msg)
	}
	return nil
}

// Assessor derives a QualityReport from the shared project document using
// weighted dimension scoring.
type Assessor struct {
	Weights   map[domain.QualityDimension]float64
	Validator *MetricValidator
}

// DefaultWeights returns the standard dimension weight distribution.
func DefaultWeights() map[domain.QualityDimension]float64 {
	return map[domain.QualityDimension]float64{
		domain.DimTestCoverage:  0.30,
		domain.DimBuildHealth:   0.25,
		domain.DimErrorBudget:   0.15,
		domain.DimLintScore:     0.10,
		domain.DimDocCoverage:   0.10,
		domain.DimSecurityScore: 0.10,
	}
}

// NewAssessor creates an Assessor with the given weight map. Only dimensions
// present in the map are measured.
func NewAssessor(weights map[domain.QualityDimension]float64) *Assessor {
	return &Assessor{
		Weights:   weights,
		Validator: &MetricValidator{},
	}
}

// Assess measures every weighted dimension and aggregates the overall score.
func (a *Assessor) Assess(st *domain.ProjectState) (*domain.QualityReport, error) {
	var metrics []domain.QualityMetric
	for _, dim := range dimensionOrder {
		weight, ok := a.Weights[dim]
		if !ok {
			continue
		}
		score, details := measure(dim, st)
		m := domain.QualityMetric{
			Dimension: dim,
			Score:     score,
			Weight:    weight,
			Threshold: thresholds[dim],
			Details:   details,
		}
		m.Passed = m.Score >= m.Threshold
		if err := a.Validator.Validate(m); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	if len(metrics) == 0 {
		return nil, domain.ErrReportNoMetrics
	}

	var weightedSum, totalWeight float64
	for _, m := range metrics {
		weightedSum += m.Score * m.Weight
		totalWeight += m.Weight
	}
	overall := weightedSum / totalWeight

	report := &domain.QualityReport{
		OverallScore: overall,
		Metrics:      metrics,
		Verdict:      VerdictForScore(overall),
	}
	report.CriticalIssues, report.Warnings = findings(st, metrics)
	return report, nil
}

// VerdictForScore maps an overall 0-10 score to its verdict band.
func VerdictForScore(score float64) string {
	switch {
	case score >= 8.5:
		return "excellent"
	case score >= 7.0:
		return "good"
	case score >= 5.0:
		return "acceptable"
	default:
		return "poor"
	}
}

// measure computes one dimension's score and a short human-readable detail.
func measure(dim domain.QualityDimension, st *domain.ProjectState) (float64, string) {
	switch dim {
	case domain.DimTestCoverage:
		if len(st.TestResults) == 0 {
			// No results yet is unknown, not failing.
			return 5.0, "no test results recorded yet"
		}
		cov := state.TestCoverage(st)
		return cov * 10, fmt.Sprintf("%.0f%% of %d recorded results passing", cov*100, len(st.TestResults))

	case domain.DimBuildHealth:
		switch st.BuildStatus {
		case domain.BuildPassed:
			return 10.0, "last build passed"
		case domain.BuildFailed:
			return 0.0, "last build failed"
		default:
			return 5.0, "no build recorded yet"
		}

	case domain.DimErrorBudget:
		return clamp(10.0-2.0*float64(len(st.Errors)), 0, 10),
			fmt.Sprintf("%d entries in the error log", len(st.Errors))

	case domain.DimLintScore:
		n := countMentions(st.Errors, "lint")
		if n == 0 {
			return 8.0, "no lint findings in the error log"
		}
		return clamp(8.0-2.0*float64(n), 0, 10), fmt.Sprintf("%d error entries mention lint", n)

	case domain.DimDocCoverage:
		return docScore(st.CreatedFiles)

	case domain.DimSecurityScore:
		n := countMentions(st.Errors, "vulnerab", "security")
		if n == 0 {
			return 10.0, "no security findings in the error log"
		}
		return clamp(10.0-3.0*float64(n), 0, 10), fmt.Sprintf("%d error entries mention security issues", n)
	}
	return 0, "unmeasured dimension"
}

// findings splits failing metrics into critical issues and warnings. A
// failed build is always critical.
func findings(st *domain.ProjectState, metrics []domain.QualityMetric) (critical, warnings []string) {
	if st.BuildStatus == domain.BuildFailed {
		critical = append(critical, "build is failing")
	}
	for _, m := range metrics {
		if m.Score <= criticalScore {
			critical = append(critical, fmt.Sprintf("%s score %.1f is critically low", m.Dimension, m.Score))
		} else if !m.Passed {
			warnings = append(warnings, fmt.Sprintf("%s below threshold: %.1f < %.1f", m.Dimension, m.Score, m.Threshold))
		}
	}
	return critical, warnings
}

// docScore rates documentation presence from the created-file set.
func docScore(files []string) (float64, string) {
	hasMarkdown := false
	for _, f := range files {
		base := strings.ToLower(filepath.Base(f))
		if strings.HasPrefix(base, "readme") {
			return 10.0, "README present"
		}
		if strings.HasSuffix(base, ".md") {
			hasMarkdown = true
		}
	}
	if hasMarkdown {
		return 7.0, "markdown documentation present"
	}
	return 3.0, "no documentation files found"
}

// countMentions counts error entries containing any of the substrings,
// case-insensitively. An entry is counted once.
func countMentions(entries []string, subs ...string) int {
	n := 0
	for _, e := range entries {
		low := strings.ToLower(e)
		for _, s := range subs {
			if strings.Contains(low, s) {
				n++
				break
			}
		}
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
