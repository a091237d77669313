// Package domain defines the core types for the decomposition engine.
package domain

// TaskStatus represents the externally-owned lifecycle state of a work item.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskDone       TaskStatus = "done"
)

// Task is an externally owned work item. The engine treats it as read-mostly
// input and writes back only subtasks and status through the task store.
type Task struct {
	ID           int        `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Details      string     `json:"details,omitempty"`
	TestStrategy string     `json:"testStrategy,omitempty"`
	Status       TaskStatus `json:"status"`
	Subtasks     []Subtask  `json:"subtasks,omitempty"`
}

// Subtask is a child work item synthesized by the engine. IDs are dense and
// 1-based in generation order; Dependencies holds sibling ids that must
// complete first.
type Subtask struct {
	ID           int        `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Details      string     `json:"details,omitempty"`
	TestStrategy string     `json:"testStrategy,omitempty"`
	Dependencies []int      `json:"dependencies"`
	Status       TaskStatus `json:"status"`
}

// ComplexityScore is the derived result of scoring one task's text.
// It is recomputed on demand and never persisted as a source of truth.
type ComplexityScore struct {
	TotalScore        int
	Indicators        map[string]int
	TaskType          string
	SuggestedSubtasks int
	ShouldExpand      bool
	Recommendation    string
}

// Note is a source-comment marker (TODO/FIXME/HACK/NOTE) found during a scan.
type Note struct {
	Location string `json:"location"`
	Text     string `json:"text"`
}

// GapReport describes the concrete discrepancies between a task's implied
// requirements and the current project state. Sequences keep detection order.
type GapReport struct {
	MissingFiles        []string
	MissingDependencies []string
	ImplementationGaps  []string
	RelevantNotes       []Note
	Score               int
}

// TestResult classifies the outcome of one external verification command.
type TestResult string

const (
	ResultPass  TestResult = "pass"
	ResultFail  TestResult = "fail"
	ResultSkip  TestResult = "skip"
	ResultError TestResult = "error"
)

// BuildStatus summarizes the most recent verification batch.
type BuildStatus string

const (
	BuildUnknown BuildStatus = "unknown"
	BuildPassed  BuildStatus = "passed"
	BuildFailed  BuildStatus = "failed"
)

// ProjectType identifies the detected project flavor. Detection happens once;
// the value is stable afterwards.
type ProjectType string

const (
	TypeReact   ProjectType = "react"
	TypeVue     ProjectType = "vue"
	TypeAngular ProjectType = "angular"
	TypeNode    ProjectType = "node"
	TypePython  ProjectType = "python"
	TypeRust    ProjectType = "rust"
	TypeGo      ProjectType = "go"
	TypeUnknown ProjectType = "unknown"
)

// ProjectState is the single shared persisted document. InstalledDependencies,
// CreatedFiles, and CompletedSubtasks carry set semantics; they are replaced
// wholesale by each scan, and serialization order is not significant.
type ProjectState struct {
	InstalledDependencies []string              `json:"installed_dependencies"`
	CreatedFiles          []string              `json:"created_files"`
	CompletedSubtasks     []string              `json:"completed_subtasks"`
	TestResults           map[string]TestResult `json:"test_results"`
	BuildStatus           BuildStatus           `json:"build_status"`
	ProjectType           ProjectType           `json:"project_type"`
	Errors                []string              `json:"errors"`
	GitBranch             string                `json:"git_branch,omitempty"`
	LastCommit            string                `json:"last_commit,omitempty"`
	QualityScore          float64               `json:"quality_score,omitempty"`
	LastUpdatedUnix       int64                 `json:"last_updated_unix"`
}

// TestExecution is the ephemeral result of one external verification command.
// It is not persisted beyond folding into ProjectState.TestResults.
type TestExecution struct {
	TestType        string
	Result          TestResult
	Output          string
	DurationSeconds float64
}

// GateResult is the outcome of evaluating the quality gates over a state.
type GateResult struct {
	Passed  bool
	Reasons []string
}

// ProjectSnapshot is the read-only view of project reality consumed by the
// gap analyzer and the state store: existing files, declared dependencies,
// and scanned comment markers. Missing resources appear as empty sets.
type ProjectSnapshot struct {
	Type         ProjectType
	Files        []string
	Dependencies []string
	Notes        []Note
}

// ComplexityFactors are the derived counters published to the complexity
// consumer. TestCoverage is passing/total, or 0.0 with no recorded tests.
type ComplexityFactors struct {
	FileCount       int     `json:"file_count"`
	DependencyCount int     `json:"dependency_count"`
	TestCoverage    float64 `json:"test_coverage"`
}

// Projection is a consumer-specific filtered view of project state published
// for another process to read. The base fields are common to every consumer;
// the optional fields carry each consumer's extra view.
type Projection struct {
	Consumer          string             `json:"consumer"`
	GeneratedAtUnix   int64              `json:"generated_at_unix"`
	State             ProjectState       `json:"project_state"`
	QualityGatePassed bool               `json:"quality_gate_passed"`
	SkipDependencies  []string           `json:"skip_dependencies,omitempty"`
	SkipFiles         []string           `json:"skip_files,omitempty"`
	CompletedSubtasks []string           `json:"completed_subtasks,omitempty"`
	ProjectDeps       []string           `json:"project_dependencies,omitempty"`
	Factors           *ComplexityFactors `json:"project_complexity_factors,omitempty"`
	QualityVerdict    string             `json:"quality_verdict,omitempty"`
}

// CommandSheet lists what the verification runner may execute. Commands not
// on the allow list, or matching a denied pattern, are refused and audited.
type CommandSheet struct {
	AllowedCommands []string
	DeniedPatterns  []string
	CreatedAtUnix   int64
}

// QualityDimension names one measured aspect of project health.
type QualityDimension string

const (
	DimTestCoverage  QualityDimension = "test_coverage"
	DimBuildHealth   QualityDimension = "build_health"
	DimLintScore     QualityDimension = "lint_score"
	DimErrorBudget   QualityDimension = "error_budget"
	DimDocCoverage   QualityDimension = "doc_coverage"
	DimSecurityScore QualityDimension = "security_score"
)

// QualityMetric is one scored dimension (0-10) with its weight and threshold.
type QualityMetric struct {
	Dimension QualityDimension
	Score     float64
	Weight    float64
	Threshold float64
	Passed    bool
	Details   string
}

// QualityReport aggregates weighted metrics into an overall assessment.
type QualityReport struct {
	OverallScore   float64
	Metrics        []QualityMetric
	CriticalIssues []string
	Warnings       []string
	Verdict        string
}

// CycleRecord is one journal row describing a scan-and-broadcast cycle.
type CycleRecord struct {
	CycleID         string
	Trigger         string
	ProjectType     ProjectType
	FileCount       int
	DependencyCount int
	GatePassed      bool
	GateReasons     []string
	QualityScore    float64
	StartedAtUnix   int64
	FinishedAtUnix  int64
}

// RunStatus is the lifecycle state of a journaled verification run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunDone      RunStatus = "done"
	RunCancelled RunStatus = "cancelled"
)

// VerificationRun is one journal row describing an external command
// invocation: what ran, under which cycle, and how it resolved.
type VerificationRun struct {
	RunID           string
	CycleID         string
	ContextKey      string
	Command         string
	Status          RunStatus
	Result          TestResult
	Output          string
	DurationSeconds float64
	DeadlineUnix    int64
	CreatedAtUnix   int64
}

// Publication is one journal row recording a projection file written during
// a cycle's broadcast.
type Publication struct {
	ID            int64
	CycleID       string
	Consumer      string
	Path          string
	CreatedAtUnix int64
}

// AuditRecord is one journal row describing a guard decision worth keeping:
// refused commands, exhausted budgets, rate-limit trips.
type AuditRecord struct {
	ID            string
	Category      string
	Action        string
	Detail        string
	Severity      string
	CreatedAtUnix int64
}

// BudgetAction is the budget governor's verdict on a verification batch's
// accumulated wall-clock spend.
type BudgetAction string

const (
	BudgetContinue BudgetAction = "continue"
	BudgetWarn     BudgetAction = "warn"
	BudgetHalt     BudgetAction = "halt"
)
