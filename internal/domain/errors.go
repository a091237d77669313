package domain

import "fmt"

// EngineError is the unified error type for the engine.
// Each error has a numeric code and human-readable message.
type EngineError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(code int, msg string, cause error) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// ---- Engine / Task / Cycle errors (-32010 to -32039) ----

var (
	ErrTaskNotFound    = &EngineError{Code: -32010, Message: "task not found"}
	ErrSubtaskNotFound = &EngineError{Code: -32011, Message: "subtask not found"}
	ErrTagNotFound     = &EngineError{Code: -32012, Message: "task tag not found"}
	ErrSubtaskConflict = &EngineError{Code: -32013, Message: "task already has subtasks"}
	ErrTaskFileCorrupt = &EngineError{Code: -32014, Message: "task file has unrecognized shape"}
	ErrCycleNotFound   = &EngineError{Code: -32015, Message: "cycle not found"}
	ErrEngineClosed    = &EngineError{Code: -32016, Message: "engine has been closed"}
	ErrInvalidStatus   = &EngineError{Code: -32017, Message: "invalid task status value"}
	ErrStateDocCorrupt = &EngineError{Code: -32018, Message: "project state document failed validation"}
)

// ---- Runner / Verification errors (-32040 to -32069) ----

var (
	ErrRunNotFound       = &EngineError{Code: -32040, Message: "verification run not found"}
	ErrRunAlreadyDone    = &EngineError{Code: -32041, Message: "verification run is already in terminal state"}
	ErrEmptyCommand      = &EngineError{Code: -32042, Message: "verification command is empty"}
	ErrCommandRegistered = &EngineError{Code: -32043, Message: "command set already registered for project type"}
)

// ---- Guard / Policy errors (-32100 to -32129) ----

var (
	ErrCommandDenied     = &EngineError{Code: -32100, Message: "command denied by policy"}
	ErrBudgetExceeded    = &EngineError{Code: -32101, Message: "batch time budget exceeded"}
	ErrRateLimitExceeded = &EngineError{Code: -32102, Message: "rate limit exceeded"}
)

// ---- Quality errors (-32160 to -32189) ----

var (
	ErrMetricInvalid   = &EngineError{Code: -32160, Message: "quality metric validation failed"}
	ErrReportNoMetrics = &EngineError{Code: -32161, Message: "quality report requires at least one metric"}
)

// ---- Journal / State / Config errors (-32130 to -32159) ----

var (
	ErrJournalInit    = &EngineError{Code: -32130, Message: "failed to initialize journal"}
	ErrStateSave      = &EngineError{Code: -32133, Message: "failed to persist project state"}
	ErrSyncWrite      = &EngineError{Code: -32134, Message: "failed to publish consumer projection"}
	ErrConfigInvalid  = &EngineError{Code: -32135, Message: "invalid configuration"}
	ErrGitUnavailable = &EngineError{Code: -32136, Message: "git repository unavailable"}
)
