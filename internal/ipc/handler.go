// Package ipc provides the HTTP status and control API for the engine.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tasknexus/decomp-engine/internal/domain"
	"github.com/tasknexus/decomp-engine/internal/engine"
)

// streamWindow bounds how far back the cycle stream looks on each poll.
const streamWindow = 50

// Handler holds the dependencies for the HTTP handlers.
type Handler struct {
	Engine *engine.Engine
}

// HealthResponse is the body for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ScoreResponse is the body for POST /api/v1/score.
type ScoreResponse struct {
	TotalScore        int            `json:"total_score"`
	Indicators        map[string]int `json:"indicators"`
	TaskType          string         `json:"task_type"`
	SuggestedSubtasks int            `json:"suggested_subtasks"`
	ShouldExpand      bool           `json:"should_expand"`
	Recommendation    string         `json:"recommendation"`
}

// ExpandRequest is the body for POST /api/v1/expand.
type ExpandRequest struct {
	TaskID int  `json:"task_id"`
	Force  bool `json:"force"`
}

// ExpandResponse reports an expansion outcome.
type ExpandResponse struct {
	TaskID              int              `json:"task_id"`
	TotalScore          int              `json:"total_score"`
	ShouldExpand        bool             `json:"should_expand"`
	Applied             bool             `json:"applied"`
	Branch              string           `json:"branch,omitempty"`
	MissingFiles        []string         `json:"missing_files"`
	MissingDependencies []string         `json:"missing_dependencies"`
	ImplementationGaps  []string         `json:"implementation_gaps"`
	Subtasks            []domain.Subtask `json:"subtasks"`
}

// CycleRequest is the body for POST /api/v1/cycle.
type CycleRequest struct {
	Trigger string `json:"trigger"`
}

// CycleView is the wire form of one journaled cycle.
type CycleView struct {
	CycleID         string   `json:"cycle_id"`
	Trigger         string   `json:"trigger"`
	ProjectType     string   `json:"project_type"`
	FileCount       int      `json:"file_count"`
	DependencyCount int      `json:"dependency_count"`
	GatePassed      bool     `json:"gate_passed"`
	GateReasons     []string `json:"gate_reasons"`
	QualityScore    float64  `json:"quality_score"`
	StartedAtUnix   int64    `json:"started_at_unix"`
	FinishedAtUnix  int64    `json:"finished_at_unix"`
}

// VerifyRequest is the body for POST /api/v1/verify.
type VerifyRequest struct {
	TaskID    int `json:"task_id"`
	SubtaskID int `json:"subtask_id"`
}

// ExecutionView is the wire form of one command execution.
type ExecutionView struct {
	TestType        string  `json:"test_type"`
	Result          string  `json:"result"`
	Output          string  `json:"output"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// VerifyResponse reports a verification batch outcome.
type VerifyResponse struct {
	CycleID     string          `json:"cycle_id"`
	ContextKey  string          `json:"context_key"`
	Verified    bool            `json:"verified"`
	GatePassed  bool            `json:"gate_passed"`
	GateReasons []string        `json:"gate_reasons"`
	Commit      string          `json:"commit,omitempty"`
	Executions  []ExecutionView `json:"executions"`
}

// GateResponse is the body for GET /api/v1/gate.
type GateResponse struct {
	Passed  bool     `json:"passed"`
	Reasons []string `json:"reasons"`
}

// RunView is the wire form of one journaled verification run.
type RunView struct {
	RunID           string  `json:"run_id"`
	CycleID         string  `json:"cycle_id"`
	ContextKey      string  `json:"context_key"`
	Command         string  `json:"command"`
	Status          string  `json:"status"`
	Result          string  `json:"result"`
	Output          string  `json:"output"`
	DurationSeconds float64 `json:"duration_seconds"`
	DeadlineUnix    int64   `json:"deadline_unix"`
	CreatedAtUnix   int64   `json:"created_at_unix"`
}

// PublicationView is the wire form of one journaled projection write.
type PublicationView struct {
	ID            int64  `json:"id"`
	CycleID       string `json:"cycle_id"`
	Consumer      string `json:"consumer"`
	Path          string `json:"path"`
	CreatedAtUnix int64  `json:"created_at_unix"`
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// GetState handles GET /api/v1/state.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	st, err := h.Engine.State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetGate handles GET /api/v1/gate.
func (h *Handler) GetGate(w http.ResponseWriter, r *http.Request) {
	res, err := h.Engine.Gate(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GateResponse{
		Passed:  res.Passed,
		Reasons: append([]string{}, res.Reasons...),
	})
}

// GetProjections handles GET /api/v1/projections.
func (h *Handler) GetProjections(w http.ResponseWriter, r *http.Request) {
	projections, err := h.Engine.Projections(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projections)
}

// ScoreTask handles POST /api/v1/score. The body is a single task; the score
// is computed on the fly and nothing is persisted.
func (h *Handler) ScoreTask(w http.ResponseWriter, r *http.Request) {
	var task domain.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}

	score := h.Engine.Score(task)
	writeJSON(w, http.StatusOK, ScoreResponse{
		TotalScore:        score.TotalScore,
		Indicators:        score.Indicators,
		TaskType:          score.TaskType,
		SuggestedSubtasks: score.SuggestedSubtasks,
		ShouldExpand:      score.ShouldExpand,
		Recommendation:    score.Recommendation,
	})
}

// ExpandTask handles POST /api/v1/expand.
func (h *Handler) ExpandTask(w http.ResponseWriter, r *http.Request) {
	var req ExpandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	if req.TaskID <= 0 {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "task_id is required"})
		return
	}

	result, err := h.Engine.Expand(r.Context(), req.TaskID, req.Force)
	if err != nil {
		writeError(w, err)
		return
	}

	subtasks := result.Subtasks
	if subtasks == nil {
		subtasks = []domain.Subtask{}
	}
	writeJSON(w, http.StatusOK, ExpandResponse{
		TaskID:              result.TaskID,
		TotalScore:          result.Score.TotalScore,
		ShouldExpand:        result.Score.ShouldExpand,
		Applied:             result.Applied,
		Branch:              result.Branch,
		MissingFiles:        append([]string{}, result.Report.MissingFiles...),
		MissingDependencies: append([]string{}, result.Report.MissingDependencies...),
		ImplementationGaps:  append([]string{}, result.Report.ImplementationGaps...),
		Subtasks:            subtasks,
	})
}

// TriggerCycle handles POST /api/v1/cycle. An empty trigger defaults to
// "manual".
func (h *Handler) TriggerCycle(w http.ResponseWriter, r *http.Request) {
	var req CycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	if req.Trigger == "" {
		req.Trigger = "manual"
	}

	rec, err := h.Engine.RunCycle(r.Context(), req.Trigger)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cycleView(*rec))
}

// VerifySubtask handles POST /api/v1/verify.
func (h *Handler) VerifySubtask(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	if req.TaskID <= 0 || req.SubtaskID <= 0 {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "task_id and subtask_id are required"})
		return
	}

	report, err := h.Engine.VerifySubtask(r.Context(), req.TaskID, req.SubtaskID)
	if err != nil {
		writeError(w, err)
		return
	}

	executions := make([]ExecutionView, 0, len(report.Executions))
	for _, ex := range report.Executions {
		executions = append(executions, ExecutionView{
			TestType:        ex.TestType,
			Result:          string(ex.Result),
			Output:          ex.Output,
			DurationSeconds: ex.DurationSeconds,
		})
	}
	writeJSON(w, http.StatusOK, VerifyResponse{
		CycleID:     report.CycleID,
		ContextKey:  report.ContextKey,
		Verified:    report.Verified,
		GatePassed:  report.Gate.Passed,
		GateReasons: append([]string{}, report.Gate.Reasons...),
		Commit:      report.Commit,
		Executions:  executions,
	})
}

// ListCycles handles GET /api/v1/cycles?limit=N.
func (h *Handler) ListCycles(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err == nil {
			limit = parsed
		}
	}

	cycles, err := h.Engine.RecentCycles(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]CycleView, 0, len(cycles))
	for _, rec := range cycles {
		views = append(views, cycleView(rec))
	}
	writeJSON(w, http.StatusOK, views)
}

// ListCycleRuns handles GET /api/v1/cycles/{cycleID}/runs.
func (h *Handler) ListCycleRuns(w http.ResponseWriter, r *http.Request) {
	cycleID := r.PathValue("cycleID")
	runs, err := h.Engine.CycleRuns(r.Context(), cycleID)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]RunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, RunView{
			RunID:           run.RunID,
			CycleID:         run.CycleID,
			ContextKey:      run.ContextKey,
			Command:         run.Command,
			Status:          string(run.Status),
			Result:          string(run.Result),
			Output:          run.Output,
			DurationSeconds: run.DurationSeconds,
			DeadlineUnix:    run.DeadlineUnix,
			CreatedAtUnix:   run.CreatedAtUnix,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// ListCyclePublications handles GET /api/v1/cycles/{cycleID}/publications.
func (h *Handler) ListCyclePublications(w http.ResponseWriter, r *http.Request) {
	cycleID := r.PathValue("cycleID")
	pubs, err := h.Engine.CyclePublications(r.Context(), cycleID)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]PublicationView, 0, len(pubs))
	for _, pub := range pubs {
		views = append(views, PublicationView{
			ID:            pub.ID,
			CycleID:       pub.CycleID,
			Consumer:      pub.Consumer,
			Path:          pub.Path,
			CreatedAtUnix: pub.CreatedAtUnix,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// StreamCycles handles GET /api/v1/cycles/stream (SSE). Every journaled
// cycle is emitted once, oldest first, then the journal is polled for new
// ones.
func (h *Handler) StreamCycles(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, APIError{Code: 500, Message: "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	emitted := map[string]bool{}

	// Send the initial batch.
	cycles, err := h.Engine.RecentCycles(r.Context(), streamWindow)
	if err != nil {
		writeSSEError(w, flusher, err)
		return
	}
	for i := len(cycles) - 1; i >= 0; i-- {
		emitted[cycles[i].CycleID] = true
		writeSSEEvent(w, flusher, cycleView(cycles[i]))
	}

	// Poll for new cycles.
	ctx := r.Context()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cycles, err := h.Engine.RecentCycles(ctx, streamWindow)
			if err != nil {
				return
			}
			for i := len(cycles) - 1; i >= 0; i-- {
				if emitted[cycles[i].CycleID] {
					continue
				}
				emitted[cycles[i].CycleID] = true
				writeSSEEvent(w, flusher, cycleView(cycles[i]))
			}
		}
	}
}

func cycleView(rec domain.CycleRecord) CycleView {
	return CycleView{
		CycleID:         rec.CycleID,
		Trigger:         rec.Trigger,
		ProjectType:     string(rec.ProjectType),
		FileCount:       rec.FileCount,
		DependencyCount: rec.DependencyCount,
		GatePassed:      rec.GatePassed,
		GateReasons:     append([]string{}, rec.GateReasons...),
		QualityScore:    rec.QualityScore,
		StartedAtUnix:   rec.StartedAtUnix,
		FinishedAtUnix:  rec.FinishedAtUnix,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var engErr *domain.EngineError
	if errors.As(err, &engErr) {
		status := http.StatusInternalServerError
		switch engErr.Code {
		case domain.ErrTaskNotFound.Code, domain.ErrSubtaskNotFound.Code,
			domain.ErrTagNotFound.Code, domain.ErrCycleNotFound.Code,
			domain.ErrRunNotFound.Code:
			status = http.StatusNotFound
		case domain.ErrSubtaskConflict.Code:
			status = http.StatusConflict
		case domain.ErrCommandDenied.Code, domain.ErrBudgetExceeded.Code:
			status = http.StatusForbidden
		case domain.ErrRateLimitExceeded.Code:
			status = http.StatusTooManyRequests
		case domain.ErrInvalidStatus.Code, domain.ErrConfigInvalid.Code:
			status = http.StatusUnprocessableEntity
		case domain.ErrEngineClosed.Code:
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, APIError{Code: engErr.Code, Message: engErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: err.Error()})
}

func writeSSEEvent(w http.ResponseWriter, f http.Flusher, v interface{}) {
	data, _ := json.Marshal(v)
	fmt.Fprintf(w, "data: %s\n\n", data)
	f.Flush()
}

func writeSSEError(w http.ResponseWriter, f http.Flusher, err error) {
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
	f.Flush()
}
