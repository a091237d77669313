// Package engine ties the decomposition pipeline together: it scores and
// expands tasks, runs scan-and-broadcast cycles, and drives verification
// batches through the guard, the runner, and the journal.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tasknexus/decomp-engine/internal/broadcast"
	"github.com/tasknexus/decomp-engine/internal/config"
	"github.com/tasknexus/decomp-engine/internal/domain"
	"github.com/tasknexus/decomp-engine/internal/gap"
	"github.com/tasknexus/decomp-engine/internal/gate"
	"github.com/tasknexus/decomp-engine/internal/gitops"
	"github.com/tasknexus/decomp-engine/internal/guard"
	"github.com/tasknexus/decomp-engine/internal/journal"
	"github.com/tasknexus/decomp-engine/internal/logging"
	"github.com/tasknexus/decomp-engine/internal/quality"
	"github.com/tasknexus/decomp-engine/internal/runner"
	"github.com/tasknexus/decomp-engine/internal/scan"
	"github.com/tasknexus/decomp-engine/internal/scoring"
	"github.com/tasknexus/decomp-engine/internal/state"
	"github.com/tasknexus/decomp-engine/internal/synth"
	"github.com/tasknexus/decomp-engine/internal/taskstore"
)

// Engine is the synchronous orchestrator. Public operations are serialized
// by a mutex: each runs to completion before the next begins.
type Engine struct {
	DB          *sql.DB
	Scanner     *scan.Scanner
	Scorer      *scoring.Scorer
	Analyzer    *gap.Analyzer
	States      *state.Store
	Tasks       *taskstore.Client
	Registry    *runner.Registry
	Executor    *runner.Executor
	Guard       *guard.Guard
	Assessor    *quality.Assessor
	Git         *gitops.Ops
	Broadcaster *broadcast.Broadcaster
	CycleRepo   *journal.CycleRepo
	RunRepo     *journal.RunRepo
	PubRepo     *journal.PublicationRepo

	cfg *config.Config
	log *logging.Logger

	mu     sync.Mutex
	closed bool
}

// New wires an Engine from its configuration and an open journal handle.
// The journal is owned by the caller and stays open after Close.
func New(cfg *config.Config, db *sql.DB, log *logging.Logger) *Engine {
	root := cfg.Engine.ProjectRoot
	return &Engine{
		DB:      db,
		Scanner: scan.New(root, cfg.Engine.SourceDirs, cfg.Engine.ExcludeDirs, log),
		Scorer: scoring.NewScorer(scoring.Config{
			ExpansionThreshold: cfg.Scoring.ExpansionThreshold,
			MaxSubtasks:        cfg.Scoring.MaxSubtasks,
			MinSubtasks:        cfg.Scoring.MinSubtasks,
		}),
		Analyzer: gap.NewAnalyzer(log),
		States:   state.NewStore(cfg.StateDirPath(), root, log),
		Tasks:    taskstore.NewClient(cfg.TasksFilePath(), log),
		Registry: runner.NewRegistry(),
		Executor: runner.NewExecutor(root,
			time.Duration(cfg.Runner.AnalysisTimeoutSec)*time.Second,
			time.Duration(cfg.Runner.BuildTimeoutSec)*time.Second,
			log),
		Guard: guard.NewGuard(db, guard.Config{
			AllowedCommands:    cfg.Guard.AllowedCommands,
			DeniedPatterns:     cfg.Guard.DeniedPatterns,
			RateLimitPerMinute: cfg.Guard.RateLimitPerMinute,
			BatchBudgetSec:     cfg.Guard.BatchBudgetSec,
		}),
		Assessor: quality.NewAssessor(quality.DefaultWeights()),
		Git: gitops.New(root, gitops.Config{
			AutoBranch:   cfg.Git.AutoBranch,
			AutoCommit:   cfg.Git.AutoCommit,
			BranchPrefix: cfg.Git.BranchPrefix,
			AuthorName:   cfg.Git.AuthorName,
			AuthorEmail:  cfg.Git.AuthorEmail,
		}, log),
		Broadcaster: broadcast.New(cfg.SyncDirPath(), log),
		CycleRepo:   &journal.CycleRepo{},
		RunRepo:     &journal.RunRepo{},
		PubRepo:     &journal.PublicationRepo{},
		cfg:         cfg,
		log:         log,
	}
}

// Score computes the complexity score for one task. The result is derived
// data only; nothing is persisted.
func (e *Engine) Score(task domain.Task) domain.ComplexityScore {
	return e.Scorer.Score(task)
}

// ExpandResult reports what Expand decided and wrote back.
type ExpandResult struct {
	TaskID   int
	Score    domain.ComplexityScore
	Report   domain.GapReport
	Subtasks []domain.Subtask
	Applied  bool
	Branch   string
}

// Expand scores a task and, when it crosses the expansion threshold (or
// force is set), analyzes gaps, synthesizes subtasks, and writes them back
// through the task store. force also replaces subtasks that already exist.
func (e *Engine) Expand(ctx context.Context, taskID int, force bool) (*ExpandResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, domain.ErrEngineClosed
	}

	tag := e.cfg.Engine.Tag
	tasks, err := e.Tasks.Load(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	task, err := findTask(tasks, taskID)
	if err != nil {
		return nil, err
	}

	result := &ExpandResult{TaskID: taskID, Score: e.Scorer.Score(task)}
	if !result.Score.ShouldExpand && !force {
		e.log.Info(ctx, "task below expansion threshold",
			zap.Int("task_id", taskID), zap.Int("score", result.Score.TotalScore))
		return result, nil
	}

	snap := e.Scanner.Snapshot(ctx)
	result.Report = e.Analyzer.Analyze(ctx, task, snap)
	result.Subtasks = synth.Synthesize(result.Report)
	if len(result.Subtasks) == 0 {
		e.log.Info(ctx, "no gaps to close", zap.Int("task_id", taskID))
		return result, nil
	}

	if err := e.Tasks.ApplySubtasks(ctx, tag, taskID, result.Subtasks, force); err != nil {
		return nil, err
	}
	result.Applied = true

	// Branch trouble never unwinds an expansion that already wrote back.
	branch, err := e.Git.EnsureBranch(ctx, taskID, task.Title)
	if err != nil {
		e.log.Warn(ctx, "task branch unavailable",
			zap.Int("task_id", taskID), zap.Error(err))
	}
	result.Branch = branch

	e.log.Info(ctx, "task expanded",
		zap.Int("task_id", taskID),
		zap.Int("score", result.Score.TotalScore),
		zap.Int("subtasks", len(result.Subtasks)))
	return result, nil
}

// RunCycle performs one scan-and-broadcast cycle and returns its journal
// record. trigger names what started the cycle ("manual", "fs", "interval").
func (e *Engine) RunCycle(ctx context.Context, trigger string) (*domain.CycleRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, domain.ErrEngineClosed
	}
	return e.cycle(ctx, uuid.NewString(), trigger, nil)
}

// VerifyReport describes one verification batch: the commands that ran,
// whether they proved the subtask out, and the gate outcome afterwards.
type VerifyReport struct {
	CycleID    string
	ContextKey string
	Executions []domain.TestExecution
	Verified   bool
	Gate       domain.GateResult
	Commit     string
}

// VerifySubtask runs the verification commands for one subtask and folds
// the results into a full cycle. A verified subtask is marked done in the
// task store; if the gates also pass, changes are auto-committed when
// configured.
func (e *Engine) VerifySubtask(ctx context.Context, taskID, subtaskID int) (*VerifyReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, domain.ErrEngineClosed
	}

	tag := e.cfg.Engine.Tag
	tasks, err := e.Tasks.Load(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	task, sub, err := findSubtask(tasks, taskID, subtaskID)
	if err != nil {
		return nil, err
	}

	cycleID := uuid.NewString()
	contextKey := fmt.Sprintf("subtask_%d.%d", taskID, subtaskID)
	classification := synth.Classify(sub.Title)

	var execs []domain.TestExecution
	rec, err := e.cycle(ctx, cycleID, "verify", func(ctx context.Context, st *domain.ProjectState) {
		execs = e.runBatch(ctx, cycleID, contextKey, st.ProjectType, classification)
		state.RecordExecutions(st, contextKey, execs)
		if batchVerified(execs) {
			st.CompletedSubtasks = append(st.CompletedSubtasks, contextKey)
		}
	})
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{
		CycleID:    cycleID,
		ContextKey: contextKey,
		Executions: execs,
		Verified:   batchVerified(execs),
		Gate:       domain.GateResult{Passed: rec.GatePassed, Reasons: rec.GateReasons},
	}
	if !report.Verified {
		return report, nil
	}

	if err := e.Tasks.SetSubtaskStatus(ctx, tag, taskID, subtaskID, domain.TaskDone); err != nil {
		e.log.Warn(ctx, "subtask status writeback failed",
			zap.String("context_key", contextKey), zap.Error(err))
	}
	if rec.GatePassed {
		hash, err := e.Git.Commit(ctx, taskID, task.Title)
		if err != nil {
			e.log.Warn(ctx, "auto-commit failed",
				zap.Int("task_id", taskID), zap.Error(err))
		}
		report.Commit = hash
	}
	return report, nil
}

// State returns the current persisted project state.
func (e *Engine) State(ctx context.Context) (*domain.ProjectState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, domain.ErrEngineClosed
	}
	return e.States.Load(ctx), nil
}

// Gate evaluates the quality gates over the current state.
func (e *Engine) Gate(ctx context.Context) (domain.GateResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return domain.GateResult{}, domain.ErrEngineClosed
	}
	return gate.Evaluate(e.States.Load(ctx)), nil
}

// Projections computes the per-consumer views of the current state without
// publishing them.
func (e *Engine) Projections(ctx context.Context) (map[string]domain.Projection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, domain.ErrEngineClosed
	}
	st := e.States.Load(ctx)
	return broadcast.Project(st, gate.Evaluate(st).Passed), nil
}

// RecentCycles lists the most recent journal cycles, newest first.
func (e *Engine) RecentCycles(ctx context.Context, limit int) ([]domain.CycleRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, domain.ErrEngineClosed
	}
	if limit <= 0 {
		limit = 20
	}
	return e.CycleRepo.List(ctx, e.DB, limit)
}

// CycleRuns returns the verification runs journaled under one cycle.
func (e *Engine) CycleRuns(ctx context.Context, cycleID string) ([]domain.VerificationRun, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, domain.ErrEngineClosed
	}
	if _, err := e.CycleRepo.Get(ctx, e.DB, cycleID); err != nil {
		return nil, err
	}
	return e.RunRepo.ListByCycle(ctx, e.DB, cycleID)
}

// CyclePublications returns the projection files journaled under one cycle.
func (e *Engine) CyclePublications(ctx context.Context, cycleID string) ([]domain.Publication, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, domain.ErrEngineClosed
	}
	if _, err := e.CycleRepo.Get(ctx, e.DB, cycleID); err != nil {
		return nil, err
	}
	return e.PubRepo.ListByCycle(ctx, e.DB, cycleID)
}

// Close marks the engine closed. Further operations return ErrEngineClosed.
// The journal handle belongs to the caller and is not touched.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return domain.ErrEngineClosed
	}
	e.closed = true
	return nil
}

// cycle is the shared scan-and-broadcast body. fold, when set, mutates the
// freshly scanned state before assessment and gating; VerifySubtask uses it
// to record its batch. Callers hold the engine mutex.
func (e *Engine) cycle(ctx context.Context, cycleID, trigger string, fold func(context.Context, *domain.ProjectState)) (*domain.CycleRecord, error) {
	ctx = logging.WithCycleID(ctx, cycleID)
	ctx = logging.WithTrigger(ctx, trigger)

	rec := domain.CycleRecord{
		CycleID:       cycleID,
		Trigger:       trigger,
		StartedAtUnix: time.Now().Unix(),
	}
	if err := e.CycleRepo.Begin(ctx, e.DB, rec); err != nil {
		return nil, fmt.Errorf("begin cycle: %w", err)
	}

	snap := e.Scanner.Snapshot(ctx)
	st := e.States.Load(ctx)

	// Task document trouble degrades the scan; it never aborts the cycle.
	tasks, err := e.Tasks.Load(ctx, e.cfg.Engine.Tag)
	if err != nil {
		e.log.Warn(ctx, "task document unavailable", zap.Error(err))
		tasks = nil
	}

	state.ApplyScan(st, snap, tasks)
	if fold != nil {
		fold(ctx, st)
	}

	st.GitBranch, st.LastCommit = e.Git.Snapshot(ctx)

	if report, err := e.Assessor.Assess(st); err != nil {
		e.log.Warn(ctx, "quality assessment failed", zap.Error(err))
	} else {
		st.QualityScore = report.OverallScore
	}

	gateRes := gate.Evaluate(st)

	if err := e.States.Save(ctx, st); err != nil {
		return nil, err
	}

	projections := broadcast.Project(st, gateRes.Passed)
	paths, err := e.Broadcaster.Publish(ctx, projections)
	if err != nil {
		return nil, err
	}
	for _, path := range paths {
		_ = e.PubRepo.Record(ctx, e.DB, domain.Publication{
			CycleID:       cycleID,
			Consumer:      consumerForPath(path),
			Path:          path,
			CreatedAtUnix: time.Now().Unix(),
		})
	}

	rec.ProjectType = st.ProjectType
	rec.FileCount = len(snap.Files)
	rec.DependencyCount = len(snap.Dependencies)
	rec.GatePassed = gateRes.Passed
	rec.GateReasons = gateRes.Reasons
	rec.QualityScore = st.QualityScore
	rec.FinishedAtUnix = time.Now().Unix()
	if err := e.CycleRepo.Finish(ctx, e.DB, rec); err != nil {
		return nil, fmt.Errorf("finish cycle: %w", err)
	}

	e.log.Info(ctx, "cycle complete",
		zap.Bool("gate_passed", gateRes.Passed),
		zap.Int("files", rec.FileCount),
		zap.Int("dependencies", rec.DependencyCount),
		zap.Float64("quality_score", rec.QualityScore))
	return &rec, nil
}

// runBatch executes the verification commands for one subtask under guard
// supervision, journaling each run. A budget halt stops the batch; other
// refusals record a skip and move on. The batch time budget resets at the
// start of each batch.
func (e *Engine) runBatch(ctx context.Context, cycleID, contextKey string, ptype domain.ProjectType, classification string) []domain.TestExecution {
	commands := e.Registry.SelectForSubtask(ptype, classification)
	e.Guard.ResetBudget()

	execs := []domain.TestExecution{}
	for _, command := range commands {
		kind := strings.Fields(command)[0]

		if err := e.Guard.CheckAll(ctx, kind, command); err != nil {
			if err == domain.ErrBudgetExceeded {
				e.log.Warn(ctx, "verification batch halted by budget",
					zap.String("context_key", contextKey), zap.String("command", command))
				break
			}
			e.log.Warn(ctx, "verification command refused",
				zap.String("command", command), zap.Error(err))
			execs = append(execs, domain.TestExecution{
				TestType: kind,
				Result:   domain.ResultSkip,
				Output:   err.Error(),
			})
			continue
		}

		now := time.Now()
		run := domain.VerificationRun{
			RunID:         uuid.NewString(),
			CycleID:       cycleID,
			ContextKey:    contextKey,
			Command:       command,
			DeadlineUnix:  now.Add(e.Executor.TimeoutFor(command)).Unix(),
			CreatedAtUnix: now.Unix(),
		}
		if err := e.RunRepo.Begin(ctx, e.DB, run); err != nil {
			e.log.Warn(ctx, "journal run insert failed", zap.Error(err))
		}

		exec, err := e.Executor.Execute(ctx, command)
		if err != nil {
			_ = e.RunRepo.Cancel(ctx, e.DB, run.RunID)
			e.log.Warn(ctx, "verification command rejected",
				zap.String("command", command), zap.Error(err))
			continue
		}

		if e.Guard.RecordSpend(exec.DurationSeconds) == domain.BudgetWarn {
			e.log.Warn(ctx, "verification batch nearing time budget",
				zap.String("context_key", contextKey),
				zap.Float64("duration_seconds", exec.DurationSeconds))
		}

		if err := e.RunRepo.Complete(ctx, e.DB, run.RunID, exec.Result, exec.Output, exec.DurationSeconds); err != nil {
			e.log.Warn(ctx, "journal run update failed", zap.Error(err))
		}
		execs = append(execs, exec)
	}
	return execs
}

// batchVerified reports whether a batch actually proved something: at least
// one command passed and none failed or errored. A batch that only skipped
// proves nothing.
func batchVerified(execs []domain.TestExecution) bool {
	passes := 0
	for _, ex := range execs {
		switch ex.Result {
		case domain.ResultPass:
			passes++
		case domain.ResultSkip:
		default:
			return false
		}
	}
	return passes > 0
}

func findTask(tasks []domain.Task, taskID int) (domain.Task, error) {
	for _, task := range tasks {
		if task.ID == taskID {
			return task, nil
		}
	}
	return domain.Task{}, domain.ErrTaskNotFound
}

func findSubtask(tasks []domain.Task, taskID, subtaskID int) (domain.Task, domain.Subtask, error) {
	task, err := findTask(tasks, taskID)
	if err != nil {
		return domain.Task{}, domain.Subtask{}, err
	}
	for _, sub := range task.Subtasks {
		if sub.ID == subtaskID {
			return task, sub, nil
		}
	}
	return domain.Task{}, domain.Subtask{}, domain.ErrSubtaskNotFound
}

func consumerForPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), "_agent.json")
}
