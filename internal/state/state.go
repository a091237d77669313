// Package state owns the persisted shared project document: the single JSON
// file that all consumers observe and the engine mutates.
//
// The document is maintained read-modify-write with no file locking. The
// engine is the single logical writer; a concurrent external writer would
// be last-writer-wins at the file level. Consumers treat the document as
// advisory, so a lost intermediate write degrades freshness, not safety.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/tasknexus/decomp-engine/internal/domain"
	"github.com/tasknexus/decomp-engine/internal/logging"
	"github.com/tasknexus/decomp-engine/internal/scan"
)

// stateFileName is the document's name inside the engine state directory.
const stateFileName = "project_state.json"

// errorExcerptLimit bounds the command output captured per recorded failure.
const errorExcerptLimit = 200

// Store loads and saves the shared project document.
type Store struct {
	path string
	root string
	log  *logging.Logger
}

// NewStore creates a Store persisting under stateDir. projectRoot is used
// for one-time project type detection when no document exists yet.
func NewStore(stateDir, projectRoot string, log *logging.Logger) *Store {
	return &Store{
		path: filepath.Join(stateDir, stateFileName),
		root: projectRoot,
		log:  log,
	}
}

// Path returns the document location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the current document. A missing or unparseable file falls back
// to defaults with a freshly detected project type; a parseable document is
// normalized field by field so one bad value never discards the rest.
func (s *Store) Load(ctx context.Context) *domain.ProjectState {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn(ctx, "state document unreadable, using defaults", zap.Error(err))
		}
		return s.defaults()
	}

	var st domain.ProjectState
	if err := json.Unmarshal(data, &st); err != nil {
		s.log.Warn(ctx, "state document corrupt, using defaults",
			zap.String("path", s.path), zap.Error(err))
		return s.defaults()
	}

	if repaired := normalize(&st); len(repaired) > 0 {
		s.log.Debug(ctx, "state document normalized", zap.Strings("fields", repaired))
	}
	if st.ProjectType == domain.TypeUnknown {
		// Detection is sticky: only an unknown persisted type is re-detected.
		st.ProjectType = scan.DetectType(s.root)
	}
	return &st
}

// Save persists the document atomically: write to a temp file in the same
// directory, then rename over the target. LastUpdatedUnix is stamped here.
func (s *Store) Save(ctx context.Context, st *domain.ProjectState) error {
	st.LastUpdatedUnix = time.Now().Unix()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return domain.WrapEngineError(domain.ErrStateSave.Code, domain.ErrStateSave.Message, err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return domain.WrapEngineError(domain.ErrStateSave.Code, domain.ErrStateSave.Message, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), stateFileName+".tmp-*")
	if err != nil {
		return domain.WrapEngineError(domain.ErrStateSave.Code, domain.ErrStateSave.Message, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return domain.WrapEngineError(domain.ErrStateSave.Code, domain.ErrStateSave.Message, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return domain.WrapEngineError(domain.ErrStateSave.Code, domain.ErrStateSave.Message, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return domain.WrapEngineError(domain.ErrStateSave.Code, domain.ErrStateSave.Message, err)
	}

	s.log.Debug(ctx, "state document saved",
		zap.String("path", s.path),
		zap.Int("files", len(st.CreatedFiles)),
		zap.Int("dependencies", len(st.InstalledDependencies)))
	return nil
}

// defaults builds a fresh document with the project type detected once.
func (s *Store) defaults() *domain.ProjectState {
	return &domain.ProjectState{
		InstalledDependencies: []string{},
		CreatedFiles:          []string{},
		CompletedSubtasks:     []string{},
		TestResults:           map[string]domain.TestResult{},
		BuildStatus:           domain.BuildUnknown,
		ProjectType:           scan.DetectType(s.root),
		Errors:                []string{},
	}
}

// normalize repairs unrecognized values in a parsed document and reports
// which fields were touched.
func normalize(st *domain.ProjectState) []string {
	var repaired []string

	if st.InstalledDependencies == nil {
		st.InstalledDependencies = []string{}
		repaired = append(repaired, "installed_dependencies")
	}
	if st.CreatedFiles == nil {
		st.CreatedFiles = []string{}
		repaired = append(repaired, "created_files")
	}
	if st.CompletedSubtasks == nil {
		st.CompletedSubtasks = []string{}
		repaired = append(repaired, "completed_subtasks")
	}
	if st.TestResults == nil {
		st.TestResults = map[string]domain.TestResult{}
		repaired = append(repaired, "test_results")
	}
	if st.Errors == nil {
		st.Errors = []string{}
		repaired = append(repaired, "errors")
	}

	switch st.BuildStatus {
	case domain.BuildUnknown, domain.BuildPassed, domain.BuildFailed:
	default:
		st.BuildStatus = domain.BuildUnknown
		repaired = append(repaired, "build_status")
	}

	switch st.ProjectType {
	case domain.TypeReact, domain.TypeVue, domain.TypeAngular, domain.TypeNode,
		domain.TypePython, domain.TypeRust, domain.TypeGo, domain.TypeUnknown:
	default:
		st.ProjectType = domain.TypeUnknown
		repaired = append(repaired, "project_type")
	}

	return repaired
}

// ApplyScan replaces the scan-owned sections wholesale: dependencies and
// files from the snapshot, completed subtasks from the task list. Entries
// the scan no longer sees are dropped; nothing accumulates.
func ApplyScan(st *domain.ProjectState, snap domain.ProjectSnapshot, tasks []domain.Task) {
	st.InstalledDependencies = append([]string{}, snap.Dependencies...)
	st.CreatedFiles = append([]string{}, snap.Files...)
	st.CompletedSubtasks = completedKeys(tasks)

	if st.ProjectType == domain.TypeUnknown || st.ProjectType == "" {
		st.ProjectType = snap.Type
	}
}

// completedKeys derives the done-work markers: "task_<id>" for done tasks
// and "subtask_<taskID>.<subID>" for done subtasks.
func completedKeys(tasks []domain.Task) []string {
	keys := []string{}
	for _, task := range tasks {
		if task.Status == domain.TaskDone {
			keys = append(keys, fmt.Sprintf("task_%d", task.ID))
		}
		for _, sub := range task.Subtasks {
			if sub.Status == domain.TaskDone {
				keys = append(keys, fmt.Sprintf("subtask_%d.%d", task.ID, sub.ID))
			}
		}
	}
	return keys
}

// RecordExecutions folds one verification batch into the document. Results
// are keyed "<contextKey>_<testType>"; failures also append a bounded output
// excerpt to the error log. BuildStatus reflects this batch alone: passed
// only when every execution passed or was skipped.
func RecordExecutions(st *domain.ProjectState, contextKey string, execs []domain.TestExecution) {
	allGood := true
	for _, ex := range execs {
		st.TestResults[contextKey+"_"+ex.TestType] = ex.Result
		switch ex.Result {
		case domain.ResultPass, domain.ResultSkip:
		default:
			allGood = false
		}
		if ex.Result == domain.ResultFail {
			st.Errors = append(st.Errors, contextKey+": "+truncate(ex.Output, errorExcerptLimit))
		}
	}

	if allGood {
		st.BuildStatus = domain.BuildPassed
	} else {
		st.BuildStatus = domain.BuildFailed
	}
}

// TestCoverage is the passing fraction of recorded results, 0.0 when none.
func TestCoverage(st *domain.ProjectState) float64 {
	if len(st.TestResults) == 0 {
		return 0.0
	}
	passing := 0
	for _, r := range st.TestResults {
		if r == domain.ResultPass {
			passing++
		}
	}
	return float64(passing) / float64(len(st.TestResults))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
