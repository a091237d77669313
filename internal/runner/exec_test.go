package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tasknexus/decomp-engine/internal/domain"
	"github.com/tasknexus/decomp-engine/internal/logging"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func newTestExecutor(dir string) *Executor {
	return NewExecutor(dir, 5*time.Second, 10*time.Second, logging.NewNop())
}

func TestExecute_PassCapturesStdout(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "ok.sh", "echo hello\n")
	e := newTestExecutor(dir)

	run, err := e.Execute(context.Background(), script)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Result != domain.ResultPass {
		t.Errorf("Result = %q, want pass", run.Result)
	}
	if run.Output != "hello\n" {
		t.Errorf("Output = %q, want stdout", run.Output)
	}
	if run.TestType != script {
		t.Errorf("TestType = %q, want first token", run.TestType)
	}
}

func TestExecute_FailCapturesStderr(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "fail.sh", "echo ok\necho boom >&2\nexit 3\n")
	e := newTestExecutor(dir)

	run, err := e.Execute(context.Background(), script)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Result != domain.ResultFail {
		t.Errorf("Result = %q, want fail", run.Result)
	}
	if run.Output != "boom\n" {
		t.Errorf("Output = %q, want stderr only", run.Output)
	}
}

func TestExecute_TimeoutKillsChild(t *testing.T) {
	dir := t.TempDir()
	// exec so the kill reaches the sleeper itself, not just the shell;
	// otherwise the orphan keeps the output pipe open and Wait blocks.
	script := writeScript(t, dir, "slow.sh", "exec sleep 5\n")
	e := NewExecutor(dir, 200*time.Millisecond, 10*time.Second, logging.NewNop())

	start := time.Now()
	run, err := e.Execute(context.Background(), script)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Result != domain.ResultError {
		t.Errorf("Result = %q, want error", run.Result)
	}
	if run.Output != "Test timed out" {
		t.Errorf("Output = %q", run.Output)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Execute took %v, child was not killed", elapsed)
	}
}

func TestExecute_ContextCancelled(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "slow.sh", "exec sleep 5\n")
	e := newTestExecutor(dir)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	run, err := e.Execute(ctx, script)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Result != domain.ResultError {
		t.Errorf("Result = %q, want error", run.Result)
	}
	if run.Output != "Execution cancelled" {
		t.Errorf("Output = %q", run.Output)
	}
}

func TestExecute_EmptyCommand(t *testing.T) {
	e := newTestExecutor(t.TempDir())

	for _, command := range []string{"", "   "} {
		if _, err := e.Execute(context.Background(), command); err != domain.ErrEmptyCommand {
			t.Errorf("Execute(%q): expected ErrEmptyCommand, got %v", command, err)
		}
	}
}

func TestExecute_MissingProgram(t *testing.T) {
	e := newTestExecutor(t.TempDir())

	run, err := e.Execute(context.Background(), "definitely-not-a-real-program-xyz")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Result != domain.ResultError {
		t.Errorf("Result = %q, want error for unstartable command", run.Result)
	}
	if run.Output == "" {
		t.Error("Output empty, want the start failure message")
	}
}

func TestTimeoutFor(t *testing.T) {
	e := NewExecutor(t.TempDir(), time.Minute, 2*time.Minute, logging.NewNop())

	if got := e.TimeoutFor("npm run build"); got != 2*time.Minute {
		t.Errorf("build timeout = %v", got)
	}
	if got := e.TimeoutFor("npm test -- --watchAll=false"); got != time.Minute {
		t.Errorf("test timeout = %v", got)
	}
}
