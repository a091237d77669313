package runner

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tasknexus/decomp-engine/internal/domain"
	"github.com/tasknexus/decomp-engine/internal/logging"
)

// Executor runs verification commands in the project root with a deadline.
type Executor struct {
	dir             string
	analysisTimeout time.Duration
	buildTimeout    time.Duration
	log             *logging.Logger
}

// NewExecutor creates an Executor running commands in dir.
func NewExecutor(dir string, analysisTimeout, buildTimeout time.Duration, log *logging.Logger) *Executor {
	return &Executor{
		dir:             dir,
		analysisTimeout: analysisTimeout,
		buildTimeout:    buildTimeout,
		log:             log,
	}
}

// TimeoutFor picks the build timeout for build invocations, the analysis
// timeout otherwise. The check is a substring match against the command.
func (e *Executor) TimeoutFor(command string) time.Duration {
	if strings.Contains(command, "build") {
		return e.buildTimeout
	}
	return e.analysisTimeout
}

// Execute runs one command and captures its outcome. The command is split
// on whitespace; no shell is involved. A zero exit code passes with stdout
// as output, a non-zero exit fails with stderr, and a deadline or context
// cancellation errors out after the child has been killed and reclaimed.
func (e *Executor) Execute(ctx context.Context, command string) (domain.TestExecution, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return domain.TestExecution{}, domain.ErrEmptyCommand
	}

	run := domain.TestExecution{TestType: fields[0]}
	start := time.Now()

	e.log.Debug(ctx, "executing verification command",
		zap.String("command", command), zap.String("dir", e.dir))

	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.Dir = e.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		run.Result = domain.ResultError
		run.Output = err.Error()
		run.DurationSeconds = time.Since(start).Seconds()
		return run, nil
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(e.TimeoutFor(command))
	defer timer.Stop()

	select {
	case err := <-done:
		run.DurationSeconds = time.Since(start).Seconds()
		switch err.(type) {
		case nil:
			run.Result = domain.ResultPass
			run.Output = stdout.String()
		case *exec.ExitError:
			run.Result = domain.ResultFail
			run.Output = stderr.String()
		default:
			run.Result = domain.ResultError
			run.Output = err.Error()
		}

	case <-timer.C:
		// Kill, then drain Wait so the child is reclaimed before returning.
		_ = cmd.Process.Kill()
		<-done
		run.DurationSeconds = time.Since(start).Seconds()
		run.Result = domain.ResultError
		run.Output = "Test timed out"

	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		run.DurationSeconds = time.Since(start).Seconds()
		run.Result = domain.ResultError
		run.Output = "Execution cancelled"
	}

	e.log.Debug(ctx, "verification command finished",
		zap.String("command", command),
		zap.String("result", string(run.Result)),
		zap.Float64("duration_seconds", run.DurationSeconds))
	return run, nil
}
