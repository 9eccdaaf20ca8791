// Package runner executes generated code and tests in an isolated workspace.
// The pytest runner materializes one module plus its test file per run and
// shells out to pytest; a failing or timed-out run is data, never an error.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"taskforge/pkg/exec"
	"taskforge/pkg/logx"
	"taskforge/pkg/proto"
)

const (
	// CodeFileName is where the generated module is written inside a run dir.
	CodeFileName = "task_module.py"
	// TestsDirName holds the generated test file.
	TestsDirName = "tests"
	// TestsFileName is the pytest file name inside TestsDirName.
	TestsFileName = "test_task_module.py"

	// DefaultTimeoutSeconds bounds a single harness invocation.
	DefaultTimeoutSeconds = 120
)

// PytestRunner runs generated Python code under pytest.
type PytestRunner struct {
	workspace      string
	timeoutSeconds int
	executor       exec.Executor
	pythonBin      string
	logger         *logx.Logger
}

// Option configures a PytestRunner.
type Option func(*PytestRunner)

// WithExecutor overrides the command executor, mainly for tests.
func WithExecutor(e exec.Executor) Option {
	return func(r *PytestRunner) { r.executor = e }
}

// WithPython overrides the Python interpreter used to invoke pytest.
func WithPython(bin string) Option {
	return func(r *PytestRunner) { r.pythonBin = bin }
}

// WithTimeout overrides the per-run timeout in seconds.
func WithTimeout(seconds int) Option {
	return func(r *PytestRunner) {
		if seconds > 0 {
			r.timeoutSeconds = seconds
		}
	}
}

// NewPytestRunner creates a runner rooted at the given workspace directory.
// The workspace is created if it does not exist.
func NewPytestRunner(workspace string, opts ...Option) (*PytestRunner, error) {
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create runner workspace: %w", err)
	}

	r := &PytestRunner{
		workspace:      workspace,
		timeoutSeconds: DefaultTimeoutSeconds,
		executor:       exec.NewLocalExec(),
		pythonBin:      "python3",
		logger:         logx.NewLogger("runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run materializes the request's code and tests into a run directory and
// invokes pytest. The returned result carries PASSED only for a zero exit
// code; timeouts report exit code -1 and a synthetic stderr line.
func (r *PytestRunner) Run(ctx context.Context, req proto.ExecutionRequest) (proto.ExecutionResult, error) {
	runDir := req.WorkingDir
	if runDir == "" {
		runDir = filepath.Join(r.workspace, "run_"+uuid.New().String())
	}
	testsDir := filepath.Join(runDir, TestsDirName)

	if err := os.MkdirAll(testsDir, 0o755); err != nil {
		return proto.ExecutionResult{}, fmt.Errorf("failed to create run directory: %w", err)
	}

	codePath := filepath.Join(runDir, CodeFileName)
	testsPath := filepath.Join(testsDir, TestsFileName)
	if err := os.WriteFile(codePath, []byte(req.Code), 0o644); err != nil {
		return proto.ExecutionResult{}, fmt.Errorf("failed to write code file: %w", err)
	}
	if err := os.WriteFile(testsPath, []byte(req.Tests), 0o644); err != nil {
		return proto.ExecutionResult{}, fmt.Errorf("failed to write tests file: %w", err)
	}

	cmd := []string{r.pythonBin, "-m", "pytest", "-q", testsDir}
	opts := exec.DefaultOpts()
	opts.Timeout = time.Duration(r.timeoutSeconds) * time.Second
	opts.WorkDir = runDir

	r.logger.Debug("running harness in %s", runDir)

	execResult, err := r.executor.Run(ctx, cmd, &opts)
	if err != nil {
		// The interpreter itself could not be started; report as a failed
		// run rather than aborting the pipeline.
		return proto.ExecutionResult{
			Status:   proto.ExecutionFailed,
			Stderr:   fmt.Sprintf("failed to start harness: %v", err),
			ExitCode: -1,
		}, nil
	}

	result := proto.ExecutionResult{
		Status:   proto.ExecutionPassed,
		Stdout:   execResult.Stdout,
		Stderr:   execResult.Stderr,
		ExitCode: execResult.ExitCode,
	}

	if execResult.TimedOut {
		result.Status = proto.ExecutionFailed
		result.Stderr = fmt.Sprintf("Timed out after %ds", r.timeoutSeconds)
		result.ExitCode = -1
		return result, nil
	}
	if execResult.ExitCode != 0 {
		result.Status = proto.ExecutionFailed
	}

	return result, nil
}
