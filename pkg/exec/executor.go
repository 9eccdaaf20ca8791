// Package exec provides command execution abstractions used by the test
// harness. The local executor runs commands as subprocesses with timeout and
// working-directory control.
package exec

import (
	"context"
	"time"
)

// ExecutorType represents the type of executor.
type ExecutorType string

// Executor type constants.
const (
	ExecutorTypeLocal ExecutorType = "local"
)

// Executor defines the interface for executing commands.
type Executor interface {
	// Run executes a command with the given options and returns the result.
	Run(ctx context.Context, cmd []string, opts *Opts) (Result, error)

	// Name returns the executor type name for logging/debugging.
	Name() ExecutorType

	// Available returns true if this executor can be used in the current environment.
	Available() bool
}

// Opts contains options for command execution.
type Opts struct {
	// Env contains environment variables (KEY=VALUE format).
	Env []string

	// Timeout is the maximum duration for command execution.
	Timeout time.Duration

	// WorkDir is the working directory for the command.
	WorkDir string
}

// Result contains the result of command execution.
type Result struct {
	// Stdout contains the standard output.
	Stdout string

	// Stderr contains the standard error output.
	Stderr string

	// ExecutorUsed indicates which executor was used (for debugging).
	ExecutorUsed string

	// Duration is how long the command took to execute.
	Duration time.Duration

	// ExitCode is the exit code of the command. A timed-out or unstartable
	// command reports -1.
	ExitCode int

	// TimedOut is true when the command was killed at the deadline.
	TimedOut bool
}

// DefaultOpts returns default execution options.
func DefaultOpts() Opts {
	return Opts{
		Timeout: 2 * time.Minute,
	}
}
