package exec

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestLocalExecEcho(t *testing.T) {
	e := NewLocalExec()
	if !e.Available() {
		t.Fatal("local executor should always be available")
	}

	result, err := e.Run(context.Background(), []string{"echo", "hello"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", result.ExitCode)
	}
	if strings.TrimSpace(result.Stdout) != "hello" {
		t.Errorf("stdout = %q, want hello", result.Stdout)
	}
}

func TestLocalExecNonZeroExitIsNotError(t *testing.T) {
	e := NewLocalExec()

	result, err := e.Run(context.Background(), []string{"sh", "-c", "exit 3"}, nil)
	if err != nil {
		t.Fatalf("non-zero exit should not surface as error: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", result.ExitCode)
	}
}

func TestLocalExecTimeout(t *testing.T) {
	e := NewLocalExec()

	opts := &Opts{Timeout: 100 * time.Millisecond}
	result, err := e.Run(context.Background(), []string{"sleep", "5"}, opts)
	if err != nil {
		t.Fatalf("timeout should not surface as error: %v", err)
	}
	if !result.TimedOut {
		t.Error("expected TimedOut to be set")
	}
	if result.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1", result.ExitCode)
	}
}

func TestLocalExecEmptyCommand(t *testing.T) {
	e := NewLocalExec()
	if _, err := e.Run(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestLocalExecMissingWorkDir(t *testing.T) {
	e := NewLocalExec()
	opts := &Opts{WorkDir: "/nonexistent/path/for/test"}
	if _, err := e.Run(context.Background(), []string{"echo", "hi"}, opts); err == nil {
		t.Fatal("expected error for missing working directory")
	}
}

func TestLocalExecCapturesStderr(t *testing.T) {
	e := NewLocalExec()

	result, err := e.Run(context.Background(), []string{"sh", "-c", "echo oops >&2; exit 1"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Stderr, "oops") {
		t.Errorf("stderr = %q, want it to contain oops", result.Stderr)
	}
	if result.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", result.ExitCode)
	}
}
