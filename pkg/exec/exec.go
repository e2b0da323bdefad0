// Package exec provides command execution for dockhand: argument-vector
// commands run to completion with both output streams drained concurrently
// and optionally echoed live to the console.
package exec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"strings"
	"sync"
	"time"
)

// Opts contains options for command execution.
type Opts struct {
	// Env contains environment variables (KEY=VALUE) appended to the
	// current process environment; later entries override earlier ones.
	Env []string

	// WorkDir is the working directory for the command.
	WorkDir string

	// Live echoes stdout/stderr to the console as they arrive, in
	// addition to capturing them.
	Live bool
}

// Result contains the result of command execution.
type Result struct {
	// Stdout contains the full captured standard output.
	Stdout string

	// Stderr contains the full captured standard error.
	Stderr string

	// Duration is how long the command took to execute.
	Duration time.Duration

	// ExitCode is the exit code of the command.
	ExitCode int
}

// Combined returns stderr followed by stdout, the failure signal fed to the
// Dockerfile refiner.
func (r Result) Combined() string {
	switch {
	case r.Stderr == "":
		return r.Stdout
	case r.Stdout == "":
		return r.Stderr
	default:
		return r.Stderr + "\n" + r.Stdout
	}
}

// Runner executes external commands. The container engine boundary takes a
// Runner so tests can substitute a fake.
type Runner interface {
	Run(ctx context.Context, cmd []string, opts *Opts) (Result, error)
}

// LocalRunner executes commands directly on the local system.
type LocalRunner struct{}

// NewLocalRunner creates a LocalRunner.
func NewLocalRunner() *LocalRunner {
	return &LocalRunner{}
}

// Run executes a command to completion. A non-zero exit status is reported
// in Result.ExitCode with a nil error; a non-nil error means the command
// could not be started or was torn down by the context.
func (e *LocalRunner) Run(ctx context.Context, cmd []string, opts *Opts) (Result, error) {
	if len(cmd) == 0 {
		return Result{}, fmt.Errorf("command cannot be empty")
	}
	if opts == nil {
		opts = &Opts{}
	}

	start := time.Now()

	execCmd := osexec.CommandContext(ctx, cmd[0], cmd[1:]...)
	if opts.WorkDir != "" {
		if _, err := os.Stat(opts.WorkDir); os.IsNotExist(err) {
			return Result{}, fmt.Errorf("working directory does not exist: %s", opts.WorkDir)
		}
		execCmd.Dir = opts.WorkDir
	}
	if len(opts.Env) > 0 {
		execCmd.Env = append(os.Environ(), opts.Env...)
	}

	stdoutPipe, err := execCmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderrPipe, err := execCmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := execCmd.Start(); err != nil {
		return Result{}, fmt.Errorf("failed to start %s: %w", cmd[0], err)
	}

	// Both streams are drained concurrently so a full pipe buffer on one
	// never stalls the other.
	var stdout, stderr strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)
	go drain(&wg, stdoutPipe, &stdout, opts.Live, os.Stdout)
	go drain(&wg, stderrPipe, &stderr, opts.Live, os.Stderr)
	wg.Wait()

	waitErr := execCmd.Wait()
	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if waitErr != nil {
		var exitErr *osexec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = 1
		return result, fmt.Errorf("command %s failed: %w", cmd[0], waitErr)
	}

	return result, nil
}

func drain(wg *sync.WaitGroup, src io.Reader, capture *strings.Builder, live bool, echo io.Writer) {
	defer wg.Done()
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			capture.Write(buf[:n])
			if live {
				_, _ = echo.Write(buf[:n])
			}
		}
		if err != nil {
			return
		}
	}
}
