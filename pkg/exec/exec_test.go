package exec

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestLocalRunner_Run_Success(t *testing.T) {
	runner := NewLocalRunner()

	result, err := runner.Run(context.Background(), []string{"echo", "hello world"}, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %d", result.ExitCode)
	}
	if strings.TrimSpace(result.Stdout) != "hello world" {
		t.Errorf("Expected stdout 'hello world', got %q", result.Stdout)
	}
	if result.Duration <= 0 {
		t.Error("Expected positive duration")
	}
}

func TestLocalRunner_Run_NonZeroExit(t *testing.T) {
	runner := NewLocalRunner()

	result, err := runner.Run(context.Background(), []string{"sh", "-c", "echo oops >&2; exit 3"}, nil)
	if err != nil {
		t.Fatalf("Non-zero exit must not surface as error, got: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", result.ExitCode)
	}
	if strings.TrimSpace(result.Stderr) != "oops" {
		t.Errorf("Expected stderr 'oops', got %q", result.Stderr)
	}
}

func TestLocalRunner_Run_EmptyCommand(t *testing.T) {
	runner := NewLocalRunner()

	if _, err := runner.Run(context.Background(), nil, nil); err == nil {
		t.Error("Expected error for empty command")
	}
}

func TestLocalRunner_Run_SpawnFailure(t *testing.T) {
	runner := NewLocalRunner()

	if _, err := runner.Run(context.Background(), []string{"definitely-not-a-command-xyz"}, nil); err == nil {
		t.Error("Expected error for unknown binary")
	}
}

func TestLocalRunner_Run_WorkDir(t *testing.T) {
	runner := NewLocalRunner()
	dir := t.TempDir()

	result, err := runner.Run(context.Background(), []string{"pwd"}, &Opts{WorkDir: dir})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(strings.TrimSpace(result.Stdout), dir) {
		t.Errorf("Expected pwd output to contain %s, got %q", dir, result.Stdout)
	}
}

func TestLocalRunner_Run_MissingWorkDir(t *testing.T) {
	runner := NewLocalRunner()

	if _, err := runner.Run(context.Background(), []string{"pwd"}, &Opts{WorkDir: "/nonexistent/dir/xyz"}); err == nil {
		t.Error("Expected error for missing working directory")
	}
}

func TestLocalRunner_Run_EnvOverride(t *testing.T) {
	runner := NewLocalRunner()

	result, err := runner.Run(context.Background(), []string{"sh", "-c", "echo $DOCKHAND_TEST_VAR"},
		&Opts{Env: []string{"DOCKHAND_TEST_VAR=present"}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "present" {
		t.Errorf("Expected env var to be visible, got %q", result.Stdout)
	}
}

// Both streams produce more than a pipe buffer of output; sequential reads
// would deadlock here.
func TestLocalRunner_Run_ConcurrentStreams(t *testing.T) {
	runner := NewLocalRunner()

	script := `i=0; while [ $i -lt 2000 ]; do
		echo "stdout line $i padded-to-make-it-longer-aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
		echo "stderr line $i padded-to-make-it-longer-bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb" >&2
		i=$((i+1))
	done`

	done := make(chan struct{})
	var result Result
	var err error
	go func() {
		result, err = runner.Run(context.Background(), []string{"sh", "-c", script}, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("Run deadlocked draining concurrent streams")
	}

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(result.Stdout, "stdout line 1999") {
		t.Error("stdout not fully captured")
	}
	if !strings.Contains(result.Stderr, "stderr line 1999") {
		t.Error("stderr not fully captured")
	}
}

func TestLocalRunner_Run_ContextCancel(t *testing.T) {
	runner := NewLocalRunner()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, _ := runner.Run(ctx, []string{"sleep", "30"}, nil)
	if time.Since(start) > 10*time.Second {
		t.Fatal("context deadline was not enforced")
	}
	if result.ExitCode == 0 {
		t.Error("Expected non-zero exit code after cancellation")
	}
}

func TestResult_Combined(t *testing.T) {
	cases := []struct {
		name   string
		result Result
		want   string
	}{
		{"both", Result{Stdout: "out", Stderr: "err"}, "err\nout"},
		{"stdout only", Result{Stdout: "out"}, "out"},
		{"stderr only", Result{Stderr: "err"}, "err"},
		{"empty", Result{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.result.Combined(); got != tc.want {
				t.Errorf("Combined() = %q, want %q", got, tc.want)
			}
		})
	}
}
