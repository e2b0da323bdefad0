package loop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dockhand/pkg/config"
	"dockhand/pkg/dockerfile"
	execpkg "dockhand/pkg/exec"
	"dockhand/pkg/logx"
	"dockhand/pkg/metrics"
	"dockhand/pkg/probe"
	"dockhand/pkg/project"
)

// fakeRuntime scripts build outcomes and records every call.
type fakeRuntime struct {
	buildExits []int
	buildCalls int
	runExit    int
	removed    []string
	runPorts   []int
	execCmds   []string
	execResult execpkg.Result
	tails      []int
}

func (f *fakeRuntime) Build(_ context.Context, _, _ string) (execpkg.Result, error) {
	i := f.buildCalls
	f.buildCalls++
	exit := 0
	if i < len(f.buildExits) {
		exit = f.buildExits[i]
	}
	return execpkg.Result{ExitCode: exit, Stderr: fmt.Sprintf("build error %d", i)}, nil
}

func (f *fakeRuntime) Remove(_ context.Context, container string) {
	f.removed = append(f.removed, container)
}

func (f *fakeRuntime) RunDetached(_ context.Context, _, _ string, port int) (execpkg.Result, error) {
	f.runPorts = append(f.runPorts, port)
	return execpkg.Result{ExitCode: f.runExit, Stderr: "run error"}, nil
}

func (f *fakeRuntime) ExecShell(_ context.Context, _, command string) (execpkg.Result, error) {
	f.execCmds = append(f.execCmds, command)
	return f.execResult, nil
}

func (f *fakeRuntime) LogsTail(_ context.Context, _ string, n int) string {
	f.tails = append(f.tails, n)
	return "container logs"
}

// fakeDescriptor scripts generation, refinement, and verdicts.
type fakeDescriptor struct {
	generated     []string
	genErr        error
	refineOut     []string
	refineErr     []error
	refineCalls   int
	refineInputs  []string
	verdicts      []bool
	verdictCalls  int
	judgedOutputs []string
}

func (f *fakeDescriptor) Generate(_ context.Context, _ *project.Context, _ string) (string, error) {
	if f.genErr != nil {
		return "", f.genErr
	}
	text := fmt.Sprintf("FROM node:18 # gen %d\n", len(f.generated))
	f.generated = append(f.generated, text)
	return text, nil
}

func (f *fakeDescriptor) Refine(_ context.Context, current, failure string) (string, error) {
	i := f.refineCalls
	f.refineCalls++
	f.refineInputs = append(f.refineInputs, failure)
	if i < len(f.refineErr) && f.refineErr[i] != nil {
		return "", f.refineErr[i]
	}
	if i < len(f.refineOut) {
		return f.refineOut[i], nil
	}
	return current + "\n# refined", nil
}

func (f *fakeDescriptor) Judge(_ context.Context, output string) bool {
	f.judgedOutputs = append(f.judgedOutputs, output)
	i := f.verdictCalls
	f.verdictCalls++
	if i < len(f.verdicts) {
		return f.verdicts[i]
	}
	return false
}

// fakeProber reports a fixed readiness outcome.
type fakeProber struct {
	ready bool
	urls  []string
}

func (f *fakeProber) WaitReady(_ context.Context, url string, _ time.Duration) probe.Outcome {
	f.urls = append(f.urls, url)
	return probe.Outcome{Ready: f.ready}
}

func testLoop(t *testing.T, rt *fakeRuntime, d *fakeDescriptor, p *fakeProber) (*Loop, *config.Config) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, dockerfile.Save(root, "FROM node:18\n"))
	cfg := &config.Config{
		ProjectRoot:       root,
		Image:             "img",
		Container:         "ctr",
		SpecText:          "spec",
		MaxBuildAttempts:  3,
		MaxTestAttempts:   2,
		ReadinessDeadline: time.Millisecond,
	}
	proj := &project.Context{Root: root, ReadmeText: "visit localhost:9529"}
	l := New(cfg, proj, rt, d, p, metrics.Nop(), logx.NewLogger("loop-test"))
	return l, cfg
}

func TestBuildFirstTrySuccess(t *testing.T) {
	rt := &fakeRuntime{buildExits: []int{0}}
	d := &fakeDescriptor{}
	l, _ := testLoop(t, rt, d, &fakeProber{ready: true})

	require.NoError(t, l.Build(context.Background()))
	assert.Equal(t, 1, rt.buildCalls)
	assert.Equal(t, 0, d.refineCalls)
}

func TestBuildRefineThenSuccess(t *testing.T) {
	rt := &fakeRuntime{buildExits: []int{1, 0}}
	d := &fakeDescriptor{refineOut: []string{"FROM node:20\n"}}
	l, cfg := testLoop(t, rt, d, &fakeProber{})

	require.NoError(t, l.Build(context.Background()))
	assert.Equal(t, 2, rt.buildCalls)
	assert.Equal(t, 1, d.refineCalls)

	// The refined descriptor was written to disk.
	data, err := os.ReadFile(filepath.Join(cfg.ProjectRoot, "Dockerfile"))
	require.NoError(t, err)
	assert.Equal(t, "FROM node:20\n", string(data))
	// The refiner saw the build failure signal.
	assert.Contains(t, d.refineInputs[0], "build error 0")
}

func TestBuildRefineErrorConsumesAttempt(t *testing.T) {
	rt := &fakeRuntime{buildExits: []int{1, 0}}
	d := &fakeDescriptor{refineErr: []error{errors.New("api down")}}
	l, cfg := testLoop(t, rt, d, &fakeProber{})

	require.NoError(t, l.Build(context.Background()))
	assert.Equal(t, 2, rt.buildCalls)

	// The descriptor on disk is unchanged.
	data, err := os.ReadFile(filepath.Join(cfg.ProjectRoot, "Dockerfile"))
	require.NoError(t, err)
	assert.Equal(t, "FROM node:18\n", string(data))
}

func TestBuildRefineStalledIdentical(t *testing.T) {
	rt := &fakeRuntime{buildExits: []int{1}}
	// Identical modulo surrounding whitespace.
	d := &fakeDescriptor{refineOut: []string{"  FROM node:18\n  "}}
	l, _ := testLoop(t, rt, d, &fakeProber{})

	err := l.Build(context.Background())
	assert.ErrorIs(t, err, ErrRefineStalled)
	assert.Equal(t, 1, rt.buildCalls)
}

func TestBuildRefineStalledEmpty(t *testing.T) {
	rt := &fakeRuntime{buildExits: []int{1}}
	d := &fakeDescriptor{refineOut: []string{"   "}}
	l, _ := testLoop(t, rt, d, &fakeProber{})

	assert.ErrorIs(t, l.Build(context.Background()), ErrRefineStalled)
}

func TestBuildExhausted(t *testing.T) {
	rt := &fakeRuntime{buildExits: []int{1, 1, 1, 1}}
	d := &fakeDescriptor{refineOut: []string{"FROM a\n", "FROM b\n"}}
	l, cfg := testLoop(t, rt, d, &fakeProber{})

	err := l.Build(context.Background())
	assert.ErrorIs(t, err, ErrBuildExhausted)
	assert.Equal(t, cfg.MaxBuildAttempts, rt.buildCalls)
	// No refinement after the final failed attempt.
	assert.Equal(t, cfg.MaxBuildAttempts-1, d.refineCalls)
}

func TestRunSuccessFirstAttempt(t *testing.T) {
	rt := &fakeRuntime{buildExits: []int{0}, execResult: execpkg.Result{Stdout: "Tests: 5 passed"}}
	d := &fakeDescriptor{verdicts: []bool{true}}
	p := &fakeProber{ready: true}
	l, _ := testLoop(t, rt, d, p)

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, []string{"ctr"}, rt.removed)
	assert.Equal(t, 1, d.verdictCalls)
	assert.Len(t, rt.execCmds, 1)
	// No regeneration happened.
	assert.Empty(t, d.generated)
}

func TestRunRetriesWithRegeneration(t *testing.T) {
	rt := &fakeRuntime{buildExits: []int{0, 0}, execResult: execpkg.Result{Stdout: "FAIL"}}
	d := &fakeDescriptor{verdicts: []bool{false, true}}
	l, cfg := testLoop(t, rt, d, &fakeProber{ready: true})

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 2, d.verdictCalls)
	require.Len(t, d.generated, 1)

	// The regenerated descriptor landed on disk before the second cycle.
	data, err := os.ReadFile(filepath.Join(cfg.ProjectRoot, "Dockerfile"))
	require.NoError(t, err)
	assert.Equal(t, d.generated[0], string(data))
}

func TestRunExhaustedReturnsTestsFailed(t *testing.T) {
	rt := &fakeRuntime{buildExits: []int{0, 0}}
	d := &fakeDescriptor{verdicts: []bool{false, false}}
	l, cfg := testLoop(t, rt, d, &fakeProber{ready: true})

	err := l.Run(context.Background())
	assert.ErrorIs(t, err, ErrTestsFailed)
	assert.Equal(t, cfg.MaxTestAttempts, d.verdictCalls)
	// No regeneration after the final attempt.
	assert.Len(t, d.generated, cfg.MaxTestAttempts-1)
}

func TestRunReadinessFailureDoesNotAbort(t *testing.T) {
	rt := &fakeRuntime{buildExits: []int{0}, execResult: execpkg.Result{Stdout: "ok"}}
	d := &fakeDescriptor{verdicts: []bool{true}}
	l, _ := testLoop(t, rt, d, &fakeProber{ready: false})

	require.NoError(t, l.Run(context.Background()))
	// Tests still ran, and the shorter diagnostic tail was collected.
	assert.Len(t, rt.execCmds, 1)
	assert.Equal(t, []int{readinessLogTail}, rt.tails)
}

func TestRunFailedVerdictCollectsLargerTail(t *testing.T) {
	rt := &fakeRuntime{buildExits: []int{0, 0}}
	d := &fakeDescriptor{verdicts: []bool{false, true}}
	l, _ := testLoop(t, rt, d, &fakeProber{ready: true})

	require.NoError(t, l.Run(context.Background()))
	assert.Contains(t, rt.tails, verdictLogTail)
}

func TestRunContainerStartFailureIsFatal(t *testing.T) {
	rt := &fakeRuntime{buildExits: []int{0}, runExit: 125}
	d := &fakeDescriptor{}
	l, _ := testLoop(t, rt, d, &fakeProber{})

	err := l.Run(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTestsFailed)
	assert.Contains(t, err.Error(), "failed to start container")
}

func TestRunBuildFailurePropagates(t *testing.T) {
	rt := &fakeRuntime{buildExits: []int{1, 1, 1}}
	d := &fakeDescriptor{refineOut: []string{"FROM a\n", "FROM b\n"}}
	l, _ := testLoop(t, rt, d, &fakeProber{})

	assert.ErrorIs(t, l.Run(context.Background()), ErrBuildExhausted)
}

func TestRunRegenerationFailureIsFatal(t *testing.T) {
	rt := &fakeRuntime{buildExits: []int{0, 0}}
	d := &fakeDescriptor{verdicts: []bool{false}, genErr: errors.New("api down")}
	l, _ := testLoop(t, rt, d, &fakeProber{ready: true})

	err := l.Run(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTestsFailed)
}

func TestRunJudgeSeesStdoutThenStderr(t *testing.T) {
	rt := &fakeRuntime{
		buildExits: []int{0},
		execResult: execpkg.Result{Stdout: "PASS all", Stderr: "some warning"},
	}
	d := &fakeDescriptor{verdicts: []bool{true}}
	l, _ := testLoop(t, rt, d, &fakeProber{ready: true})

	require.NoError(t, l.Run(context.Background()))
	require.Len(t, d.judgedOutputs, 1)
	assert.Equal(t, "PASS all\nsome warning", d.judgedOutputs[0])
}

func TestRunPortFromReadme(t *testing.T) {
	rt := &fakeRuntime{buildExits: []int{0}}
	d := &fakeDescriptor{verdicts: []bool{true}}
	p := &fakeProber{ready: true}
	l, _ := testLoop(t, rt, d, p)

	require.NoError(t, l.Run(context.Background()))
	// README names localhost:9529 and the Dockerfile has no EXPOSE.
	assert.Equal(t, []int{9529}, rt.runPorts)
	assert.Equal(t, []string{"http://localhost:9529/"}, p.urls)
}

func TestRunPortOverride(t *testing.T) {
	rt := &fakeRuntime{buildExits: []int{0}}
	d := &fakeDescriptor{verdicts: []bool{true}}
	l, cfg := testLoop(t, rt, d, &fakeProber{ready: true})
	cfg.PortOverride = 8088

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, []int{8088}, rt.runPorts)
}

func TestRunContextCancelled(t *testing.T) {
	rt := &fakeRuntime{}
	l, _ := testLoop(t, rt, &fakeDescriptor{}, &fakeProber{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.Run(ctx), context.Canceled)
	assert.Equal(t, 0, rt.buildCalls)
}
