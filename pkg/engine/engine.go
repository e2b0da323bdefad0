// Package engine drives the container runtime (docker or podman) through
// its CLI: image builds, detached runs, in-container commands, and daemon
// startup.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"dockhand/pkg/config"
	execpkg "dockhand/pkg/exec"
	"dockhand/pkg/logx"
)

const (
	daemonPollInterval = 2 * time.Second
	daemonWaitDeadline = 120 * time.Second
)

// Engine shells out to a container runtime binary.
type Engine struct {
	runner  execpkg.Runner
	binary  string
	baseEnv []string
	logger  *logx.Logger
}

// New detects the available runtime (docker preferred, podman fallback) and
// returns an Engine bound to it.
func New(ctx context.Context, runner execpkg.Runner, logger *logx.Logger) (*Engine, error) {
	env := baseEnv()
	for _, binary := range []string{"docker", "podman"} {
		res, err := runner.Run(ctx, []string{binary, "--version"}, &execpkg.Opts{Env: env})
		if err == nil && res.ExitCode == 0 {
			logger.Debug("using container runtime: %s", binary)
			return &Engine{runner: runner, binary: binary, baseEnv: env, logger: logger}, nil
		}
	}
	return nil, fmt.Errorf("no container runtime found: neither docker nor podman is on PATH")
}

// NewWithBinary returns an Engine for a known binary, used by tests.
func NewWithBinary(runner execpkg.Runner, binary string, logger *logx.Logger) *Engine {
	return &Engine{runner: runner, binary: binary, baseEnv: baseEnv(), logger: logger}
}

// Binary returns the runtime binary name.
func (e *Engine) Binary() string { return e.binary }

// baseEnv augments PATH with well-known runtime install locations and
// enables BuildKit. Docker Desktop on macOS does not always land on the
// PATH of non-login shells.
func baseEnv() []string {
	extra := []string{
		"/usr/local/bin",
		"/opt/homebrew/bin",
		"/Applications/Docker.app/Contents/Resources/bin",
	}
	path := os.Getenv("PATH")
	for _, dir := range extra {
		if !strings.Contains(path, dir) {
			path = path + string(os.PathListSeparator) + dir
		}
	}
	env := os.Environ()
	out := make([]string, 0, len(env)+2)
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") || strings.HasPrefix(kv, "DOCKER_BUILDKIT=") {
			continue
		}
		out = append(out, kv)
	}
	out = append(out, "PATH="+path, "DOCKER_BUILDKIT=1")
	return out
}

// Build runs an image build with the project root as context, streaming
// output live. Proxy variables from the host environment are forwarded as
// build args. A failed build is not an error; the caller reads the result.
func (e *Engine) Build(ctx context.Context, root, image string) (execpkg.Result, error) {
	args := []string{e.binary, "build", "-t", image}
	for _, kv := range config.ProxyEnv() {
		args = append(args, "--build-arg", kv)
	}
	args = append(args, ".")
	return e.runner.Run(ctx, args, &execpkg.Opts{Env: e.baseEnv, WorkDir: root, Live: true})
}

// Remove force-removes a container. Errors are ignored: the container
// usually does not exist yet.
func (e *Engine) Remove(ctx context.Context, container string) {
	_, _ = e.runner.Run(ctx, []string{e.binary, "rm", "-f", container}, &execpkg.Opts{Env: e.baseEnv})
}

// RunDetached starts a container publishing port:port.
func (e *Engine) RunDetached(ctx context.Context, container, image string, port int) (execpkg.Result, error) {
	p := strconv.Itoa(port)
	args := []string{e.binary, "run", "-d", "--name", container, "-p", p + ":" + p, image}
	return e.runner.Run(ctx, args, &execpkg.Opts{Env: e.baseEnv})
}

// ExecShell runs a command inside a running container via a login shell,
// streaming output live.
func (e *Engine) ExecShell(ctx context.Context, container, command string) (execpkg.Result, error) {
	args := []string{e.binary, "exec", container, "sh", "-lc", command}
	return e.runner.Run(ctx, args, &execpkg.Opts{Env: e.baseEnv, Live: true})
}

// LogsTail returns the last n lines of a container's logs.
func (e *Engine) LogsTail(ctx context.Context, container string, n int) string {
	res, err := e.runner.Run(ctx, []string{e.binary, "logs", "--tail", strconv.Itoa(n), container}, &execpkg.Opts{Env: e.baseEnv})
	if err != nil {
		return ""
	}
	return res.Combined()
}

// EnsureDaemon verifies the runtime daemon is reachable, attempts a
// platform-specific start when it is not, and polls until it responds or
// the deadline passes.
func (e *Engine) EnsureDaemon(ctx context.Context) error {
	if e.daemonUp(ctx) {
		return nil
	}
	e.logger.Warn("%s daemon not responding, attempting to start it", e.binary)
	e.startDaemon(ctx)

	deadline := time.Now().Add(daemonWaitDeadline)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(daemonPollInterval):
		}
		if e.daemonUp(ctx) {
			e.logger.Info("%s daemon is up", e.binary)
			return nil
		}
	}
	return fmt.Errorf("%s daemon did not become ready within %s", e.binary, daemonWaitDeadline)
}

func (e *Engine) daemonUp(ctx context.Context) bool {
	res, err := e.runner.Run(ctx, []string{e.binary, "info"}, &execpkg.Opts{Env: e.baseEnv})
	return err == nil && res.ExitCode == 0
}

func (e *Engine) startDaemon(ctx context.Context) {
	switch runtime.GOOS {
	case "darwin":
		_, _ = e.runner.Run(ctx, []string{"open", "-a", "Docker"}, &execpkg.Opts{Env: e.baseEnv})
	case "linux":
		_, _ = e.runner.Run(ctx, []string{"systemctl", "start", "docker"}, &execpkg.Opts{Env: e.baseEnv})
	default:
		e.logger.Warn("cannot start %s daemon automatically on %s", e.binary, runtime.GOOS)
	}
}

// CredentialHelperHint inspects a build failure for the Docker Desktop
// credential helper error and returns advice for the log, or "".
func CredentialHelperHint(buildOutput string) string {
	if strings.Contains(buildOutput, "docker-credential-desktop") {
		return "build failed resolving docker-credential-desktop; check credsStore in " +
			filepath.Join("~", ".docker", "config.json")
	}
	return ""
}

// GitProtocolHint inspects a build failure for blocked git:// fetches and
// returns advice for the log, or "".
func GitProtocolHint(buildOutput string) string {
	if strings.Contains(buildOutput, "git://") {
		return "build output references git:// URLs, which many networks block; " +
			"consider rewriting them to https:// in the image"
	}
	return ""
}
