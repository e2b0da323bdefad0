// Package loop implements the two bounded retry loops at the heart of the
// tool: the inner build/refine loop and the outer build-run-test-judge
// cycle.
package loop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"dockhand/pkg/config"
	"dockhand/pkg/detect"
	"dockhand/pkg/dockerfile"
	"dockhand/pkg/engine"
	execpkg "dockhand/pkg/exec"
	"dockhand/pkg/logx"
	"dockhand/pkg/metrics"
	"dockhand/pkg/probe"
	"dockhand/pkg/project"
)

// Terminal loop outcomes. Both build errors are fatal for the whole run;
// ErrTestsFailed maps to its own exit code.
var (
	ErrBuildExhausted = errors.New("build failed after maximum refinement attempts")
	ErrRefineStalled  = errors.New("build failed and refinement produced no changes")
	ErrTestsFailed    = errors.New("tests did not pass within the attempt budget")
)

// Log tail sizes for diagnostics. A failed verdict gets a longer tail than
// a readiness miss.
const (
	readinessLogTail = 300
	verdictLogTail   = 400
)

// Runtime is the container engine surface the loops drive.
type Runtime interface {
	Build(ctx context.Context, root, image string) (execpkg.Result, error)
	Remove(ctx context.Context, container string)
	RunDetached(ctx context.Context, container, image string, port int) (execpkg.Result, error)
	ExecShell(ctx context.Context, container, command string) (execpkg.Result, error)
	LogsTail(ctx context.Context, container string, n int) string
}

// Descriptor is the collaborator surface producing and judging Dockerfiles.
type Descriptor interface {
	Generate(ctx context.Context, proj *project.Context, specText string) (string, error)
	Refine(ctx context.Context, current, failureText string) (string, error)
	Judge(ctx context.Context, testOutput string) bool
}

// Prober waits for the containerized service to answer HTTP.
type Prober interface {
	WaitReady(ctx context.Context, url string, deadline time.Duration) probe.Outcome
}

// Loop coordinates one run.
type Loop struct {
	cfg     *config.Config
	proj    *project.Context
	runtime Runtime
	descr   Descriptor
	prober  Prober
	rec     metrics.Recorder
	logger  *logx.Logger
}

// New assembles a Loop from its collaborators.
func New(cfg *config.Config, proj *project.Context, runtime Runtime, descr Descriptor, prober Prober, rec metrics.Recorder, logger *logx.Logger) *Loop {
	return &Loop{
		cfg:     cfg,
		proj:    proj,
		runtime: runtime,
		descr:   descr,
		prober:  prober,
		rec:     rec,
		logger:  logger,
	}
}

// GenerateDescriptor produces a fresh Dockerfile and writes it into the
// project root.
func (l *Loop) GenerateDescriptor(ctx context.Context) error {
	text, err := l.descr.Generate(ctx, l.proj, l.cfg.SpecText)
	if err != nil {
		return err
	}
	if err := dockerfile.Save(l.proj.Root, text); err != nil {
		return err
	}
	l.logger.Info("Dockerfile written to %s", dockerfile.Path(l.proj.Root))
	return nil
}

// Build runs the inner build/refine loop: build the image, and on failure
// feed the combined output to the refiner and retry with the rewritten
// descriptor. A refiner error consumes an attempt and retries unchanged; a
// no-op refinement stalls the loop terminally.
func (l *Loop) Build(ctx context.Context) error {
	for attempt := 1; attempt <= l.cfg.MaxBuildAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.logger.Section("Building image %s (attempt %d/%d)", l.cfg.Image, attempt, l.cfg.MaxBuildAttempts)

		res, err := l.runtime.Build(ctx, l.proj.Root, l.cfg.Image)
		if err != nil {
			return fmt.Errorf("build invocation failed: %w", err)
		}
		if res.ExitCode == 0 {
			l.rec.IncBuildAttempt("success")
			l.logger.Info("image built: %s", l.cfg.Image)
			return nil
		}
		l.rec.IncBuildAttempt("failure")

		msg := res.Combined()
		l.logger.Error("build failed:\n%s", msg)
		if hint := engine.CredentialHelperHint(msg); hint != "" {
			l.logger.Warn("%s", hint)
		}
		if hint := engine.GitProtocolHint(msg); hint != "" {
			l.logger.Warn("%s", hint)
		}

		if attempt >= l.cfg.MaxBuildAttempts {
			return ErrBuildExhausted
		}

		current, err := os.ReadFile(dockerfile.Path(l.proj.Root))
		if err != nil {
			return fmt.Errorf("failed to read current Dockerfile: %w", err)
		}
		refined, err := l.descr.Refine(ctx, string(current), msg)
		if err != nil {
			l.logger.Warn("refine call failed: %v; retrying with the same Dockerfile", err)
			continue
		}
		if strings.TrimSpace(refined) == "" || strings.TrimSpace(refined) == strings.TrimSpace(string(current)) {
			l.logger.Error("refinement produced no effective changes; aborting")
			return ErrRefineStalled
		}
		if err := dockerfile.Save(l.proj.Root, refined); err != nil {
			return err
		}
		l.logger.Info("refined Dockerfile written, retrying build")
	}
	return ErrBuildExhausted
}

// Run executes the outer cycle: build, start the container, probe readiness
// best-effort, run the tests inside, and judge the output. A true verdict
// succeeds immediately; a false one regenerates the descriptor and retries
// until the budget runs out.
func (l *Loop) Run(ctx context.Context) error {
	for attempt := 1; attempt <= l.cfg.MaxTestAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.logger.Section("Test attempt %d/%d", attempt, l.cfg.MaxTestAttempts)

		if err := l.Build(ctx); err != nil {
			return err
		}

		port := l.cfg.PortOverride
		if port == 0 {
			descriptorText := ""
			if data, err := os.ReadFile(dockerfile.Path(l.proj.Root)); err == nil {
				descriptorText = string(data)
			}
			port = detect.Port(l.proj, descriptorText)
		}

		l.runtime.Remove(ctx, l.cfg.Container)
		res, err := l.runtime.RunDetached(ctx, l.cfg.Container, l.cfg.Image, port)
		if err != nil {
			return fmt.Errorf("failed to start container: %w", err)
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("failed to start container:\n%s", res.Combined())
		}

		url := fmt.Sprintf("http://localhost:%d/", port)
		l.logger.Section("Waiting for service to be ready at %s", url)
		outcome := l.prober.WaitReady(ctx, url, l.cfg.ReadinessDeadline)
		if outcome.Ready {
			l.logger.Info("service accessible at %s", url)
		} else {
			l.logger.Warn("service not ready after %s; proceeding to tests anyway", l.cfg.ReadinessDeadline)
			l.logger.Info("container logs for diagnostics:")
			l.logger.Raw(l.runtime.LogsTail(ctx, l.cfg.Container, readinessLogTail))
		}

		testCmd := detect.TestCommand(l.proj, l.logger)
		l.logger.Section("Running tests: %s", testCmd)
		execRes, err := l.runtime.ExecShell(ctx, l.cfg.Container, testCmd)
		if err != nil {
			return fmt.Errorf("failed to exec test command: %w", err)
		}

		// Judge sees stdout first: test runners print results there and
		// the verdict examples are stdout-shaped.
		combined := execRes.Stdout
		if execRes.Stderr != "" {
			if combined != "" {
				combined += "\n"
			}
			combined += execRes.Stderr
		}

		if l.descr.Judge(ctx, combined) {
			l.rec.IncVerdict("true")
			l.logger.Info("SUCCESS: all specified tests passed")
			return nil
		}
		l.rec.IncVerdict("false")
		l.logger.Warn("tests judged as failed, collecting diagnostics")
		l.logger.Raw(l.runtime.LogsTail(ctx, l.cfg.Container, verdictLogTail))

		if attempt < l.cfg.MaxTestAttempts {
			l.logger.Section("Regenerating Dockerfile and retrying")
			if err := l.GenerateDescriptor(ctx); err != nil {
				return err
			}
		}
	}
	return ErrTestsFailed
}
