// Command dockhand generates a Dockerfile for a web project from its
// README, builds and runs it, executes the project's tests inside the
// container, and iteratively repairs the Dockerfile until the tests pass or
// the attempt budgets run out.
//
// Exit codes: 0 tests passed, 1 usage or fatal error, 2 attempt budget
// exhausted without a passing verdict.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/term"

	"dockhand/pkg/agent"
	"dockhand/pkg/config"
	"dockhand/pkg/dockerfile"
	"dockhand/pkg/engine"
	execpkg "dockhand/pkg/exec"
	"dockhand/pkg/logx"
	"dockhand/pkg/loop"
	"dockhand/pkg/metrics"
	"dockhand/pkg/probe"
	"dockhand/pkg/project"
	"dockhand/pkg/utils"
)

// Version information - set by goreleaser via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] /path/to/project/README.md [specification text]\n\nFlags:\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	var (
		specFlag    string
		specFile    string
		model       = flag.String("model", "", "text-generation model (default "+config.DefaultModel+")")
		configPath  = flag.String("config", "", "path to dockhand.yaml (default: beside the README)")
		metricsFile = flag.String("metrics-file", "", "write run metrics to this file in Prometheus text format")
		initSecrets = flag.Bool("init-secrets", false, "encrypt API keys from the environment into the secrets file and exit")
		showVersion = flag.Bool("version", false, "show version information")
	)
	flag.StringVar(&specFlag, "spec", "", "specification text for the Dockerfile generator")
	flag.StringVar(&specFlag, "s", "", "shorthand for -spec")
	flag.StringVar(&specFile, "spec-file", "", "read specification text from a file")
	flag.StringVar(&specFile, "f", "", "shorthand for -spec-file")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("dockhand %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		os.Exit(0)
	}

	if *initSecrets {
		os.Exit(runInitSecrets())
	}

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	os.Exit(run(specFlag, specFile, *model, *configPath, *metricsFile))
}

// run contains the main logic and returns an exit code, so defers execute
// before os.Exit.
func run(specFlag, specFile, model, configPath, metricsFile string) int {
	runID := uuid.NewString()
	logger := logx.NewLogger("dockhand")
	logger.Info("run %s starting", runID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := loadSecrets(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load secrets: %v\n", err)
		return 1
	}

	cfg, err := config.Load(config.Options{
		ReadmePath:  flag.Arg(0),
		SpecFlag:    specFlag,
		SpecFile:    specFile,
		Positional:  strings.Join(flag.Args()[1:], " "),
		Model:       model,
		ConfigPath:  configPath,
		MetricsFile: metricsFile,
		RunID:       runID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL ERROR: %v\n", err)
		return 1
	}

	rec := metrics.NewPrometheusRecorder(runID)
	defer func() {
		if cfg.MetricsFile == "" {
			return
		}
		if err := rec.DumpTo(cfg.MetricsFile); err != nil {
			logger.Warn("failed to write metrics file: %v", err)
		}
	}()

	switch err := realMain(ctx, cfg, rec, logger); {
	case err == nil:
		return 0
	case errors.Is(err, loop.ErrTestsFailed):
		fmt.Fprintf(os.Stderr, "FAILURE: %v\n", err)
		return 2
	default:
		fmt.Fprintf(os.Stderr, "\nFATAL ERROR: %v\n", err)
		return 1
	}
}

func realMain(ctx context.Context, cfg *config.Config, rec metrics.Recorder, logger *logx.Logger) error {
	client, err := agent.NewClient(cfg, rec)
	if err != nil {
		return err
	}
	counter, err := utils.NewTokenCounter(cfg.Model)
	if err != nil {
		return err
	}
	proj, err := project.Load(cfg.ReadmePath)
	if err != nil {
		return err
	}

	gen := dockerfile.NewGenerator(client, counter, logger.WithName("dockerfile"))
	runner := execpkg.NewLocalRunner()
	eng, err := engine.New(ctx, runner, logger.WithName("engine"))
	if err != nil {
		return err
	}

	l := loop.New(cfg, proj, eng, gen, probe.New(), rec, logger.WithName("loop"))

	logger.Section("Generating Dockerfile from %s", cfg.ReadmePath)
	if err := l.GenerateDescriptor(ctx); err != nil {
		return err
	}
	if err := eng.EnsureDaemon(ctx); err != nil {
		return err
	}
	return l.Run(ctx)
}

// loadSecrets decrypts the secrets file if one exists. The password comes
// from DOCKHAND_SECRETS_PASSWORD, or from a terminal prompt when stdin is a
// TTY. Without either, credentials come from plain environment variables.
func loadSecrets() error {
	path, err := config.SecretsFilePath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	password := []byte(os.Getenv("DOCKHAND_SECRETS_PASSWORD"))
	if len(password) == 0 {
		if !term.IsTerminal(int(syscall.Stdin)) {
			return nil
		}
		password, err = config.PromptPassword("Password for " + path + ": ")
		if err != nil {
			return err
		}
	}
	return config.LoadSecrets(path, password)
}

// runInitSecrets collects the known API keys from the environment and
// writes them to the encrypted secrets file.
func runInitSecrets() int {
	keys := map[string]string{}
	for _, name := range []string{config.EnvAnthropicAPIKey, config.EnvOpenAIAPIKey, config.EnvGoogleAPIKey} {
		if v := os.Getenv(name); v != "" {
			keys[name] = v
		}
	}
	if len(keys) == 0 {
		fmt.Fprintln(os.Stderr, "No API keys found in the environment; nothing to store.")
		return 1
	}
	password, err := config.PromptPassword("Password for secrets file: ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read password: %v\n", err)
		return 1
	}
	path, err := config.SecretsFilePath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if err := config.SaveSecrets(path, keys, password); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write secrets: %v\n", err)
		return 1
	}
	fmt.Printf("Stored %d secret(s) in %s\n", len(keys), path)
	return 0
}
