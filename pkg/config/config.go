// Package config derives the immutable per-run configuration for dockhand:
// project paths, image/container names, attempt budgets, specification text,
// and the text-generation backend selection.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider identifiers for the text-generation collaborator backends.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Model name constants.
const (
	ModelClaudeSonnet = "claude-sonnet-4-5"
	ModelClaudeOpus   = "claude-opus-4-5"
	ModelGPT5         = "gpt-5"
	ModelGPT5Mini     = "gpt-5-mini-2025-08-07"
	ModelGeminiFlash  = "gemini-2.5-flash"

	// DefaultModel matches the tool's historical default backend.
	DefaultModel = ModelGPT5Mini
)

// Environment variable names for provider credentials.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
)

// Attempt budgets and probe defaults.
const (
	MaxBuildAttempts = 10
	MaxTestAttempts  = 5

	DefaultReadinessDeadline = 120 * time.Second

	// DefaultLLMTimeout bounds a single collaborator call.
	DefaultLLMTimeout = 5 * time.Minute

	// RefineErrTokenBudget clamps the failure signal fed to the refiner.
	RefineErrTokenBudget = 8000
)

// DefaultSpecText is the specification used when no flag, positional
// argument, or environment variable provides one.
const DefaultSpecText = "Default command should start the dev server on the detected port\n"

// specEnvVars is the precedence order for specification text overrides.
var specEnvVars = []string{"DOCKER_SPECS", "DOCKER_SPECIFICATIONS", "SPECIFICATIONS"}

// ModelInfo describes a known model.
type ModelInfo struct {
	Provider        string
	MaxOutputTokens int
}

// KnownModels maps model names to provider and limits.
var KnownModels = map[string]ModelInfo{
	ModelClaudeSonnet: {Provider: ProviderAnthropic, MaxOutputTokens: 64000},
	ModelClaudeOpus:   {Provider: ProviderAnthropic, MaxOutputTokens: 32000},
	ModelGPT5:         {Provider: ProviderOpenAI, MaxOutputTokens: 128000},
	ModelGPT5Mini:     {Provider: ProviderOpenAI, MaxOutputTokens: 128000},
	ModelGeminiFlash:  {Provider: ProviderGoogle, MaxOutputTokens: 65536},
}

// providerPattern maps a model-name prefix to a provider for models outside
// the known table.
type providerPattern struct {
	Prefix   string
	Provider string
}

var providerPatterns = []providerPattern{
	{"claude-", ProviderAnthropic},
	{"gpt-", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"gemini-", ProviderGoogle},
}

// ModelProvider determines which provider serves the given model name.
// Ollama models carry a tag separated by a colon (e.g. "llama3.1:70b").
func ModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}
	for i := range providerPatterns {
		if strings.HasPrefix(modelName, providerPatterns[i].Prefix) {
			return providerPatterns[i].Provider, nil
		}
	}
	if strings.Contains(modelName, ":") {
		return ProviderOllama, nil
	}
	return "", fmt.Errorf("unknown model %q: no provider mapping or pattern match", modelName)
}

// GetAPIKey returns the credential for a provider. The encrypted secrets
// file takes precedence over environment variables. Ollama has no key; its
// host URL is returned instead.
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		host := os.Getenv(EnvOllamaHost)
		if host == "" {
			host = "http://localhost:11434"
		}
		return host, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	if key, err := GetSecret(envVar); err == nil && key != "" {
		return key, nil
	}
	return "", fmt.Errorf("API key not found: %s not set in secrets file or environment", envVar)
}

// Config is the immutable per-run configuration, derived once at startup and
// threaded explicitly through the loops.
type Config struct {
	// ReadmePath is the absolute path to the project README.
	ReadmePath string

	// ProjectRoot is the directory containing the README.
	ProjectRoot string

	// Image and Container are the fixed single-tenant names for this run.
	Image     string
	Container string

	// PortOverride forces the published port; 0 means detect per attempt.
	PortOverride int

	// SpecText is the free-form specification handed to the generator.
	SpecText string

	// Model selects the text-generation backend.
	Model string

	// ReadinessDeadline bounds the readiness probe per outer attempt.
	ReadinessDeadline time.Duration

	// LLMTimeout bounds a single collaborator call.
	LLMTimeout time.Duration

	// MaxBuildAttempts and MaxTestAttempts are the loop budgets.
	MaxBuildAttempts int
	MaxTestAttempts  int

	// MetricsFile, when set, receives a Prometheus text-format dump at exit.
	MetricsFile string

	// RunID labels logs and metrics for this invocation.
	RunID string
}

// FileConfig is the optional YAML override file (dockhand.yaml beside the
// project, or an explicit --config path).
type FileConfig struct {
	Model               string `yaml:"model"`
	Image               string `yaml:"image"`
	Container           string `yaml:"container"`
	Port                int    `yaml:"port"`
	ReadinessTimeoutSec int    `yaml:"readiness_timeout_sec"`
}

// LoadFileConfig reads a YAML override file. A missing file at the default
// location is not an error; a missing explicit path is.
func LoadFileConfig(path string, explicit bool) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &fc, nil
}

// Options carries the raw CLI inputs that Load resolves into a Config.
type Options struct {
	ReadmePath  string
	SpecFlag    string
	SpecFile    string
	Positional  string
	Model       string
	ConfigPath  string
	MetricsFile string
	RunID       string
}

// Load derives the per-run Config. The README must exist; name defaults are
// derived from the project directory.
func Load(opts Options) (*Config, error) {
	readmePath, err := filepath.Abs(opts.ReadmePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve README path: %w", err)
	}
	if _, err := os.Stat(readmePath); err != nil {
		return nil, fmt.Errorf("README not found: %s", readmePath)
	}
	projectRoot := filepath.Dir(readmePath)

	fcPath := opts.ConfigPath
	explicit := fcPath != ""
	if fcPath == "" {
		fcPath = filepath.Join(projectRoot, "dockhand.yaml")
	}
	fc, err := LoadFileConfig(fcPath, explicit)
	if err != nil {
		return nil, err
	}

	specText, err := ResolveSpecText(opts.SpecFlag, opts.SpecFile, opts.Positional)
	if err != nil {
		return nil, err
	}

	model := firstNonEmpty(opts.Model, fc.Model, DefaultModel)
	baseName := sanitizeName(filepath.Base(projectRoot))

	cfg := &Config{
		ReadmePath:        readmePath,
		ProjectRoot:       projectRoot,
		Image:             firstNonEmpty(fc.Image, baseName),
		Container:         firstNonEmpty(fc.Container, baseName),
		PortOverride:      fc.Port,
		SpecText:          specText,
		Model:             model,
		ReadinessDeadline: DefaultReadinessDeadline,
		LLMTimeout:        DefaultLLMTimeout,
		MaxBuildAttempts:  MaxBuildAttempts,
		MaxTestAttempts:   MaxTestAttempts,
		MetricsFile:       opts.MetricsFile,
		RunID:             opts.RunID,
	}
	if fc.ReadinessTimeoutSec > 0 {
		cfg.ReadinessDeadline = time.Duration(fc.ReadinessTimeoutSec) * time.Second
	}
	return cfg, nil
}

// ResolveSpecText applies the specification precedence: --spec flag, then
// --spec-file, then positional text, then environment variables, then the
// default.
func ResolveSpecText(specFlag, specFile, positional string) (string, error) {
	if specFlag != "" {
		return specFlag, nil
	}
	if specFile != "" {
		data, err := os.ReadFile(specFile)
		if err != nil {
			return "", fmt.Errorf("failed to read spec file %s: %w", specFile, err)
		}
		return string(data), nil
	}
	if positional != "" {
		return positional, nil
	}
	for _, name := range specEnvVars {
		if v := os.Getenv(name); v != "" {
			return v, nil
		}
	}
	return DefaultSpecText, nil
}

var nameSanitizer = regexp.MustCompile(`[^a-z0-9_.-]+`)

// sanitizeName turns a directory name into a valid image/container name.
func sanitizeName(name string) string {
	name = nameSanitizer.ReplaceAllString(strings.ToLower(name), "-")
	name = strings.Trim(name, "-.")
	if name == "" {
		return "dockhand-app"
	}
	return name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ProxyEnv returns the proxy variables present in the process environment,
// in KEY=VALUE form, for forwarding into the image build.
func ProxyEnv() []string {
	keys := []string{"HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY", "http_proxy", "https_proxy", "no_proxy"}
	var out []string
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			out = append(out, k+"="+v)
		}
	}
	return out
}
