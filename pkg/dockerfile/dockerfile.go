// Package dockerfile produces, repairs, and judges Dockerfiles through the
// text-generation collaborator.
package dockerfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dockhand/pkg/agent/llm"
	"dockhand/pkg/config"
	"dockhand/pkg/logx"
	"dockhand/pkg/project"
	"dockhand/pkg/utils"
)

// Operation tags for metrics.
const (
	OpGenerate = "generate"
	OpRefine   = "refine"
	OpJudge    = "judge"
)

// Generator wraps the collaborator with the three Dockerfile operations.
type Generator struct {
	client  llm.Client
	counter *utils.TokenCounter
	logger  *logx.Logger
}

// NewGenerator creates a Generator. counter bounds the failure text fed to
// Refine.
func NewGenerator(client llm.Client, counter *utils.TokenCounter, logger *logx.Logger) *Generator {
	return &Generator{client: client, counter: counter, logger: logger}
}

// Generate produces a fresh Dockerfile from the project context and the
// user specification.
func (g *Generator) Generate(ctx context.Context, proj *project.Context, specText string) (string, error) {
	folder := strings.Join(proj.Listing, "\n")
	req := llm.Request{
		Messages: []llm.Message{
			llm.NewSystemMessage(generateSystemPrompt),
			llm.NewUserMessage(fmt.Sprintf(generateUserPrompt, folder, proj.ReadmeText, specText)),
		},
		Temperature: 0.2,
	}
	resp, err := g.client.Complete(llm.WithOperation(ctx, OpGenerate), req)
	if err != nil {
		return "", fmt.Errorf("dockerfile generation failed: %w", err)
	}
	text := sanitize(resp.Content)
	if text == "" {
		return "", fmt.Errorf("dockerfile generation returned empty content")
	}
	return text, nil
}

// Refine asks the collaborator to repair a Dockerfile given build or run
// failure output. The failure text is clamped to a token budget, keeping
// its tail where build tools put the actual error.
func (g *Generator) Refine(ctx context.Context, current, failureText string) (string, error) {
	clamped := g.counter.ClampTokens(failureText, config.RefineErrTokenBudget)
	req := llm.Request{
		Messages: []llm.Message{
			llm.NewSystemMessage(refineSystemPrompt),
			llm.NewUserMessage(fmt.Sprintf(refineUserPrompt, current, clamped)),
		},
		Temperature: 0.2,
	}
	resp, err := g.client.Complete(llm.WithOperation(ctx, OpRefine), req)
	if err != nil {
		return "", fmt.Errorf("dockerfile refinement failed: %w", err)
	}
	return sanitize(resp.Content), nil
}

// Judge asks the collaborator whether the test output shows success. Any
// collaborator error yields a false verdict so the outer loop treats it as
// a failed attempt rather than aborting.
func (g *Generator) Judge(ctx context.Context, testOutput string) bool {
	req := llm.Request{
		Messages: []llm.Message{
			llm.NewSystemMessage(judgeSystemPrompt),
			llm.NewUserMessage(fmt.Sprintf(judgeUserPrompt, testOutput)),
		},
		Temperature: 0,
	}
	resp, err := g.client.Complete(llm.WithOperation(ctx, OpJudge), req)
	if err != nil {
		g.logger.Warn("verdict request failed, treating as not passed: %v", err)
		return false
	}
	return strings.EqualFold(strings.TrimSpace(resp.Content), "true")
}

// Path returns the descriptor location for a project root.
func Path(root string) string {
	return filepath.Join(root, "Dockerfile")
}

// Save writes the Dockerfile verbatim into the project root.
func Save(root, content string) error {
	if err := os.WriteFile(Path(root), []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write Dockerfile: %w", err)
	}
	return nil
}

// sanitize strips markdown fences that models sometimes add despite
// instructions, leaving the raw Dockerfile text.
func sanitize(content string) string {
	text := strings.TrimSpace(content)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	// Drop the opening fence line (``` or ```dockerfile).
	lines = lines[1:]
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
