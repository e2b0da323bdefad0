// Package agent constructs the text-generation client for a run: provider
// detection, credential lookup, and the middleware chain.
package agent

import (
	"fmt"

	"dockhand/pkg/agent/llm"
	"dockhand/pkg/agent/llmimpl/anthropic"
	"dockhand/pkg/agent/llmimpl/google"
	"dockhand/pkg/agent/llmimpl/ollama"
	"dockhand/pkg/agent/llmimpl/openai"
	"dockhand/pkg/config"
)

// NewClient builds the fully decorated client for the configured model.
// The metrics middleware is outermost so it observes timeout errors too.
func NewClient(cfg *config.Config, rec llm.Recorder) (llm.Client, error) {
	raw, err := newRawClient(cfg.Model)
	if err != nil {
		return nil, err
	}
	return llm.Chain(raw,
		llm.MetricsMiddleware(rec),
		llm.TimeoutMiddleware(cfg.LLMTimeout),
	), nil
}

func newRawClient(model string) (llm.Client, error) {
	provider, err := config.ModelProvider(model)
	if err != nil {
		return nil, err
	}
	key, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, err
	}
	switch provider {
	case config.ProviderAnthropic:
		return anthropic.New(key, model), nil
	case config.ProviderOpenAI:
		return openai.New(key, model), nil
	case config.ProviderGoogle:
		return google.New(key, model), nil
	case config.ProviderOllama:
		return ollama.New(key, model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
