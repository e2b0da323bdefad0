// Package utils provides tiktoken-based token counting utilities.
package utils

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides token counting and clamping for prompt inputs.
// All supported providers are approximated with the GPT-4 encoding, which is
// close enough for budget enforcement.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a token counter. The model name is accepted for
// future per-model encodings; every current model maps to GPT-4 encoding.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		// Fallback to character-based estimation (4 chars ≈ 1 token)
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// ClampTokens truncates text to at most maxTokens tokens, keeping the tail.
// Build failures put the actionable error at the end of the output, so the
// tail is what the refiner needs to see.
func (tc *TokenCounter) ClampTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	if tc == nil || tc.codec == nil {
		maxChars := maxTokens * 4
		if len(text) <= maxChars {
			return text
		}
		return text[len(text)-maxChars:]
	}
	ids, _, err := tc.codec.Encode(text)
	if err != nil || len(ids) <= maxTokens {
		return text
	}
	clamped, err := tc.codec.Decode(ids[len(ids)-maxTokens:])
	if err != nil {
		return text
	}
	return clamped
}
