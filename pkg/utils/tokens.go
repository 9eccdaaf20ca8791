// Package utils provides token counting and identifier helpers shared
// across the pipeline.
package utils

import (
	"fmt"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides approximate token counting for prompt budgeting.
// All supported models are close enough to GPT-4 encoding for budget checks.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a token counter using GPT-4 encoding.
func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
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

// TruncateToTokenLimit truncates text to fit within the specified token
// limit. Truncation is by characters, not exact token boundaries.
func (tc *TokenCounter) TruncateToTokenLimit(text string, limit int) string {
	currentTokens := tc.CountTokens(text)
	if currentTokens <= limit {
		return text
	}

	ratio := float64(limit) / float64(currentTokens)
	charLimit := int(float64(len(text)) * ratio * 0.9) // 0.9 safety margin
	if charLimit >= len(text) {
		return text
	}
	// Back up to a rune boundary so the cut never splits a multi-byte
	// character.
	for charLimit > 0 && !utf8.RuneStart(text[charLimit]) {
		charLimit--
	}
	return text[:charLimit] + "..."
}
