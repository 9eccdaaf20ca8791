package jsonx

import (
	"context"
	"fmt"
)

// DefaultMaxRepairRetries bounds the repair conversation when no explicit
// budget is configured.
const DefaultMaxRepairRetries = 2

// Generator produces raw model text for a prompt. It is the minimal slice of
// the model capability the repair conversation needs.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ExhaustedError is the fatal outcome of a repair conversation: every local
// strategy and every resubmission failed. It carries the last raw text and
// the last parse error for operator diagnosis. It is not recovered locally
// and aborts the run.
type ExhaustedError struct {
	Role     string
	Attempts int
	LastRaw  string
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("parse repair exhausted for %s after %d attempts: %v", e.Role, e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// BuildRepairPrompt constructs the resubmission request: the exact error,
// the full previous raw response, and the expected-shape hint.
func BuildRepairPrompt(role, errText, raw, schemaHint string) string {
	return fmt.Sprintf(
		"Your last response as the %s agent was not valid JSON and failed to parse.\n\n"+
			"Parse error:\n%s\n\n"+
			"Complete previous response:\n-----\n%s\n-----\n\n"+
			"Analyze your response and return ONE strictly valid JSON object now.\n"+
			"- No text outside the JSON\n"+
			"- No markdown\n"+
			"- No comments\n\n"+
			"Structure you must follow:\n%s\n",
		role, errText, raw, schemaHint)
}

// ParseWithRepair parses raw model output, escalating to a bounded repair
// conversation on failure: each retry resubmits the previous raw response
// with the parse error and schema hint to the same model. When maxRetries
// resubmissions have failed the result is an ExhaustedError.
func ParseWithRepair(ctx context.Context, gen Generator, role, raw, schemaHint string, expectedKeys []string, maxRetries int) (map[string]any, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRepairRetries
	}

	out, err := Parse(raw, expectedKeys)
	if err == nil {
		return out, nil
	}

	lastRaw := raw
	lastErr := err
	attempts := 0

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if gen == nil {
			break
		}
		attempts++

		prompt := BuildRepairPrompt(role, lastErr.Error(), lastRaw, schemaHint)
		repaired, genErr := gen.Generate(ctx, prompt)
		if genErr != nil {
			lastErr = fmt.Errorf("repair generation failed: %w", genErr)
			continue
		}

		lastRaw = repaired
		out, err = Parse(repaired, expectedKeys)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}

	return nil, &ExhaustedError{
		Role:     role,
		Attempts: attempts,
		LastRaw:  lastRaw,
		LastErr:  lastErr,
	}
}
