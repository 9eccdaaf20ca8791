// Package roles implements the eight pipeline agents. Every agent satisfies
// the same contract: a Run method that consumes a typed input and returns a
// typed, schema-valid output. An agent may consult a language model, but each
// one carries a deterministic fallback so the pipeline works fully offline.
package roles

import (
	"context"
	"errors"
	"strings"

	"taskforge/pkg/agent"
	"taskforge/pkg/jsonx"
	"taskforge/pkg/logx"
)

// StreamCallback receives model output chunks as they arrive, labeled with
// the emitting agent's name. It is a one-way notification for UI feedback;
// the pipeline never waits on or branches over chunk delivery.
type StreamCallback func(agentName, chunk string)

// errNoModel signals that no model client is configured; callers use their
// deterministic fallback.
var errNoModel = errors.New("no model client configured")

// base carries the plumbing shared by all role agents.
type base struct {
	name          string
	client        agent.LLMClient
	stream        StreamCallback
	logger        *logx.Logger
	repairRetries int
}

func newBase(name string, client agent.LLMClient, stream StreamCallback, repairRetries int) base {
	return base{
		name:          name,
		client:        client,
		stream:        stream,
		logger:        logx.NewLogger(strings.ToLower(name)),
		repairRetries: repairRetries,
	}
}

// emit forwards a chunk to the stream callback if one is attached. Callback
// panics are swallowed; observers must not disturb the pipeline.
func (b *base) emit(chunk string) {
	if b.stream == nil || chunk == "" {
		return
	}
	defer func() { _ = recover() }()
	b.stream(b.name, chunk)
}

// complete requests a full completion, streaming chunks to the callback when
// one is attached.
func (b *base) complete(ctx context.Context, prompt string) (string, error) {
	if b.client == nil {
		return "", errNoModel
	}

	req := agent.NewCompletionRequest([]agent.CompletionMessage{agent.NewUserMessage(prompt)})

	if b.stream == nil {
		resp, err := b.client.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}

	ch, err := b.client.Stream(ctx, req)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for chunk := range ch {
		if chunk.Error != nil {
			return "", chunk.Error
		}
		sb.WriteString(chunk.Content)
		b.emit(chunk.Content)
	}
	return sb.String(), nil
}

// Generate implements jsonx.Generator so repair resubmissions go back to the
// same model without re-streaming.
func (b *base) Generate(ctx context.Context, prompt string) (string, error) {
	if b.client == nil {
		return "", errNoModel
	}
	resp, err := b.client.Complete(ctx, agent.NewCompletionRequest([]agent.CompletionMessage{agent.NewUserMessage(prompt)}))
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// generateJSON runs one model turn and parses the result, escalating into
// the bounded repair conversation when the output is malformed. A transport
// or model failure returns errNoModel semantics to the caller (fall back);
// a parse exhaustion is fatal and propagates.
func (b *base) generateJSON(ctx context.Context, role, prompt, schemaHint string, expectedKeys []string) (map[string]any, error) {
	raw, err := b.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		// Empty output is a capability failure, not malformed JSON; the
		// caller's deterministic fallback takes over.
		return nil, errors.New("model returned empty output")
	}

	parsed, err := jsonx.ParseWithRepair(ctx, b, role, raw, schemaHint, expectedKeys, b.repairRetries)
	if err != nil {
		return nil, err
	}
	return parsed, nil
}

// IsParseExhausted reports whether an error from a role is the fatal parse
// repair exhaustion.
func IsParseExhausted(err error) bool {
	var exhausted *jsonx.ExhaustedError
	return errors.As(err, &exhausted)
}

// Map value coercion helpers. Parsed JSON always arrives as map[string]any.

func getString(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func getBool(m map[string]any, key string, fallback bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return fallback
}

func getStringSlice(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getObjectSlice(m map[string]any, key string) []map[string]any {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}
