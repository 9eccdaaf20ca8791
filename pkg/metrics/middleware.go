package metrics

import (
	"context"
	"time"

	"taskforge/pkg/agent/llm"
)

// InstrumentedClient wraps an LLM client and records request metrics under a
// fixed role label.
type InstrumentedClient struct {
	inner    llm.LLMClient
	recorder *Recorder
	role     string
}

// Instrument wraps a client so its requests are observed by the recorder.
func Instrument(client llm.LLMClient, recorder *Recorder, role string) *InstrumentedClient {
	return &InstrumentedClient{inner: client, recorder: recorder, role: role}
}

// Complete implements llm.LLMClient.
func (c *InstrumentedClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := c.inner.Complete(ctx, in)
	c.recorder.ObserveLLMRequest(c.inner.GetModelName(), c.role, err == nil, time.Since(start))
	return resp, err
}

// Stream implements llm.LLMClient. Only stream establishment is timed.
func (c *InstrumentedClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	start := time.Now()
	ch, err := c.inner.Stream(ctx, in)
	c.recorder.ObserveLLMRequest(c.inner.GetModelName(), c.role, err == nil, time.Since(start))
	return ch, err
}

// GetModelName implements llm.LLMClient.
func (c *InstrumentedClient) GetModelName() string {
	return c.inner.GetModelName()
}
