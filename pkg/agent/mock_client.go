package agent

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a scripted LLMClient for tests and offline development.
// Responses are consumed in order; when the script runs out the client
// returns ErrScriptExhausted unless a Fallback is set.
type MockClient struct {
	mu        sync.Mutex
	modelName string
	responses []MockResponse
	index     int

	// Fallback is invoked when the scripted responses are exhausted.
	Fallback func(req CompletionRequest) (string, error)

	// Requests records every request seen, in order.
	Requests []CompletionRequest
}

// MockResponse is a single scripted turn.
type MockResponse struct {
	Content string
	Err     error
}

// ErrScriptExhausted is returned when a MockClient runs out of scripted
// responses and has no fallback.
var ErrScriptExhausted = fmt.Errorf("mock client: scripted responses exhausted")

// NewMockClient creates a mock client that replays the given contents in order.
func NewMockClient(modelName string, contents ...string) *MockClient {
	responses := make([]MockResponse, 0, len(contents))
	for _, c := range contents {
		responses = append(responses, MockResponse{Content: c})
	}
	return &MockClient{modelName: modelName, responses: responses}
}

// Script appends a scripted response.
func (m *MockClient) Script(resp MockResponse) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	return m
}

// Complete implements LLMClient.
func (m *MockClient) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)

	if m.index >= len(m.responses) {
		if m.Fallback != nil {
			content, err := m.Fallback(req)
			if err != nil {
				return CompletionResponse{}, err
			}
			return CompletionResponse{Content: content}, nil
		}
		return CompletionResponse{}, ErrScriptExhausted
	}

	resp := m.responses[m.index]
	m.index++
	if resp.Err != nil {
		return CompletionResponse{}, resp.Err
	}
	return CompletionResponse{Content: resp.Content}, nil
}

// Stream implements LLMClient by chunking the next scripted response.
func (m *MockClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk, 2)
	ch <- StreamChunk{Content: resp.Content}
	ch <- StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

// GetModelName implements LLMClient.
func (m *MockClient) GetModelName() string {
	return m.modelName
}

// CallCount reports how many Complete/Stream calls were made.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
