// Package agent provides the language-model client abstraction used by every
// pipeline role: a uniform completion contract, backend selection, retry
// wrapping, and a mock client for offline tests. The canonical types live in
// the llm subpackage; they are aliased here so consumers only import agent.
package agent

import (
	"io"

	"taskforge/pkg/agent/llm"
)

type (
	// LLMClient is the interface all language model clients implement.
	LLMClient = llm.LLMClient

	// CompletionRequest represents a request to generate a completion.
	CompletionRequest = llm.CompletionRequest

	// CompletionResponse represents a response from a completion request.
	CompletionResponse = llm.CompletionResponse

	// CompletionMessage represents a message in a completion request.
	CompletionMessage = llm.CompletionMessage

	// CompletionRole represents the role of a message in a conversation.
	CompletionRole = llm.CompletionRole

	// StreamChunk represents a chunk of streamed completion response.
	StreamChunk = llm.StreamChunk
)

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem = llm.RoleSystem
	// RoleUser indicates a message from the human user.
	RoleUser = llm.RoleUser
	// RoleAssistant indicates a message from the AI assistant.
	RoleAssistant = llm.RoleAssistant

	// DefaultMaxTokens is the default completion budget per request.
	DefaultMaxTokens = llm.DefaultMaxTokens

	// TemperatureDeterministic is used for all pipeline completions.
	TemperatureDeterministic = llm.TemperatureDeterministic
)

// NewCompletionRequest creates a new completion request with default values.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return llm.NewCompletionRequest(messages)
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return llm.NewSystemMessage(content)
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return llm.NewUserMessage(content)
}

// StreamToReader converts a stream channel to an io.Reader.
func StreamToReader(stream <-chan StreamChunk) io.Reader {
	return llm.StreamToReader(stream)
}
