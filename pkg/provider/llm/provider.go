// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (e.g. Groq's OpenAI-compatible
// endpoint, Anthropic Claude, or a local Ollama instance) and exposes a single
// blocking completion call so the receptionist can phrase answers without
// coupling to any specific SDK.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the backend answers without any choices or
// with only whitespace content.
var ErrEmptyResponse = errors.New("llm: empty response")

// Role values accepted in [Message.Role].
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn of the conversation sent to the model.
type Message struct {
	// Role is one of [RoleSystem], [RoleUser] or [RoleAssistant].
	Role string

	// Content is the plain-text body of the turn.
	Content string
}

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// A request without Messages is invalid.
type CompletionRequest struct {
	// SystemPrompt is injected before Messages as a "system" turn.
	SystemPrompt string

	// Messages is the ordered conversation. The last message is normally the
	// caller's question.
	Messages []Message

	// Temperature controls output randomness in the range [0.0, 2.0].
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the result of a completed request.
type CompletionResponse struct {
	// Content is the generated text.
	Content string

	// Usage reports token consumption. Zero when the backend omits it.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req and blocks until the full response is available or ctx
	// is cancelled. Implementations return [ErrEmptyResponse] (wrapped) when the
	// backend produced no usable text.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
