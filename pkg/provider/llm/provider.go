// Package llm defines the Provider interface for large language model
// backends.
//
// The conversation agent only needs one capability: given the system prompt
// and the full chat history, produce the next assistant reply. Providers
// translate that into their vendor's chat-completion call.
//
// Implementations must be safe for concurrent use.
package llm

import (
	"context"
	"errors"

	"github.com/MrWong99/vastaa/pkg/types"
)

// ErrEmptyResponse is returned when the backend answers without any reply
// text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Usage reports token consumption for one completion. Zero when the backend
// does not report it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest is one chat-completion call.
type CompletionRequest struct {
	// SystemPrompt, if non-empty, is sent ahead of Messages as a system turn.
	SystemPrompt string

	// Messages is the conversation so far, oldest first.
	Messages []types.Message

	// Temperature is the sampling temperature. Nil leaves the backend
	// default in place.
	Temperature *float64

	// MaxTokens caps the reply length. Zero leaves the backend default.
	MaxTokens int
}

// CompletionResponse is the backend's reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete returns the next assistant turn for req. It returns an error
	// wrapping ErrEmptyResponse when the backend produced no content.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
