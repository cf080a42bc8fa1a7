// Package types defines the shared types used across vastaa packages.
//
// They form the lingua franca between providers, the conversation agent and
// the transport. Each package defines its own domain types; cross-cutting
// data structures live here to avoid circular imports.
package types

// Chat roles used in [Message.Role].
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation, in conversation order.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string `json:"role"`

	// Content is the plain-text body of the turn.
	Content string `json:"content"`
}
