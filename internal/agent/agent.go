// Package agent runs one side of a spoken conversation.
//
// A [ConversationAgent] belongs to exactly one session. It feeds captured
// audio through a voice activity detector and, when an utterance ends,
// runs a turn: transcribe, generate a short reply, synthesize it and hand
// the audio to the session's output buffer. While a turn is in flight
// (including the time the reply takes to play) further capture is dropped.
package agent

import (
	"context"

	"github.com/MrWong99/vastaa/pkg/types"
)

// Agent is the per-session conversation controller used by the session
// registry. Implementations must be safe for concurrent use.
type Agent interface {
	// ProcessInput offers one captured chunk. It never blocks on provider
	// calls; a detected utterance starts a turn in the background.
	ProcessInput(ctx context.Context, chunk []float32)

	// UpdateVADThreshold changes the speech energy threshold for
	// subsequent chunks.
	UpdateVADThreshold(threshold float64)

	// Status returns a snapshot that is safe to retain.
	Status() Status

	// Close cancels any in-flight turn and waits for it to finish.
	Close() error
}

// Status is what clients see of an agent.
type Status struct {
	IsProcessing bool            `json:"is_processing"`
	ChatHistory  []types.Message `json:"chat_history"`
}

// Output receives synthesized reply audio. *framebuf.Buffer implements it.
type Output interface {
	Inject(samples []float32) error
}
