// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider turns one reply into one block of mono float32 audio at the
// sample rate the caller asks for. Providers whose service renders at a
// different native rate resample before returning, so callers never see the
// service's rate.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned when the backend answers successfully but the
// payload holds no samples.
var ErrEmptyAudio = errors.New("tts: empty audio")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text as speech at sampleRate. It returns an error
	// wrapping ErrEmptyAudio when the backend produced no audio.
	Synthesize(ctx context.Context, text string, sampleRate int) ([]float32, error)
}
