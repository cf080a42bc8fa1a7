// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (an OpenAI-compatible
// /v1/audio/transcriptions endpoint or a whisper.cpp server) behind a single
// request/response call: one detected utterance in, one transcript out.
//
// Implementations must be safe for concurrent use; every session in the
// process shares the same provider.
package stt

import (
	"context"
	"errors"
)

// ErrNoSpeech is returned when the backend answers successfully but the
// transcript is empty.
var ErrNoSpeech = errors.New("stt: no usable text in transcription")

// Request is one utterance to transcribe.
type Request struct {
	// Audio holds mono float32 samples in [-1, 1].
	Audio []float32

	// SampleRate is the rate of Audio in Hz. Providers resample as needed.
	SampleRate int

	// Language is the ISO-639-1 code of the spoken language (e.g. "fi").
	// Empty lets the backend auto-detect.
	Language string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe returns the text spoken in req.Audio. It returns an error
	// wrapping ErrNoSpeech when the backend produced no text, and honours
	// ctx cancellation.
	Transcribe(ctx context.Context, req Request) (string, error)
}
