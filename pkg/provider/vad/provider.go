// Package vad defines the Engine interface for voice activity detection
// backends.
//
// A VAD engine creates stateful, per-stream sessions. A session consumes raw
// float32 chunks in arrival order and reports when a complete utterance has
// been heard, returning the utterance samples so the caller can hand them to
// speech-to-text without keeping its own copy of the stream.
//
// Detection is synchronous: Detect returns immediately and never blocks on I/O.
//
// Engines must be safe for concurrent use across sessions. A single
// SessionHandle is not safe for concurrent use; callers serialize access.
package vad

import (
	"errors"
	"fmt"
	"time"
)

// Defaults for energy based segmentation.
const (
	DefaultThreshold    = 0.001
	DefaultEnergyWindow = 2 * time.Second
	DefaultMinSpeech    = 2 * time.Second
	DefaultMaxBuffer    = 120 * time.Second
)

// Config holds the parameters for a VAD session. Durations are converted to
// sample counts using SampleRate.
type Config struct {
	// SampleRate is the rate of the chunks passed to Detect, in Hz.
	SampleRate int

	// Threshold is the mean squared amplitude above which the most recent
	// energy window counts as speech.
	Threshold float64

	// EnergyWindow is the span of trailing audio the energy is averaged over.
	// No classification happens until this much audio has been buffered.
	EnergyWindow time.Duration

	// MinSpeech is the shortest speech run reported as an utterance. Shorter
	// runs are discarded as noise.
	MinSpeech time.Duration

	// MaxBuffer bounds the rolling buffer; the oldest samples are dropped
	// once it is exceeded.
	MaxBuffer time.Duration
}

// DefaultConfig returns a Config populated with the package defaults.
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate:   sampleRate,
		Threshold:    DefaultThreshold,
		EnergyWindow: DefaultEnergyWindow,
		MinSpeech:    DefaultMinSpeech,
		MaxBuffer:    DefaultMaxBuffer,
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("vad: sample rate must be positive, got %d", c.SampleRate))
	}
	if c.Threshold < 0 {
		errs = append(errs, fmt.Errorf("vad: threshold must not be negative, got %v", c.Threshold))
	}
	if c.EnergyWindow <= 0 {
		errs = append(errs, fmt.Errorf("vad: energy window must be positive, got %v", c.EnergyWindow))
	}
	if c.MinSpeech < 0 {
		errs = append(errs, fmt.Errorf("vad: min speech must not be negative, got %v", c.MinSpeech))
	}
	if c.MaxBuffer < c.EnergyWindow {
		errs = append(errs, fmt.Errorf("vad: max buffer %v is shorter than the energy window %v", c.MaxBuffer, c.EnergyWindow))
	}
	return errors.Join(errs...)
}

// SessionHandle is an active VAD session for a single audio stream. It is an
// interface so that test code can supply mock implementations.
type SessionHandle interface {
	// Detect appends chunk to the session and reports whether it completed an
	// utterance. Chunks may be any length.
	Detect(chunk []float32) Result

	// UpdateThreshold replaces the energy threshold. It applies to subsequent
	// Detect calls only; buffered audio is not reclassified.
	UpdateThreshold(threshold float64)

	// Threshold returns the current energy threshold.
	Threshold() float64

	// Reset clears all buffered audio and run state.
	Reset()
}

// Engine is the factory for VAD sessions.
type Engine interface {
	// NewSession creates a session ready to accept chunks. It returns an
	// error if cfg is invalid.
	NewSession(cfg Config) (SessionHandle, error)
}
