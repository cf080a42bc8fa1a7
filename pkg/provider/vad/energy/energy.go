// Package energy implements a [vad.Engine] that segments speech by comparing
// the mean squared amplitude of a trailing window against a threshold.
//
// The detector is online and causal. Each chunk is appended to a bounded
// rolling buffer; once a full energy window is buffered, a chunk arriving
// while the window is loud extends the current speech run, and the first
// quiet window after a run ends it. A run at least MinSpeech long is emitted
// together with half a window of preceding context; a shorter run is dropped.
// Either way the session starts over with an empty buffer.
package energy

import (
	"fmt"

	"github.com/MrWong99/vastaa/pkg/audio"
	"github.com/MrWong99/vastaa/pkg/provider/vad"
)

// Engine creates energy VAD sessions. The zero value is ready to use.
type Engine struct{}

var _ vad.Engine = Engine{}

// NewSession validates cfg and returns a fresh session.
func (Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	return New(cfg)
}

// Session is one energy VAD stream. Not safe for concurrent use.
type Session struct {
	threshold float64
	window    int
	minSpeech int
	maxBuffer int

	buf      []float32
	runLen   int
	inSpeech bool
}

var _ vad.SessionHandle = (*Session)(nil)

// New returns a Session for cfg.
func New(cfg vad.Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("energy: %w", err)
	}
	return &Session{
		threshold: cfg.Threshold,
		window:    max(audio.Samples(cfg.EnergyWindow, cfg.SampleRate), 1),
		minSpeech: audio.Samples(cfg.MinSpeech, cfg.SampleRate),
		maxBuffer: audio.Samples(cfg.MaxBuffer, cfg.SampleRate),
	}, nil
}

// Detect implements [vad.SessionHandle].
func (s *Session) Detect(chunk []float32) vad.Result {
	s.buf = append(s.buf, chunk...)
	if over := len(s.buf) - s.maxBuffer; over > 0 {
		s.buf = s.buf[over:]
	}

	if len(s.buf) < s.window {
		return vad.Result{}
	}

	if audio.Energy(s.buf[len(s.buf)-s.window:]) > s.threshold {
		s.runLen += len(chunk)
		s.inSpeech = true
		return vad.Result{}
	}

	if !s.inSpeech {
		return vad.Result{}
	}

	if s.runLen < s.minSpeech {
		s.Reset()
		return vad.Result{}
	}

	start := max(0, len(s.buf)-s.runLen-s.window/2)
	segment := make([]float32, len(s.buf)-start)
	copy(segment, s.buf[start:])
	s.Reset()
	return vad.Result{Detected: true, Segment: segment}
}

// UpdateThreshold implements [vad.SessionHandle].
func (s *Session) UpdateThreshold(threshold float64) {
	s.threshold = threshold
}

// Threshold implements [vad.SessionHandle].
func (s *Session) Threshold() float64 { return s.threshold }

// Reset implements [vad.SessionHandle].
func (s *Session) Reset() {
	s.buf = nil
	s.runLen = 0
	s.inSpeech = false
}

// InSpeech reports whether a speech run is in progress.
func (s *Session) InSpeech() bool { return s.inSpeech }

// RunLength returns the number of samples in the current speech run.
func (s *Session) RunLength() int { return s.runLen }

// Buffered returns the number of samples held in the rolling buffer.
func (s *Session) Buffered() int { return len(s.buf) }
