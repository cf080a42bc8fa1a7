// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to script detection results and inspect the chunks that were
// submitted.
//
// Example:
//
//	sess := &mock.Session{Results: []vad.Result{{}, {Detected: true, Segment: seg}}}
//	eng := &mock.Engine{Session: sess}
//	handle, _ := eng.NewSession(cfg)
package mock

import (
	"sync"

	"github.com/MrWong99/vastaa/pkg/provider/vad"
)

// NewSessionCall records a single invocation of Engine.NewSession.
type NewSessionCall struct {
	// Cfg is the Config passed to NewSession.
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil, NewSession
	// returns a new default Session.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records every call to NewSession in order.
	NewSessionCalls []NewSessionCall
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Calls returns a copy of the recorded NewSession calls. Thread-safe.
func (e *Engine) Calls() []NewSessionCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]NewSessionCall, len(e.NewSessionCalls))
	copy(out, e.NewSessionCalls)
	return out
}

var _ vad.Engine = (*Engine)(nil)

// Session is a mock implementation of vad.SessionHandle. All methods are
// safe for concurrent use.
type Session struct {
	mu sync.Mutex

	// Results is consumed in order, one entry per Detect call. Once it is
	// exhausted Detect returns the zero Result.
	Results []vad.Result

	// DetectFunc, if set, takes precedence over Results.
	DetectFunc func(chunk []float32) vad.Result

	// Chunks records a copy of every chunk passed to Detect.
	Chunks [][]float32

	// Thresholds records every UpdateThreshold argument in order.
	Thresholds []float64

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	threshold float64
}

// Detect records chunk and returns the next scripted result.
func (s *Session) Detect(chunk []float32) vad.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]float32, len(chunk))
	copy(cp, chunk)
	s.Chunks = append(s.Chunks, cp)
	if s.DetectFunc != nil {
		return s.DetectFunc(chunk)
	}
	if len(s.Results) == 0 {
		return vad.Result{}
	}
	r := s.Results[0]
	s.Results = s.Results[1:]
	return r
}

// UpdateThreshold records the call.
func (s *Session) UpdateThreshold(threshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Thresholds = append(s.Thresholds, threshold)
	s.threshold = threshold
}

// Threshold returns the last value passed to UpdateThreshold.
func (s *Session) Threshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threshold
}

// Reset records the call.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// ChunkCount returns the number of Detect calls. Thread-safe.
func (s *Session) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Chunks)
}

// ThresholdCalls returns a copy of the recorded thresholds. Thread-safe.
func (s *Session) ThresholdCalls() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.Thresholds))
	copy(out, s.Thresholds)
	return out
}

var _ vad.SessionHandle = (*Session)(nil)
