// Package mock provides a test double for the agent.Agent interface.
//
// Agent records every call and returns StatusValue from Status. It is used
// by session registry and transport tests that need an agent without any
// providers behind it.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vastaa/internal/agent"
	"github.com/MrWong99/vastaa/pkg/types"
)

// Agent is a mock implementation of agent.Agent.
type Agent struct {
	mu sync.Mutex

	// StatusValue is returned (copied) by Status.
	StatusValue agent.Status

	// CloseErr is returned by Close.
	CloseErr error

	// OnInput, if set, is called for every ProcessInput after recording.
	OnInput func(chunk []float32)

	chunks     [][]float32
	thresholds []float64
	closeCalls int
}

var _ agent.Agent = (*Agent)(nil)

// ProcessInput records a copy of chunk.
func (a *Agent) ProcessInput(_ context.Context, chunk []float32) {
	a.mu.Lock()
	a.chunks = append(a.chunks, append([]float32(nil), chunk...))
	fn := a.OnInput
	a.mu.Unlock()
	if fn != nil {
		fn(chunk)
	}
}

// UpdateVADThreshold records the threshold.
func (a *Agent) UpdateVADThreshold(threshold float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.thresholds = append(a.thresholds, threshold)
}

// Status returns a copy of StatusValue.
func (a *Agent) Status() agent.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.StatusValue
	st.ChatHistory = append([]types.Message{}, st.ChatHistory...)
	return st
}

// SetStatus replaces StatusValue. Thread-safe.
func (a *Agent) SetStatus(st agent.Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.StatusValue = st
}

// Close records the call and returns CloseErr.
func (a *Agent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closeCalls++
	return a.CloseErr
}

// Chunks returns copies of all chunks passed to ProcessInput.
func (a *Agent) Chunks() [][]float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][]float32(nil), a.chunks...)
}

// Thresholds returns every value passed to UpdateVADThreshold.
func (a *Agent) Thresholds() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]float64(nil), a.thresholds...)
}

// CloseCalls returns how often Close was called.
func (a *Agent) CloseCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closeCalls
}
