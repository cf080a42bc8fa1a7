package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/vastaa/pkg/provider/stt"
)

// STTFallback is an [stt.Provider] that fails over between transcription
// backends. [stt.ErrNoSpeech] is treated as an answer, not a backend fault.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] preferring primary.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	if cfg.Permanent == nil {
		cfg.Permanent = func(err error) bool { return errors.Is(err, stt.ErrNoSpeech) }
	}
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another transcription backend.
func (f *STTFallback) AddFallback(name string, p stt.Provider) {
	f.group.AddFallback(name, p)
}

// Names lists the backend names in call order.
func (f *STTFallback) Names() []string { return f.group.Names() }

// Breaker returns the breaker guarding the named backend, or nil.
func (f *STTFallback) Breaker(name string) *CircuitBreaker { return f.group.Breaker(name) }

// Transcribe implements stt.Provider.
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p stt.Provider) (string, error) {
		return p.Transcribe(ctx, req)
	})
}
