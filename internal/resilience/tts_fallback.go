package resilience

import (
	"context"

	"github.com/MrWong99/vastaa/pkg/provider/tts"
)

// TTSFallback is a [tts.Provider] that fails over between synthesis
// backends.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] preferring primary.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another synthesis backend.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) {
	f.group.AddFallback(name, p)
}

// Names lists the backend names in call order.
func (f *TTSFallback) Names() []string { return f.group.Names() }

// Breaker returns the breaker guarding the named backend, or nil.
func (f *TTSFallback) Breaker(name string) *CircuitBreaker { return f.group.Breaker(name) }

// Synthesize implements tts.Provider.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, sampleRate int) ([]float32, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p tts.Provider) ([]float32, error) {
		return p.Synthesize(ctx, text, sampleRate)
	})
}
