// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio to the agent and to verify which
// texts and sample rates were requested.
//
// Example:
//
//	p := &mock.Provider{Audio: make([]float32, 800)}
//	samples, _ := p.Synthesize(ctx, "Moi!", 8000)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vastaa/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Text       string
	SampleRate int
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Audio is copied and returned by every successful Synthesize call.
	Audio []float32

	// Err, if non-nil, is returned from Synthesize.
	Err error

	// Block, if non-nil, makes Synthesize wait until it is closed or ctx is
	// done.
	Block chan struct{}

	// Calls records every call to Synthesize in order.
	Calls []SynthesizeCall
}

// Synthesize records the call and returns a copy of Audio, Err.
func (p *Provider) Synthesize(ctx context.Context, text string, sampleRate int) ([]float32, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, SynthesizeCall{Text: text, SampleRate: sampleRate})
	block, err := p.Block, p.Err
	out := append([]float32(nil), p.Audio...)
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

var _ tts.Provider = (*Provider)(nil)
