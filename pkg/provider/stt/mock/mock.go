// Package mock provides a test double for the stt.Provider interface.
//
// Provider records every Transcribe call and returns scripted text. Set Block
// to hold calls until the channel is closed or the context ends, which lets
// tests observe a turn that is still in flight.
//
// Example:
//
//	p := &mock.Provider{Text: "hei"}
//	text, _ := p.Transcribe(ctx, stt.Request{Audio: seg, SampleRate: 8000})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vastaa/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Req is a copy of the request, including a copy of the audio.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned by every successful Transcribe call.
	Text string

	// Err, if non-nil, is returned from Transcribe.
	Err error

	// Block, if non-nil, makes Transcribe wait until it is closed or ctx is
	// done. The call is recorded before blocking.
	Block chan struct{}

	// Calls records every call to Transcribe in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns Text, Err.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	p.mu.Lock()
	cp := req
	cp.Audio = append([]float32(nil), req.Audio...)
	p.Calls = append(p.Calls, TranscribeCall{Req: cp})
	block, text, err := p.Block, p.Text, p.Err
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return text, err
}

// CallCount returns the number of Transcribe calls. Thread-safe.
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

var _ stt.Provider = (*Provider)(nil)
