// Package framebuf provides the per-session output buffer that turns one
// synthesized reply into a sequence of fixed-size playback frames.
//
// A [Buffer] holds at most one reply. [Buffer.Inject] replaces whatever is
// queued (last writer wins) and [Buffer.PullFrame] hands out frames in order
// until the reply is exhausted, after which it reports that no frame is
// available. Both operations share a single mutex so a pull never observes a
// half-replaced payload.
package framebuf

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/vastaa/pkg/audio"
)

// ErrInvalidLength is returned by [Buffer.Inject] when the payload cannot be
// queued: it is empty, or longer than the configured maximum once padded.
var ErrInvalidLength = errors.New("framebuf: invalid audio length")

// Default buffer parameters.
const (
	DefaultSampleRate    = 8000
	DefaultFrameDuration = 100 * time.Millisecond
	DefaultMaxDuration   = 120 * time.Second
)

// Option configures a [Buffer].
type Option func(*Buffer)

// WithFrameDuration sets the playback length of one frame. Non-positive
// values are ignored.
func WithFrameDuration(d time.Duration) Option {
	return func(b *Buffer) {
		if d > 0 {
			b.frameDuration = d
		}
	}
}

// WithMaxDuration caps how much audio a single Inject may queue. Zero removes
// the cap.
func WithMaxDuration(d time.Duration) Option {
	return func(b *Buffer) {
		if d >= 0 {
			b.maxDuration = d
		}
	}
}

// Buffer is a mutex-guarded single-reply playback queue. The zero value is not
// usable; create one with [New].
type Buffer struct {
	sampleRate    int
	frameDuration time.Duration
	maxDuration   time.Duration
	frameSize     int
	maxSamples    int

	mu     sync.Mutex
	queued []float32
	cursor int // index of the next frame to hand out
}

// New returns a Buffer for audio at sampleRate. A non-positive sampleRate
// selects [DefaultSampleRate].
func New(sampleRate int, opts ...Option) *Buffer {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	b := &Buffer{
		sampleRate:    sampleRate,
		frameDuration: DefaultFrameDuration,
		maxDuration:   DefaultMaxDuration,
	}
	for _, o := range opts {
		o(b)
	}
	b.frameSize = audio.FrameSize(b.sampleRate, b.frameDuration)
	if b.maxDuration > 0 {
		b.maxSamples = audio.Samples(b.maxDuration, b.sampleRate)
	}
	return b
}

// SampleRate returns the rate the buffer was created for.
func (b *Buffer) SampleRate() int { return b.sampleRate }

// FrameSize returns the number of samples in every frame returned by
// [Buffer.PullFrame].
func (b *Buffer) FrameSize() int { return b.frameSize }

// FrameDuration returns the playback length of one frame.
func (b *Buffer) FrameDuration() time.Duration { return b.frameDuration }

// Inject queues samples for playback, replacing anything still queued and
// rewinding the cursor. Trailing material is zero-padded to a whole number of
// frames. samples is copied; the caller may reuse it afterwards.
func (b *Buffer) Inject(samples []float32) error {
	if len(samples) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidLength)
	}
	padded := make([]float32, paddedLen(len(samples), b.frameSize))
	copy(padded, samples)
	if b.maxSamples > 0 && len(padded) > b.maxSamples {
		return fmt.Errorf("%w: %d samples exceeds maximum of %d", ErrInvalidLength, len(padded), b.maxSamples)
	}

	b.mu.Lock()
	b.queued = padded
	b.cursor = 0
	b.mu.Unlock()
	return nil
}

// PullFrame returns the next frame of queued audio and advances the cursor.
// When the queued audio is exhausted (or nothing was injected) it clears the
// queue and returns ok == false; the caller should treat that as silence.
func (b *Buffer) PullFrame() (frame []float32, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := b.cursor * b.frameSize
	if b.queued == nil || start >= len(b.queued) {
		b.queued = nil
		b.cursor = 0
		return nil, false
	}
	frame = make([]float32, b.frameSize)
	copy(frame, b.queued[start:start+b.frameSize])
	b.cursor++
	return frame, true
}

// Pending reports how many frames remain queued.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.queued == nil {
		return 0
	}
	return len(b.queued)/b.frameSize - b.cursor
}

// Clear drops any queued audio.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.queued = nil
	b.cursor = 0
	b.mu.Unlock()
}

func paddedLen(n, frameSize int) int {
	if rem := n % frameSize; rem != 0 {
		return n + frameSize - rem
	}
	return n
}
