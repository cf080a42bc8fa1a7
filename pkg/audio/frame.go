// Package audio holds the sample-level helpers shared by the pipeline:
// frame arithmetic, float32 wire codecs, resampling and WAV encoding.
//
// All audio in vastaa is mono float32 in the range [-1, 1]. Buffers are
// measured in samples, never bytes.
package audio

import (
	"math"
	"time"
)

// Session sample rates accepted by the transport.
const (
	MinSampleRate = 8000
	MaxSampleRate = 48000
)

// FrameSize returns the number of samples in one frame:
// round(sampleRate * frameDuration). It never returns less than 1 for a
// positive rate and duration.
func FrameSize(sampleRate int, frameDuration time.Duration) int {
	if sampleRate <= 0 || frameDuration <= 0 {
		return 0
	}
	n := int(math.Round(float64(sampleRate) * frameDuration.Seconds()))
	return max(n, 1)
}

// PadToFrame returns samples zero-padded with trailing silence up to the next
// whole multiple of frameSize. If samples is already aligned it is returned
// as-is; otherwise a new slice is allocated and samples is left untouched.
func PadToFrame(samples []float32, frameSize int) []float32 {
	if frameSize <= 0 {
		return samples
	}
	rem := len(samples) % frameSize
	if rem == 0 {
		return samples
	}
	out := make([]float32, len(samples)+frameSize-rem)
	copy(out, samples)
	return out
}

// Duration returns the playback length of n samples at sampleRate.
func Duration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(sampleRate))
}

// Samples returns the number of samples covering d at sampleRate.
func Samples(d time.Duration, sampleRate int) int {
	return int(math.Round(d.Seconds() * float64(sampleRate)))
}
