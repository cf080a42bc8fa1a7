package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrMisaligned is returned when a byte payload does not hold a whole number
// of samples.
var ErrMisaligned = errors.New("audio: payload is not sample aligned")

// DecodeFloat32LE decodes little-endian IEEE-754 float32 samples, the format
// browsers produce from a Float32Array.
func DecodeFloat32LE(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMisaligned, len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

// EncodeFloat32LE is the inverse of [DecodeFloat32LE].
func EncodeFloat32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// Float32ToInt16 converts a float sample in [-1, 1] to int16, clamping values
// outside that range.
func Float32ToInt16(s float32) int16 {
	v := float64(s) * 32767
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// Int16ToFloat32 normalises an int16 sample to [-1, 1).
func Int16ToFloat32(s int16) float32 {
	return float32(s) / 32768
}

// Resample converts mono float32 samples from srcRate to dstRate using linear
// interpolation. When downsampling, the input is first low-pass filtered below
// the destination Nyquist frequency so higher content does not alias. If the
// rates match (or either is invalid) the input is returned unchanged, so
// callers can resample unconditionally.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	if ratio > 1 {
		samples = lowPass(samples, 0.5*antiAliasMargin/ratio, int(math.Ceil(ratio*tapsPerRatio))|1)
	}
	last := len(samples) - 1

	for i := range dstLen {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		if srcIdx >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(srcPos - float64(srcIdx))
		out[i] = samples[srcIdx]*(1-frac) + samples[srcIdx+1]*frac
	}
	return out
}

const (
	// antiAliasMargin places the cutoff slightly below the destination
	// Nyquist frequency to leave room for the filter's transition band.
	antiAliasMargin = 0.9
	tapsPerRatio    = 20
)

// lowPass applies a Hann-windowed sinc FIR filter with the given odd number
// of taps. cutoff is in cycles per sample (0.5 is the Nyquist frequency).
// Samples outside the input are treated as silence.
func lowPass(samples []float32, cutoff float64, taps int) []float32 {
	half := taps / 2
	kernel := make([]float64, taps)
	var sum float64
	for i := range kernel {
		n := float64(i - half)
		h := 2 * cutoff
		if n != 0 {
			h = math.Sin(2*math.Pi*cutoff*n) / (math.Pi * n)
		}
		h *= 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(taps-1))
		kernel[i] = h
		sum += h
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	out := make([]float32, len(samples))
	for i := range samples {
		var acc float64
		for k, h := range kernel {
			j := i + k - half
			if j < 0 || j >= len(samples) {
				continue
			}
			acc += h * float64(samples[j])
		}
		out[i] = float32(acc)
	}
	return out
}

// Energy returns the mean squared amplitude of samples.
func Energy(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return sum / float64(len(samples))
}
