// Package ulaw implements G.711 µ-law expansion and frame energy
// computation for 8 kHz telephony audio. Twilio Media Streams deliver
// audio/x-mulaw, one byte per sample, so every helper here works on raw
// payload bytes rather than PCM frames.
package ulaw

import (
	"math"
	"time"
)

// SampleRate is the fixed telephony sample rate (samples per second).
// µ-law carries one byte per sample, so this is also bytes per second.
const SampleRate = 8000

const bias = 0x84 // 132, the standard µ-law encoding bias

// DecodeSample expands one µ-law byte to a linear 16-bit sample using the
// standard sign/exponent/mantissa expansion.
func DecodeSample(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F

	sample := (int16(mantissa)<<3 + bias) << exponent
	sample -= bias

	if sign != 0 {
		return -sample
	}
	return sample
}

// Decode expands a µ-law payload to linear samples.
func Decode(data []byte) []int16 {
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = DecodeSample(b)
	}
	return out
}

// RMS returns the root-mean-square energy of a µ-law frame in linear
// sample units. An empty frame has zero energy.
func RMS(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, b := range data {
		s := float64(DecodeSample(b))
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(data)))
}

// Duration returns the playback time of n payload bytes at the telephony
// sample rate. Used to estimate how long queued audio will take to play.
func Duration(n int) time.Duration {
	return time.Duration(n) * time.Second / SampleRate
}
