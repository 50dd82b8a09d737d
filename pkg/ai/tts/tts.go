// Package tts defines the text-to-speech collaborator contract.
//
// SynthesizeStream is the primary path: audio chunks arrive as the
// provider renders them so the first bytes reach the caller before the
// sentence finishes synthesizing. Synthesize is the non-streaming
// fallback the orchestrator retries through when the stream fails
// mid-sentence.
package tts

import (
	"context"

	"github.com/decoycall/decoycall/pkg/ai"
)

var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// Request is one synthesis request. Output is always raw µ-law 8 kHz,
// the telephony-native format, so no transcoding happens in the engine.
type Request struct {
	// Text to speak. Already sanitized by the caller.
	Text string
	// Voice overrides the provider's default voice identity.
	Voice string
}

// TTS synthesizes speech.
type TTS interface {
	// SynthesizeStream renders text to a lazy sequence of µ-law chunks.
	// The channel closes when synthesis completes; a mid-stream provider
	// failure closes the channel early and is reported by the provider
	// on the next call.
	SynthesizeStream(ctx context.Context, req Request) (<-chan []byte, error)

	// Synthesize renders text to a single µ-law buffer. Used as the
	// one-shot retry path when streaming fails.
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}
