// Package stt defines the speech-to-text collaborator contract.
//
// The provider consumes raw µ-law audio chunks pushed from the media
// gateway and yields committed utterance strings whenever its own voice
// activity detection decides the caller has paused. The stream is lazy,
// unbounded, and not restartable: once CloseSend is called no further
// audio is accepted and the transcript channel closes after the final
// commit drains.
package stt

import (
	"context"

	"github.com/decoycall/decoycall/pkg/ai"
)

// Contract-level error variables, re-exported for call sites that only
// import this package.
var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// StreamConfig configures one recognition session.
type StreamConfig struct {
	// SampleRate of the pushed audio in Hz. Telephony audio is 8000.
	SampleRate int
	// Language is an ISO-639-1 hint. Empty means auto-detect.
	Language string
}

// Transcript is one committed recognition result.
type Transcript struct {
	// Text is the committed utterance fragment.
	Text string
	// Language is the detected language code, if the provider reports one.
	Language string
	// Err is set instead of Text when the session failed mid-stream.
	// The channel closes after an error transcript.
	Err error
}

// STT creates recognition streams.
type STT interface {
	// NewStream opens a streaming recognition session. The stream is
	// torn down when ctx is cancelled or CloseSend is called.
	NewStream(ctx context.Context, cfg StreamConfig) (Stream, error)
}

// Stream is one active recognition session.
type Stream interface {
	// Push sends a chunk of raw µ-law audio for recognition.
	Push(chunk []byte) error

	// Transcripts returns the channel of committed results. It closes
	// when the session ends.
	Transcripts() <-chan Transcript

	// CloseSend signals that no more audio will arrive and flushes any
	// pending recognition.
	CloseSend() error
}
