// Package fake provides an in-memory TTS implementation for tests.
package fake

import (
	"context"
	"sync"

	"github.com/decoycall/decoycall/pkg/ai"
	"github.com/decoycall/decoycall/pkg/ai/tts"
)

// FakeTTS renders deterministic audio: BytesPerChar µ-law bytes per input
// character, split into ChunkSize chunks on the streaming path.
type FakeTTS struct {
	// BytesPerChar controls the synthetic audio length. Default 8.
	BytesPerChar int
	// ChunkSize is the streaming chunk length in bytes. Default 160.
	ChunkSize int
	// FailStreaming makes SynthesizeStream return a recoverable error.
	FailStreaming bool
	// FailFallback makes Synthesize return a recoverable error too.
	FailFallback bool

	mu       sync.Mutex
	requests []tts.Request
}

// NewFakeTTS returns a fake with one media frame per chunk.
func NewFakeTTS() *FakeTTS {
	return &FakeTTS{BytesPerChar: 8, ChunkSize: 160}
}

func (f *FakeTTS) record(req tts.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
}

// Requests returns every synthesis request seen so far.
func (f *FakeTTS) Requests() []tts.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tts.Request(nil), f.requests...)
}

func (f *FakeTTS) render(text string) []byte {
	bpc := f.BytesPerChar
	if bpc <= 0 {
		bpc = 8
	}
	buf := make([]byte, len(text)*bpc)
	for i := range buf {
		buf[i] = 0xFF // µ-law silence
	}
	return buf
}

// SynthesizeStream renders the text into fixed-size chunks.
func (f *FakeTTS) SynthesizeStream(ctx context.Context, req tts.Request) (<-chan []byte, error) {
	f.record(req)
	if f.FailStreaming {
		return nil, ai.Recoverable(nil, "fake tts: streaming unavailable")
	}

	audio := f.render(req.Text)
	size := f.ChunkSize
	if size <= 0 {
		size = 160
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		for len(audio) > 0 {
			n := size
			if n > len(audio) {
				n = len(audio)
			}
			select {
			case out <- audio[:n]:
				audio = audio[n:]
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Synthesize renders the text into one buffer.
func (f *FakeTTS) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	f.record(req)
	if f.FailFallback {
		return nil, ai.Recoverable(nil, "fake tts: fallback unavailable")
	}
	return f.render(req.Text), nil
}
