// Package fake provides an in-memory STT implementation for tests.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/decoycall/decoycall/pkg/ai/stt"
)

// FakeSTT commits a scripted transcript every CommitEvery pushed chunks.
// With no script it stays silent until Emit is called directly.
type FakeSTT struct {
	// Script is the sequence of transcripts to commit, in order.
	Script []string
	// CommitEvery commits the next scripted transcript after this many
	// pushed chunks. Zero disables automatic commits.
	CommitEvery int

	mu      sync.Mutex
	streams []*FakeStream
}

// NewFakeSTT creates a fake STT that commits each scripted line after
// every commitEvery chunks.
func NewFakeSTT(commitEvery int, script ...string) *FakeSTT {
	return &FakeSTT{Script: script, CommitEvery: commitEvery}
}

// NewStream opens a fake recognition session.
func (f *FakeSTT) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	s := &FakeStream{
		parent:      f,
		ctx:         ctx,
		commitEvery: f.CommitEvery,
		script:      append([]string(nil), f.Script...),
		out:         make(chan stt.Transcript, 16),
	}
	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()
	return s, nil
}

// LastStream returns the most recently opened stream, or nil.
func (f *FakeSTT) LastStream() *FakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}

// FakeStream is one fake recognition session.
type FakeStream struct {
	parent      *FakeSTT
	ctx         context.Context
	commitEvery int
	script      []string
	out         chan stt.Transcript

	mu     sync.Mutex
	pushed int
	next   int
	closed bool
	chunks int
	nBytes int
}

// Push counts the chunk and commits the next scripted transcript when due.
func (s *FakeStream) Push(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("fake stt: push after CloseSend")
	}
	s.chunks++
	s.nBytes += len(chunk)
	s.pushed++
	if s.commitEvery > 0 && s.pushed%s.commitEvery == 0 && s.next < len(s.script) {
		s.emitLocked(s.script[s.next])
		s.next++
	}
	return nil
}

// Emit commits an arbitrary transcript immediately, bypassing the script.
func (s *FakeStream) Emit(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.emitLocked(text)
}

func (s *FakeStream) emitLocked(text string) {
	select {
	case s.out <- stt.Transcript{Text: text, Language: "en"}:
	case <-s.ctx.Done():
	}
}

// Transcripts returns the commit channel.
func (s *FakeStream) Transcripts() <-chan stt.Transcript {
	return s.out
}

// CloseSend ends the session and closes the transcript channel.
func (s *FakeStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.out)
	return nil
}

// PushedChunks reports how many chunks were pushed. Test helper.
func (s *FakeStream) PushedChunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

// PushedBytes reports the total pushed payload size. Test helper.
func (s *FakeStream) PushedBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nBytes
}
