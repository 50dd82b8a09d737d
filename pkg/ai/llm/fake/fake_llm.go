// Package fake provides an in-memory LLM implementation for tests.
package fake

import (
	"context"
	"sync"

	"github.com/decoycall/decoycall/pkg/ai"
	"github.com/decoycall/decoycall/pkg/ai/llm"
)

// FakeLLM replies with scripted responses, one per turn, cycling on the
// last entry when the script runs out.
type FakeLLM struct {
	// Script holds full reply texts in turn order.
	Script []string
	// Fail makes both paths return a recoverable error.
	Fail bool
	// Block, when set, makes ChatStream hold each sentence until the
	// caller receives it slowly; used to test mid-stream cancellation.
	Block chan struct{}

	mu    sync.Mutex
	turn  int
	calls [][]llm.Message
}

// NewFakeLLM creates a fake with the given scripted replies.
func NewFakeLLM(script ...string) *FakeLLM {
	if len(script) == 0 {
		script = []string{"I see. Could you tell me a little more about that?"}
	}
	return &FakeLLM{Script: script}
}

// Calls returns the message histories of every request.
func (f *FakeLLM) Calls() [][]llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]llm.Message(nil), f.calls...)
}

func (f *FakeLLM) nextReply(messages []llm.Message) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]llm.Message(nil), messages...))
	i := f.turn
	if i >= len(f.Script) {
		i = len(f.Script) - 1
	}
	f.turn++
	return f.Script[i]
}

// ChatStream yields the scripted reply split into sentences.
func (f *FakeLLM) ChatStream(ctx context.Context, messages []llm.Message) (<-chan string, error) {
	if f.Fail {
		return nil, ai.Recoverable(nil, "fake llm: unavailable")
	}
	reply := f.nextReply(messages)

	var a llm.SentenceAssembler
	sentences := a.Write(reply + " ")
	if rest, ok := a.Flush(); ok {
		sentences = append(sentences, rest)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		for _, s := range sentences {
			if f.Block != nil {
				select {
				case <-f.Block:
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Chat returns the scripted reply in full.
func (f *FakeLLM) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	if f.Fail {
		return "", ai.Recoverable(nil, "fake llm: unavailable")
	}
	return f.nextReply(messages), nil
}
