// Package llm defines the language-model collaborator contract.
//
// ChatStream yields sentence-segmented fragments so the orchestrator can
// start synthesizing speech for the first sentence while the rest of the
// reply is still generating. Chat is the non-streaming fallback.
package llm

import (
	"context"

	"github.com/decoycall/decoycall/pkg/ai"
)

var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation context.
type Message struct {
	Role    Role
	Content string
}

// LLM generates agent replies from conversation history.
type LLM interface {
	// ChatStream generates a reply as a lazy sequence of complete
	// sentences. The channel closes when generation finishes or ctx is
	// cancelled.
	ChatStream(ctx context.Context, messages []Message) (<-chan string, error)

	// Chat generates the full reply in one call.
	Chat(ctx context.Context, messages []Message) (string, error)
}
