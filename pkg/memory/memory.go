// Package memory holds the per-call conversation log used as the LLM's
// context. The log is append-only during the call; trimming only ever
// drops the oldest non-system messages and always keeps the system
// prompt plus a minimum recent tail.
package memory

import (
	"sync"

	"github.com/decoycall/decoycall/pkg/ai/llm"
)

// Defaults for the trimming policy.
const (
	// DefaultTokenBudget caps the estimated context size.
	DefaultTokenBudget = 6000
	// charsPerToken is the estimation heuristic. Four characters per
	// token with the safety margin folded in by rounding up.
	charsPerToken = 4
	// MinRetainedTail is never trimmed away, budget or not: the last
	// two exchanges keep the model coherent even when hopelessly over
	// budget.
	MinRetainedTail = 4
)

// Conversation is one call's message log.
type Conversation struct {
	mu          sync.Mutex
	messages    []llm.Message
	tokenBudget int
}

// New creates a conversation seeded with the system prompt.
func New(systemPrompt string, tokenBudget int) *Conversation {
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}
	return &Conversation{
		messages:    []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}},
		tokenBudget: tokenBudget,
	}
}

// estimateTokens approximates the token cost of one message, rounding
// up so the estimate errs high.
func estimateTokens(m llm.Message) int {
	return (len(m.Content) + charsPerToken - 1) / charsPerToken
}

// Append adds a message and trims to budget.
func (c *Conversation) Append(role llm.Role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, llm.Message{Role: role, Content: content})
	c.trimLocked()
}

// Messages returns a copy of the current context.
func (c *Conversation) Messages() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Message(nil), c.messages...)
}

// Len reports the current message count including the system prompt.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *Conversation) trimLocked() {
	total := 0
	for _, m := range c.messages {
		total += estimateTokens(m)
	}

	// Index 0 is the system prompt and is never dropped.
	for total > c.tokenBudget && len(c.messages)-1 > MinRetainedTail {
		dropped := c.messages[1]
		c.messages = append(c.messages[:1], c.messages[2:]...)
		total -= estimateTokens(dropped)
	}
}
