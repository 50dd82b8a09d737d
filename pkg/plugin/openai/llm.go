// Package openai implements the llm.LLM contract on any
// OpenAI-compatible chat-completion endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/decoycall/decoycall/pkg/ai"
	"github.com/decoycall/decoycall/pkg/ai/llm"
)

// Config configures the provider.
type Config struct {
	// APIKey authenticates against the endpoint. Required.
	APIKey string
	// BaseURL overrides the API endpoint, e.g. for a proxy or an
	// OpenAI-compatible vendor. Empty means api.openai.com.
	BaseURL string
	// Model is the chat model name. Default "gpt-4o-mini".
	Model string
	// Temperature for generation. Zero means the API default.
	Temperature float32
	// MaxTokens caps the reply length. Zero means no cap.
	MaxTokens int
}

// LLM implements llm.LLM using go-openai.
type LLM struct {
	client *openai.Client
	cfg    Config
}

// New creates the provider.
func New(cfg Config) (*LLM, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &LLM{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

func (o *LLM) request(messages []llm.Message, stream bool) openai.ChatCompletionRequest {
	converted := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		converted[i] = openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}
	return openai.ChatCompletionRequest{
		Model:       o.cfg.Model,
		Messages:    converted,
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
		Stream:      stream,
	}
}

// classify maps API errors onto the shared retry taxonomy.
func classify(err error, msg string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable:
			return ai.Recoverable(err, msg)
		}
		return ai.Fatal(err, msg)
	}
	// Network-level failures are worth retrying.
	return ai.Recoverable(err, msg)
}

// ChatStream generates a reply and yields it sentence by sentence.
func (o *LLM) ChatStream(ctx context.Context, messages []llm.Message) (<-chan string, error) {
	stream, err := o.client.CreateChatCompletionStream(ctx, o.request(messages, true))
	if err != nil {
		return nil, classify(err, fmt.Sprintf("openai: stream request failed: %v", err))
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer stream.Close()

		var assembler llm.SentenceAssembler
		emit := func(s string) bool {
			select {
			case out <- s:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				// Mid-stream failure: whatever assembled so far is
				// still worth speaking.
				break
			}
			if len(resp.Choices) == 0 {
				continue
			}
			for _, sentence := range assembler.Write(resp.Choices[0].Delta.Content) {
				if !emit(sentence) {
					return
				}
			}
		}
		if rest, ok := assembler.Flush(); ok {
			emit(rest)
		}
	}()
	return out, nil
}

// Chat generates the full reply in one request.
func (o *LLM) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.request(messages, false))
	if err != nil {
		return "", classify(err, fmt.Sprintf("openai: chat request failed: %v", err))
	}
	if len(resp.Choices) == 0 {
		return "", ai.Recoverable(nil, "openai: no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
