package openai

import (
	"errors"
	"os"

	"github.com/decoycall/decoycall/pkg/plugin"
)

// newFromConfig is the registry factory for the OpenAI LLM provider.
func newFromConfig(cfg map[string]any) (any, error) {
	config := Config{}

	if key, ok := cfg["api_key"].(string); ok && key != "" {
		config.APIKey = key
	} else {
		config.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required (set OPENAI_API_KEY or provide api_key)")
	}

	if baseURL, ok := cfg["base_url"].(string); ok {
		config.BaseURL = baseURL
	}
	if model, ok := cfg["model"].(string); ok {
		config.Model = model
	}
	if maxTokens, ok := cfg["max_tokens"].(int); ok {
		config.MaxTokens = maxTokens
	}

	return New(config)
}

func init() {
	plugin.Register("llm", "openai", newFromConfig)
}
