// Package fake registers the in-memory fake providers with the plugin
// registry so the CLI can run end-to-end without any vendor account.
package fake

import (
	llmfake "github.com/decoycall/decoycall/pkg/ai/llm/fake"
	sttfake "github.com/decoycall/decoycall/pkg/ai/stt/fake"
	ttsfake "github.com/decoycall/decoycall/pkg/ai/tts/fake"
	"github.com/decoycall/decoycall/pkg/plugin"
)

func init() {
	plugin.Register("llm", "fake", func(cfg map[string]any) (any, error) {
		if script, ok := cfg["script"].([]string); ok {
			return llmfake.NewFakeLLM(script...), nil
		}
		return llmfake.NewFakeLLM(), nil
	})

	plugin.Register("stt", "fake", func(cfg map[string]any) (any, error) {
		commitEvery := 50
		if n, ok := cfg["commit_every"].(int); ok && n > 0 {
			commitEvery = n
		}
		if script, ok := cfg["script"].([]string); ok {
			return sttfake.NewFakeSTT(commitEvery, script...), nil
		}
		return sttfake.NewFakeSTT(commitEvery,
			"hello",
			"who is this",
			"sorry, I have to go now",
		), nil
	})

	plugin.Register("tts", "fake", func(cfg map[string]any) (any, error) {
		return ttsfake.NewFakeTTS(), nil
	})
}
