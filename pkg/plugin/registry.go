// Package plugin provides a registry for collaborator providers (STT,
// TTS, LLM) so the CLI can select implementations by name without the
// engine importing vendor packages.
package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a provider instance from configuration. The returned
// value is cast by the caller to stt.STT, tts.TTS, or llm.LLM depending
// on the registered kind.
type Factory func(cfg map[string]any) (any, error)

// Registry maps (kind, name) to provider factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]map[string]Factory
}

var global = &Registry{factories: make(map[string]map[string]Factory)}

// Register adds a factory to the global registry. Called from provider
// packages' init functions. Panics on duplicate registration, which is
// always a programming error.
func Register(kind, name string, factory Factory) {
	global.Register(kind, name, factory)
}

// Get looks up a factory in the global registry.
func Get(kind, name string) (Factory, bool) {
	return global.Get(kind, name)
}

// Names lists registered provider names for a kind, sorted.
func Names(kind string) []string {
	return global.Names(kind)
}

// Register adds a factory to the registry.
func (r *Registry) Register(kind, name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.factories == nil {
		r.factories = make(map[string]map[string]Factory)
	}
	byName := r.factories[kind]
	if byName == nil {
		byName = make(map[string]Factory)
		r.factories[kind] = byName
	}
	if _, exists := byName[name]; exists {
		panic(fmt.Sprintf("plugin: duplicate registration of %s/%s", kind, name))
	}
	byName[name] = factory
}

// Get looks up a factory.
func (r *Registry) Get(kind, name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[kind][name]
	return f, ok
}

// Names lists registered provider names for a kind, sorted.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name := range r.factories[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
