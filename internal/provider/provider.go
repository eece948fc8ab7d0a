// Package provider defines the completion backend interface and the
// registry that constructs and caches backend adapters.
package provider

import (
	"context"
	"fmt"
	"sync"
)

// Provider adapts one remote completion backend.
type Provider interface {
	// Name returns the provider name as used in route configuration.
	Name() string
	// Complete sends a prompt to the backend and returns the response text.
	Complete(ctx context.Context, prompt string) (string, error)
	// Available is a cheap, side-effect-free check that the backend is
	// configured and reachable enough to try.
	Available() bool
}

// Factory constructs a provider bound to a specific model.
type Factory func(model string) (Provider, error)

// Registry maps provider names to factories and caches constructed
// instances per (provider, model) key. Construction is lazy: an adapter is
// built on first use.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	cache     map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		cache:     make(map[string]Provider),
	}
}

// Register adds a factory under a provider name. Registering again replaces
// the factory and drops cached instances for that provider.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	for k := range r.cache {
		if providerOf(k) == name {
			delete(r.cache, k)
		}
	}
}

// Get returns the adapter for (name, model), constructing it on first use.
func (r *Registry) Get(name, model string) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := name + ":" + model
	if p, ok := r.cache[k]; ok {
		return p, nil
	}

	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}

	p, err := f(model)
	if err != nil {
		return nil, fmt.Errorf("create provider %s: %w", name, err)
	}
	r.cache[k] = p
	return p, nil
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

func providerOf(cacheKey string) string {
	for i := 0; i < len(cacheKey); i++ {
		if cacheKey[i] == ':' {
			return cacheKey[:i]
		}
	}
	return cacheKey
}

// ClaudeSettings configures the Claude API provider factory.
type ClaudeSettings struct {
	// APIKey is the Anthropic API key. If empty, ANTHROPIC_API_KEY is used.
	APIKey string
	// UseAWSBedrock routes calls through AWS Bedrock instead of the API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock.
	AWSRegion string
	// AWSProfile is the optional AWS profile name.
	AWSProfile string
}

// DefaultRegistry returns a registry with every built-in backend registered:
// the Claude API, the OpenAI-compatible HTTP backends, and the local CLI
// backends. Adding a backend means registering one more factory here.
func DefaultRegistry(claude ClaudeSettings) *Registry {
	r := NewRegistry()

	r.Register("claude", func(model string) (Provider, error) {
		return NewClaude(model, claude)
	})

	for name, cfg := range openAIBackends {
		cfg := cfg
		name := name
		r.Register(name, func(model string) (Provider, error) {
			return NewOpenAICompatible(name, model, cfg), nil
		})
	}

	r.Register("claude_code", func(model string) (Provider, error) {
		return NewCLI("claude_code", "claude", []string{"--model", model}), nil
	})
	r.Register("codex_cli", func(model string) (Provider, error) {
		return NewCLI("codex_cli", "codex", []string{"chat", "--model", model, "--stdin"}), nil
	})

	return r
}
