package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/issacpacheco/chat-stream-gemini/pkg/types"
)

// ErrProviderNotFound is returned when no registered provider matches.
var ErrProviderNotFound = errors.New("provider not found")

// Registry manages all available providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	config    *types.Config
}

// NewRegistry creates a new provider registry.
func NewRegistry(config *types.Config) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		config:    config,
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

// Get retrieves a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerID)
	}
	return provider, nil
}

// List returns all available providers ordered by ID.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool {
		return providers[i].ID() < providers[j].ID()
	})
	return providers
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// GetModel looks up modelID in the catalog of providerID.
func (r *Registry) GetModel(providerID, modelID string) (*types.Model, error) {
	p, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}
	if m, ok := findModel(p, modelID); ok {
		return &m, nil
	}
	return nil, fmt.Errorf("model %s/%s not in catalog", providerID, modelID)
}

func findModel(p Provider, modelID string) (types.Model, bool) {
	for _, m := range p.Models() {
		if m.ID == modelID {
			return m, true
		}
	}
	return types.Model{}, false
}

// Resolve returns the provider serving a "provider/model" string. A bare
// model ID is matched against every provider's catalog, and an empty
// string falls back to DefaultModel.
func (r *Registry) Resolve(modelString string) (Provider, string, error) {
	if modelString == "" {
		m, err := r.DefaultModel()
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrProviderNotFound, err)
		}
		modelString = m.ProviderID + "/" + m.ID
	}

	providerID, modelID := ParseModelString(modelString)
	if providerID != "" {
		p, err := r.Get(providerID)
		if err != nil {
			return nil, "", err
		}
		return p, modelID, nil
	}
	for _, p := range r.List() {
		if _, ok := findModel(p, modelID); ok {
			return p, modelID, nil
		}
	}
	return nil, "", fmt.Errorf("%w: no provider serves %q", ErrProviderNotFound, modelString)
}

// AllModels flattens every catalog, best models first.
func (r *Registry) AllModels() []types.Model {
	var models []types.Model
	for _, p := range r.List() {
		models = append(models, p.Models()...)
	}
	sort.SliceStable(models, func(i, j int) bool {
		return modelPriority(models[i].ID) > modelPriority(models[j].ID)
	})
	return models
}

// DefaultModel picks the configured model, then Gemini's default, then the
// highest priority model any provider offers.
func (r *Registry) DefaultModel() (*types.Model, error) {
	if r.config != nil && r.config.Model != "" {
		return r.GetModel(ParseModelString(r.config.Model))
	}
	if m, err := r.GetModel("gemini", DefaultGeminiModel); err == nil {
		return m, nil
	}
	if all := r.AllModels(); len(all) > 0 {
		return &all[0], nil
	}
	return nil, errors.New("no models registered")
}

// ParseModelString parses "provider/model" format.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

// modelPriority returns sorting priority for models.
func modelPriority(modelID string) int {
	switch {
	case strings.Contains(modelID, "gemini-2.5"):
		return 100
	case strings.Contains(modelID, "claude-sonnet-4"):
		return 90
	case strings.Contains(modelID, "gpt-5"):
		return 85
	case strings.Contains(modelID, "gpt-4o"):
		return 80
	case strings.Contains(modelID, "gemini-2"):
		return 75
	case strings.Contains(modelID, "claude"):
		return 70
	default:
		return 50
	}
}

type providerFactory func(ctx context.Context, id string, cfg types.ProviderConfig) (Provider, error)

// builtinProviders are tried in this order. Any other configured entry
// with a base URL is treated as an OpenAI-compatible endpoint.
var builtinProviders = []struct {
	id    string
	build providerFactory
}{
	{"gemini", func(ctx context.Context, _ string, c types.ProviderConfig) (Provider, error) {
		return NewGeminiProvider(ctx, &GeminiConfig{APIKey: c.APIKey, BaseURL: c.BaseURL, Model: c.Model, MaxTokens: c.MaxTokens})
	}},
	{"anthropic", func(ctx context.Context, _ string, c types.ProviderConfig) (Provider, error) {
		return NewAnthropicProvider(ctx, &AnthropicConfig{APIKey: c.APIKey, BaseURL: c.BaseURL, Model: c.Model, MaxTokens: c.MaxTokens})
	}},
	{"openai", openAICompatible},
	{"ark", func(ctx context.Context, _ string, c types.ProviderConfig) (Provider, error) {
		return NewArkProvider(ctx, &ArkConfig{APIKey: c.APIKey, BaseURL: c.BaseURL, Model: c.Model, MaxTokens: c.MaxTokens})
	}},
}

func openAICompatible(ctx context.Context, id string, c types.ProviderConfig) (Provider, error) {
	return NewOpenAIProvider(ctx, &OpenAIConfig{ID: id, APIKey: c.APIKey, BaseURL: c.BaseURL, Model: c.Model, MaxTokens: c.MaxTokens})
}

// InitializeProviders creates and registers every provider that has an API
// key. Providers that fail to initialize are skipped and their errors joined
// into the returned error; the registry is usable either way.
func InitializeProviders(ctx context.Context, config *types.Config) (*Registry, error) {
	registry := NewRegistry(config)
	var errs []error

	add := func(id string, build providerFactory) {
		cfg, ok := config.Provider[id]
		if !ok || cfg.APIKey == "" || cfg.Disable {
			return
		}
		p, err := build(ctx, id, cfg)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			return
		}
		registry.Register(p)
	}

	known := make(map[string]bool, len(builtinProviders))
	for _, b := range builtinProviders {
		known[b.id] = true
		add(b.id, b.build)
	}

	var extra []string
	for id, cfg := range config.Provider {
		if !known[id] && cfg.BaseURL != "" {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		add(id, openAICompatible)
	}

	return registry, errors.Join(errs...)
}
