package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"

	"github.com/issacpacheco/chat-stream-gemini/pkg/types"
)

var openAICatalog = []types.Model{
	{ID: "gpt-4o", Name: "GPT-4o", ContextLength: 128000, MaxOutputTokens: 16384},
	{ID: "gpt-4o-mini", Name: "GPT-4o Mini", ContextLength: 128000, MaxOutputTokens: 16384},
	{ID: "gpt-5-mini", Name: "GPT-5 Mini", ContextLength: 272000, MaxOutputTokens: 128000},
}

// OpenAIProvider serves OpenAI, or any endpoint speaking its chat
// completions API under a different ID.
type OpenAIProvider struct {
	base
	id string
}

// OpenAIConfig holds configuration for OpenAI provider.
type OpenAIConfig struct {
	// ID names the provider, e.g. "ollama". Defaults to "openai".
	ID        string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// NewOpenAIProvider creates an OpenAI provider. Without an explicit key it
// reads OPENAI_API_KEY.
func NewOpenAIProvider(ctx context.Context, config *OpenAIConfig) (*OpenAIProvider, error) {
	key, err := lookupKey(config.APIKey, "OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}
	id := orDefault(config.ID, "openai")
	modelID := orDefault(config.Model, "gpt-4o")
	maxTokens := orDefault(config.MaxTokens, 4096)

	cfg := &openai.ChatModelConfig{
		APIKey:              key,
		Model:               modelID,
		MaxCompletionTokens: &maxTokens,
		BaseURL:             config.BaseURL,
	}
	cm, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s chat model: %w", id, err)
	}

	catalog := openAICatalog
	if id != "openai" {
		catalog = nil
	}
	return &OpenAIProvider{
		base: base{
			chatModel:       cm,
			models:          withProvider(id, catalogWith(catalog, modelID)),
			maxTokens:       maxTokens,
			maxTokensOption: openai.WithMaxCompletionTokens,
		},
		id: id,
	}, nil
}

// ID returns the provider identifier.
func (p *OpenAIProvider) ID() string { return p.id }

// Name returns the human-readable provider name.
func (p *OpenAIProvider) Name() string {
	if p.id == "openai" {
		return "OpenAI"
	}
	return p.id + " (OpenAI-compatible)"
}
