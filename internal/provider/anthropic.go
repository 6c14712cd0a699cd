package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"

	"github.com/issacpacheco/chat-stream-gemini/pkg/types"
)

const defaultClaudeModel = "claude-sonnet-4-20250514"

var claudeCatalog = []types.Model{
	{ID: defaultClaudeModel, Name: "Claude Sonnet 4", ContextLength: 200000, MaxOutputTokens: 64000},
	{ID: "claude-haiku-4-5", Name: "Claude 4.5 Haiku", ContextLength: 200000, MaxOutputTokens: 8192},
	{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", ContextLength: 200000, MaxOutputTokens: 8192},
}

// AnthropicProvider serves Anthropic Claude models.
type AnthropicProvider struct {
	base
}

// AnthropicConfig holds configuration for Anthropic provider.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// NewAnthropicProvider creates an Anthropic provider. Without an explicit
// key it reads ANTHROPIC_API_KEY. Claude requires max tokens, so it
// defaults to 8192.
func NewAnthropicProvider(ctx context.Context, config *AnthropicConfig) (*AnthropicProvider, error) {
	key, err := lookupKey(config.APIKey, "ANTHROPIC_API_KEY")
	if err != nil {
		return nil, err
	}
	modelID := orDefault(config.Model, defaultClaudeModel)
	maxTokens := orDefault(config.MaxTokens, 8192)

	cfg := &claude.Config{APIKey: key, Model: modelID, MaxTokens: maxTokens}
	if config.BaseURL != "" {
		cfg.BaseURL = &config.BaseURL
	}
	cm, err := claude.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("claude chat model: %w", err)
	}

	return &AnthropicProvider{base{
		chatModel: cm,
		models:    withProvider("anthropic", catalogWith(claudeCatalog, modelID)),
		maxTokens: maxTokens,
	}}, nil
}

// ID returns the provider identifier.
func (p *AnthropicProvider) ID() string { return "anthropic" }

// Name returns the human-readable provider name.
func (p *AnthropicProvider) Name() string { return "Anthropic" }
