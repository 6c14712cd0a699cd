package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/ark"

	"github.com/issacpacheco/chat-stream-gemini/pkg/types"
)

// ArkProvider serves a Volcengine ARK endpoint.
type ArkProvider struct {
	base
}

// ArkConfig holds configuration for ARK provider.
type ArkConfig struct {
	APIKey  string
	BaseURL string
	// Model is the ARK endpoint ID.
	Model     string
	MaxTokens int
}

// NewArkProvider creates an ARK provider. Missing values are read from
// ARK_API_KEY, ARK_MODEL_ID and ARK_BASE_URL.
func NewArkProvider(ctx context.Context, config *ArkConfig) (*ArkProvider, error) {
	key, err := lookupKey(config.APIKey, "ARK_API_KEY")
	if err != nil {
		return nil, err
	}
	endpoint := orDefault(config.Model, os.Getenv("ARK_MODEL_ID"))
	if endpoint == "" {
		return nil, fmt.Errorf("ARK_MODEL_ID not set")
	}
	maxTokens := orDefault(config.MaxTokens, 4096)

	cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey:    key,
		BaseURL:   orDefault(config.BaseURL, os.Getenv("ARK_BASE_URL")),
		Model:     endpoint,
		MaxTokens: &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("ark chat model: %w", err)
	}

	return &ArkProvider{base{
		chatModel: cm,
		models: []types.Model{
			{ID: endpoint, Name: "ARK " + endpoint, ProviderID: "ark", ContextLength: 128000, MaxOutputTokens: maxTokens},
		},
		maxTokens: maxTokens,
	}}, nil
}

// ID returns the provider identifier.
func (p *ArkProvider) ID() string { return "ark" }

// Name returns the human-readable provider name.
func (p *ArkProvider) Name() string { return "ARK" }
