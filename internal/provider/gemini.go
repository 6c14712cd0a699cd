package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"

	"github.com/issacpacheco/chat-stream-gemini/pkg/types"
)

// GeminiBaseURL is Google's OpenAI-compatible Gemini endpoint.
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// DefaultGeminiModel is the model conversations use unless configured otherwise.
const DefaultGeminiModel = "gemini-2.5-flash"

var geminiCatalog = []types.Model{
	{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", ContextLength: 1048576, MaxOutputTokens: 65536},
	{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", ContextLength: 1048576, MaxOutputTokens: 65536},
	{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", ContextLength: 1048576, MaxOutputTokens: 8192},
}

// GeminiProvider talks to Google Gemini through its OpenAI-compatible API.
type GeminiProvider struct {
	base
}

// GeminiConfig holds configuration for the Gemini provider.
type GeminiConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// NewGeminiProvider creates a Gemini provider. Without an explicit key it
// reads GEMINI_API_KEY, then GOOGLE_API_KEY.
func NewGeminiProvider(ctx context.Context, config *GeminiConfig) (*GeminiProvider, error) {
	key, err := lookupKey(config.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	if err != nil {
		return nil, err
	}
	modelID := orDefault(config.Model, DefaultGeminiModel)

	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  key,
		BaseURL: orDefault(config.BaseURL, GeminiBaseURL),
		Model:   modelID,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini chat model: %w", err)
	}

	return &GeminiProvider{base{
		chatModel: cm,
		models:    withProvider("gemini", catalogWith(geminiCatalog, modelID)),
		maxTokens: config.MaxTokens,
	}}, nil
}

// ID returns the provider identifier.
func (p *GeminiProvider) ID() string { return "gemini" }

// Name returns the human-readable provider name.
func (p *GeminiProvider) Name() string { return "Google Gemini" }

// catalogWith copies catalog and appends configured if it is not listed,
// so preview models can be selected by name.
func catalogWith(catalog []types.Model, configured string) []types.Model {
	models := append([]types.Model(nil), catalog...)
	for _, m := range models {
		if m.ID == configured {
			return models
		}
	}
	return append(models, types.Model{ID: configured, Name: configured})
}
