// Package provider provides LLM provider abstraction using Eino framework.
package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/issacpacheco/chat-stream-gemini/pkg/types"
)

// Provider represents an LLM provider with Eino ChatModel.
type Provider interface {
	// ID returns the provider identifier.
	ID() string

	// Name returns the human-readable provider name.
	Name() string

	// Models returns the list of available models.
	Models() []types.Model

	// ChatModel returns the Eino ChatModel for this provider.
	ChatModel() model.ToolCallingChatModel

	// CreateCompletion creates a streaming completion.
	CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error)
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []*schema.Message `json:"messages"`
	MaxTokens   int               `json:"maxTokens,omitempty"`
	Temperature float32           `json:"temperature"`
	StopWords   []string          `json:"stopWords,omitempty"`
}

// CompletionStream wraps an Eino stream reader.
type CompletionStream struct {
	reader *schema.StreamReader[*schema.Message]
}

// NewCompletionStream creates a new completion stream.
func NewCompletionStream(reader *schema.StreamReader[*schema.Message]) *CompletionStream {
	return &CompletionStream{reader: reader}
}

// Recv receives the next message chunk from the stream.
func (s *CompletionStream) Recv() (*schema.Message, error) {
	return s.reader.Recv()
}

// Close closes the stream.
func (s *CompletionStream) Close() {
	s.reader.Close()
}

// base carries what every provider shares: the bound chat model, its
// model list and how max tokens are expressed for the backend.
type base struct {
	chatModel model.ToolCallingChatModel
	models    []types.Model
	maxTokens int

	// maxTokensOption defaults to model.WithMaxTokens.
	maxTokensOption func(int) model.Option
}

// Models returns the list of available models.
func (b *base) Models() []types.Model {
	return b.models
}

// ChatModel returns the Eino ChatModel.
func (b *base) ChatModel() model.ToolCallingChatModel {
	return b.chatModel
}

// CreateCompletion creates a streaming completion.
func (b *base) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
	stream, err := b.chatModel.Stream(ctx, req.Messages, b.options(req)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}
	return NewCompletionStream(stream), nil
}

func (b *base) options(req *CompletionRequest) []model.Option {
	opts := []model.Option{model.WithTemperature(req.Temperature)}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = b.maxTokens
	}
	if maxTokens > 0 {
		withMax := b.maxTokensOption
		if withMax == nil {
			withMax = model.WithMaxTokens
		}
		opts = append(opts, withMax(maxTokens))
	}
	if len(req.StopWords) > 0 {
		opts = append(opts, model.WithStop(req.StopWords))
	}
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}
	return opts
}

// StaticProvider serves an already constructed chat model.
type StaticProvider struct {
	base
	id   string
	name string
}

// Wrap exposes chatModel as a Provider. It is used for in-process models
// and for backends configured outside this package.
func Wrap(id, name string, chatModel model.ToolCallingChatModel, models []types.Model) *StaticProvider {
	return &StaticProvider{
		base: base{chatModel: chatModel, models: withProvider(id, models)},
		id:   id,
		name: name,
	}
}

// ID returns the provider identifier.
func (p *StaticProvider) ID() string { return p.id }

// Name returns the human-readable provider name.
func (p *StaticProvider) Name() string { return p.name }
