package provider

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/issacpacheco/chat-stream-gemini/internal/provider/providertest"
	"github.com/issacpacheco/chat-stream-gemini/pkg/types"
)

func TestParseModelString(t *testing.T) {
	tests := []struct {
		input        string
		wantProvider string
		wantModel    string
	}{
		{"gemini/gemini-2.5-flash", "gemini", "gemini-2.5-flash"},
		{"openai/gpt-4o", "openai", "gpt-4o"},
		{"ark/ep-2024/v2", "ark", "ep-2024/v2"},
		{"gemini-2.5-flash", "", "gemini-2.5-flash"},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, m := ParseModelString(tt.input)
			assert.Equal(t, tt.wantProvider, p)
			assert.Equal(t, tt.wantModel, m)
		})
	}
}

func TestModelPriority(t *testing.T) {
	assert.Greater(t, modelPriority("gemini-2.5-flash"), modelPriority("claude-sonnet-4-20250514"))
	assert.Greater(t, modelPriority("claude-sonnet-4-20250514"), modelPriority("gpt-4o"))
	assert.Greater(t, modelPriority("gpt-4o"), modelPriority("gemini-2.0-flash"))
	assert.Greater(t, modelPriority("claude-3-5-haiku"), modelPriority("llama-3"))
}

func collect(t *testing.T, stream *CompletionStream) string {
	t.Helper()
	defer stream.Close()
	var out string
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out += msg.Content
	}
}

func TestWrapStreamsAndPassesOptions(t *testing.T) {
	fake := providertest.Fixed("Pika", "chu", "!")
	p := Wrap("local", "Local", fake, []types.Model{{ID: "fake-1"}})

	assert.Equal(t, "local", p.ID())
	assert.Equal(t, "Local", p.Name())
	assert.Equal(t, "local", p.Models()[0].ProviderID)
	assert.Same(t, fake, p.ChatModel())

	stream, err := p.CreateCompletion(context.Background(), &CompletionRequest{
		Model:       "fake-1",
		Messages:    []*schema.Message{schema.SystemMessage("sys"), schema.UserMessage("hi")},
		Temperature: 0.2,
		MaxTokens:   256,
		StopWords:   []string{"###"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Pikachu!", collect(t, stream))

	call, ok := fake.LastCall()
	require.True(t, ok)
	require.Len(t, call.Messages, 2)
	assert.Equal(t, schema.System, call.Messages[0].Role)

	opts := call.Options
	require.NotNil(t, opts.Temperature)
	assert.InDelta(t, 0.2, *opts.Temperature, 1e-6)
	require.NotNil(t, opts.MaxTokens)
	assert.Equal(t, 256, *opts.MaxTokens)
	require.NotNil(t, opts.Model)
	assert.Equal(t, "fake-1", *opts.Model)
	assert.Equal(t, []string{"###"}, opts.Stop)
}

func TestCreateCompletionOmitsUnsetOptions(t *testing.T) {
	fake := providertest.Fixed("ok")
	p := Wrap("local", "Local", fake, nil)

	stream, err := p.CreateCompletion(context.Background(), &CompletionRequest{
		Messages: []*schema.Message{schema.UserMessage("hi")},
	})
	require.NoError(t, err)
	collect(t, stream)

	call, _ := fake.LastCall()
	require.NotNil(t, call.Options.Temperature)
	assert.Zero(t, *call.Options.Temperature)
	assert.Nil(t, call.Options.MaxTokens)
	assert.Nil(t, call.Options.Model)
	assert.Empty(t, call.Options.Stop)
}

func TestCreateCompletionStreamError(t *testing.T) {
	fake := providertest.Fixed()
	fake.StreamErr = errors.New("quota exceeded")
	p := Wrap("local", "Local", fake, nil)

	_, err := p.CreateCompletion(context.Background(), &CompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestProvidersRequireKeys(t *testing.T) {
	for _, k := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "ARK_API_KEY"} {
		t.Setenv(k, "")
	}
	ctx := context.Background()

	_, err := NewGeminiProvider(ctx, &GeminiConfig{})
	assert.Error(t, err)
	_, err = NewOpenAIProvider(ctx, &OpenAIConfig{})
	assert.Error(t, err)
	_, err = NewAnthropicProvider(ctx, &AnthropicConfig{})
	assert.Error(t, err)
	_, err = NewArkProvider(ctx, &ArkConfig{})
	assert.Error(t, err)
}

func TestGeminiKeyFromGoogleEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")

	p, err := NewGeminiProvider(context.Background(), &GeminiConfig{Model: "gemini-exp-1206"})
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.ID())

	var ids []string
	for _, m := range p.Models() {
		ids = append(ids, m.ID)
	}
	assert.Contains(t, ids, "gemini-2.5-flash")
	assert.Contains(t, ids, "gemini-exp-1206")
}
