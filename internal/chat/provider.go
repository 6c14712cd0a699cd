package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/issacpacheco/chat-stream-gemini/internal/logging"
	"github.com/issacpacheco/chat-stream-gemini/internal/provider"
)

// ProviderCollaborator creates conversations backed by an LLM provider.
type ProviderCollaborator struct {
	provider provider.Provider
	modelID  string
}

// NewProviderCollaborator returns a Collaborator that sends every turn
// to modelID on p.
func NewProviderCollaborator(p provider.Provider, modelID string) *ProviderCollaborator {
	return &ProviderCollaborator{provider: p, modelID: modelID}
}

// Resolve returns a collaborator for a "provider/model" string, or an
// Unavailable collaborator when no registered provider serves it.
func Resolve(reg *provider.Registry, model string) Collaborator {
	p, modelID, err := reg.Resolve(model)
	if err != nil {
		logging.Warn().Err(err).Str("model", model).Msg("no provider for model, conversations will be refused")
		return Unavailable(err)
	}
	logging.Info().Str("provider", p.ID()).Str("model", modelID).Msg("generation provider selected")
	return NewProviderCollaborator(p, modelID)
}

// Model returns the provider and model conversations use.
func (c *ProviderCollaborator) Model() (providerID, modelID string) {
	return c.provider.ID(), c.modelID
}

// CreateSession starts a conversation. No request is made until the first turn.
func (c *ProviderCollaborator) CreateSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &providerSession{
		provider: c.provider,
		modelID:  c.modelID,
		cfg:      cfg,
	}
	if cfg.SystemDirective != "" {
		s.history = append(s.history, schema.SystemMessage(cfg.SystemDirective))
	}
	return s, nil
}

type providerSession struct {
	provider provider.Provider
	modelID  string
	cfg      SessionConfig

	mu      sync.Mutex
	history []*schema.Message
}

// SendStream sends text with the conversation so far. The exchange joins
// the history only once the reply has been received in full.
func (s *providerSession) SendStream(ctx context.Context, text string) (*FragmentStream, error) {
	user := schema.UserMessage(text)

	s.mu.Lock()
	messages := make([]*schema.Message, 0, len(s.history)+1)
	messages = append(messages, s.history...)
	s.mu.Unlock()
	messages = append(messages, user)

	cs, err := s.provider.CreateCompletion(ctx, &provider.CompletionRequest{
		Model:       s.modelID,
		Messages:    messages,
		Temperature: s.cfg.Temperature,
		StopWords:   s.cfg.StopSequences,
	})
	if err != nil {
		return nil, &ProviderError{Provider: s.provider.ID(), Err: err}
	}

	var reply strings.Builder
	next := func() (Fragment, error) {
		for {
			msg, err := cs.Recv()
			if errors.Is(err, io.EOF) {
				s.commit(user, reply.String())
				return Fragment{}, io.EOF
			}
			if err != nil {
				return Fragment{}, &ProviderError{Provider: s.provider.ID(), Err: err}
			}
			if msg == nil || msg.Content == "" {
				continue
			}
			reply.WriteString(msg.Content)
			return Fragment{Text: msg.Content}, nil
		}
	}

	return NewFragmentStream(next, cs.Close), nil
}

func (s *providerSession) commit(user *schema.Message, reply string) {
	s.mu.Lock()
	s.history = append(s.history, user, schema.AssistantMessage(reply, nil))
	size := len(s.history)
	s.mu.Unlock()

	logging.Debug().Int("history", size).Int("replyLen", len(reply)).Msg("turn committed")
}
