// Package providertest provides fakes for exercising code built on the
// provider package: an in-process Eino chat model and an HTTP server that
// speaks the OpenAI and Anthropic streaming protocols.
package providertest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Script is one scripted reply: the chunks to stream, then Err if set.
type Script struct {
	Chunks []string
	Err    error
}

// Call records one Stream or Generate invocation.
type Call struct {
	Messages []*schema.Message
	Options  *model.Options
}

// ChatModel is a scripted model.ToolCallingChatModel.
type ChatModel struct {
	respond func(input []*schema.Message) Script

	// StreamErr, when set, makes Stream fail before any chunk.
	StreamErr error
	// Delay is slept before each chunk.
	Delay time.Duration
	// Hold, when set, pauses the stream after the first chunk until it
	// is closed or the request context ends.
	Hold <-chan struct{}

	mu    sync.Mutex
	calls []Call
}

var _ model.ToolCallingChatModel = (*ChatModel)(nil)

// NewChatModel returns a model that answers with respond(input).
func NewChatModel(respond func(input []*schema.Message) Script) *ChatModel {
	return &ChatModel{respond: respond}
}

// Fixed returns a model that always streams chunks.
func Fixed(chunks ...string) *ChatModel {
	return NewChatModel(func([]*schema.Message) Script {
		return Script{Chunks: chunks}
	})
}

// Echo returns a model that streams "echo: <last user message>" word by word.
func Echo() *ChatModel {
	return NewChatModel(func(input []*schema.Message) Script {
		reply := "echo: " + LastUserText(input)
		words := strings.SplitAfter(reply, " ")
		return Script{Chunks: words}
	})
}

// Failing returns a model that streams chunks and then fails with err.
func Failing(err error, chunks ...string) *ChatModel {
	return NewChatModel(func([]*schema.Message) Script {
		return Script{Chunks: chunks, Err: err}
	})
}

// LastUserText returns the content of the last user message in input.
func LastUserText(input []*schema.Message) string {
	for i := len(input) - 1; i >= 0; i-- {
		if input[i].Role == schema.User {
			return input[i].Content
		}
	}
	return ""
}

// Calls returns the recorded invocations.
func (m *ChatModel) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// LastCall returns the most recent invocation.
func (m *ChatModel) LastCall() (Call, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return Call{}, false
	}
	return m.calls[len(m.calls)-1], true
}

func (m *ChatModel) record(input []*schema.Message, opts []model.Option) {
	copied := make([]*schema.Message, len(input))
	for i, msg := range input {
		c := *msg
		copied[i] = &c
	}
	m.mu.Lock()
	m.calls = append(m.calls, Call{
		Messages: copied,
		Options:  model.GetCommonOptions(&model.Options{}, opts...),
	})
	m.mu.Unlock()
}

// Generate returns the whole scripted reply as one message.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.record(input, opts)
	if m.StreamErr != nil {
		return nil, m.StreamErr
	}
	s := m.respond(input)
	if s.Err != nil {
		return nil, s.Err
	}
	return schema.AssistantMessage(strings.Join(s.Chunks, ""), nil), nil
}

// Stream streams the scripted reply chunk by chunk.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.record(input, opts)
	if m.StreamErr != nil {
		return nil, m.StreamErr
	}

	s := m.respond(input)
	sr, sw := schema.Pipe[*schema.Message](0)

	go func() {
		defer sw.Close()
		for i, chunk := range s.Chunks {
			if m.Delay > 0 {
				select {
				case <-time.After(m.Delay):
				case <-ctx.Done():
					sw.Send(nil, ctx.Err())
					return
				}
			}
			if err := ctx.Err(); err != nil {
				sw.Send(nil, err)
				return
			}
			if closed := sw.Send(schema.AssistantMessage(chunk, nil), nil); closed {
				return
			}
			if i == 0 && m.Hold != nil {
				select {
				case <-m.Hold:
				case <-ctx.Done():
					sw.Send(nil, ctx.Err())
					return
				}
			}
		}
		if s.Err != nil {
			sw.Send(nil, s.Err)
		}
	}()

	return sr, nil
}

// WithTools returns the model unchanged; tools are not supported.
func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if len(tools) > 0 {
		return nil, errors.New("providertest: tools not supported")
	}
	return m, nil
}
