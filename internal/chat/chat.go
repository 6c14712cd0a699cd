// Package chat defines the generation collaborator the relay talks to:
// conversations created with a fixed system directive, each turn answered
// by a lazy stream of text fragments.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrProviderUnavailable is returned when a conversation cannot be created.
var ErrProviderUnavailable = errors.New("generation provider unavailable")

// ProviderError wraps a failure reported by a generation backend.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// SessionConfig is fixed when a conversation is created.
type SessionConfig struct {
	SystemDirective string
	Temperature     float32
	StopSequences   []string
}

// DefaultSessionConfig returns the settings used when nothing else is configured.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{Temperature: 0.2, StopSequences: []string{}}
}

// Collaborator creates conversations.
type Collaborator interface {
	CreateSession(ctx context.Context, cfg SessionConfig) (Session, error)
}

// Session is one conversation with accumulated history.
type Session interface {
	// SendStream submits text and returns the reply as a stream. The
	// stream must be drained or closed by the caller.
	SendStream(ctx context.Context, text string) (*FragmentStream, error)
}

// Fragment is a piece of reply text.
type Fragment struct {
	Text string
}

// FragmentStream yields a reply in order. It is consumed once; after
// io.EOF or an error every further Recv returns the same result.
type FragmentStream struct {
	next  func() (Fragment, error)
	close func()

	err       error
	closeOnce sync.Once
}

// NewFragmentStream builds a stream from a next function returning io.EOF
// at the end and an optional close function.
func NewFragmentStream(next func() (Fragment, error), close func()) *FragmentStream {
	return &FragmentStream{next: next, close: close}
}

// FragmentsFrom returns a stream over fixed fragments.
func FragmentsFrom(texts ...string) *FragmentStream {
	i := 0
	return NewFragmentStream(func() (Fragment, error) {
		if i >= len(texts) {
			return Fragment{}, io.EOF
		}
		i++
		return Fragment{Text: texts[i-1]}, nil
	}, nil)
}

// Recv returns the next fragment, or io.EOF when the reply is complete.
func (s *FragmentStream) Recv() (Fragment, error) {
	if s.err != nil {
		return Fragment{}, s.err
	}
	f, err := s.next()
	if err != nil {
		s.err = err
		s.Close()
	}
	return f, err
}

// Close releases the stream. It is safe to call more than once.
func (s *FragmentStream) Close() {
	s.closeOnce.Do(func() {
		if s.err == nil {
			s.err = io.ErrClosedPipe
		}
		if s.close != nil {
			s.close()
		}
	})
}

type unavailable struct {
	cause error
}

// Unavailable returns a Collaborator whose conversations can never be
// created, for running without a configured backend.
func Unavailable(cause error) Collaborator {
	return unavailable{cause: cause}
}

func (u unavailable) CreateSession(context.Context, SessionConfig) (Session, error) {
	if u.cause == nil {
		return nil, ErrProviderUnavailable
	}
	return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, u.cause)
}
