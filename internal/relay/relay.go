// Package relay runs the per-connection loop that turns inbound client
// messages into streamed replies.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/issacpacheco/chat-stream-gemini/internal/chat"
	"github.com/issacpacheco/chat-stream-gemini/internal/event"
	"github.com/issacpacheco/chat-stream-gemini/internal/logging"
	"github.com/issacpacheco/chat-stream-gemini/internal/registry"
	"github.com/issacpacheco/chat-stream-gemini/pkg/types"
)

var (
	// ErrStreamFailure reports a reply that failed part way.
	ErrStreamFailure = errors.New("stream failure")
	// ErrDisconnected reports that the client went away.
	ErrDisconnected = errors.New("client disconnected")
)

// DefaultInboundQueue is how many client messages may wait while a reply streams.
const DefaultInboundQueue = 16

// Conn is a bidirectional client connection carrying text in and frames out.
type Conn interface {
	// ReadText blocks for the next client message.
	ReadText() (string, error)
	// WriteFrame sends one outbound frame.
	WriteFrame(types.Frame) error
	// Close closes the connection. It unblocks a pending ReadText.
	Close() error
}

// Relay binds connections to conversations in a registry.
type Relay struct {
	reg   *registry.Registry
	bus   *event.Bus
	queue int
	newID func() string
}

// Option configures a Relay.
type Option func(*Relay)

// WithBus publishes connection and stream events to bus.
func WithBus(bus *event.Bus) Option {
	return func(r *Relay) { r.bus = bus }
}

// WithInboundQueue sets how many messages are buffered while a reply streams.
func WithInboundQueue(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.queue = n
		}
	}
}

// WithIDGenerator overrides how connection IDs are generated.
func WithIDGenerator(fn func() string) Option {
	return func(r *Relay) { r.newID = fn }
}

// New creates a relay over reg.
func New(reg *registry.Registry, opts ...Option) *Relay {
	r := &Relay{
		reg:   reg,
		queue: DefaultInboundQueue,
		newID: func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Serve runs the loop for one connection until the client leaves, a reply
// fails or ctx ends. The connection is always closed on return.
//
// Each inbound message produces a start frame, one chunk frame per
// non-empty fragment and an end frame, in that order, before the next
// message is read from the queue. A failed reply sends a single error
// frame. The conversation stays in the registry in every case.
//
// Serve returns an error wrapping chat.ErrProviderUnavailable,
// ErrStreamFailure or ErrDisconnected, or ctx's error on shutdown.
func (r *Relay) Serve(ctx context.Context, conn Conn, clientID string) error {
	defer conn.Close()

	connID := r.newID()
	log := logging.Component("relay").With().
		Str("clientID", clientID).
		Str("connID", connID).
		Logger()

	session, err := r.reg.GetOrCreate(ctx, clientID)
	if err != nil {
		log.Error().Err(err).Msg("could not create session")
		if werr := conn.WriteFrame(types.ErrorFrame("could not create chat session: " + err.Error())); werr != nil {
			log.Debug().Err(werr).Msg("error frame not delivered")
		}
		return err
	}

	release := r.reg.Acquire(clientID)
	defer release()

	log.Info().Msg("client connected")
	r.publish(event.ClientConnected, event.ClientData{ClientID: clientID, ConnID: connID})
	defer r.publish(event.ClientDisconnected, event.ClientData{ClientID: clientID, ConnID: connID})

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	inbound := make(chan string, r.queue)
	readErr := make(chan error, 1)
	go func() {
		defer close(inbound)
		for {
			text, err := conn.ReadText()
			if err != nil {
				readErr <- err
				cancel()
				return
			}
			select {
			case inbound <- text:
			case <-connCtx.Done():
				return
			}
		}
	}()

	t := &turn{conn: conn, session: session, log: log, clientID: clientID, connID: connID}
	for {
		select {
		case <-connCtx.Done():
			return r.exit(ctx, log, readErr, io.EOF)
		case text, ok := <-inbound:
			// Messages queued before the reader failed are dropped.
			if !ok || connCtx.Err() != nil {
				return r.exit(ctx, log, readErr, io.EOF)
			}
			r.reg.Touch(clientID)
			log.Debug().Int("len", len(text)).Msg("message received")

			stats, err := t.run(connCtx, text)
			switch {
			case err == nil:
				r.publish(event.StreamCompleted, stats)
			case errors.Is(err, ErrStreamFailure):
				stats.Error = err.Error()
				r.publish(event.StreamFailed, stats)
				return err
			default:
				return r.exit(ctx, log, readErr, err)
			}
		}
	}
}

// exit classifies why the loop stopped. The reader's error wins over
// fallback, which is the error seen by the loop itself.
func (r *Relay) exit(ctx context.Context, log zerolog.Logger, readErr <-chan error, fallback error) error {
	if err := ctx.Err(); err != nil {
		log.Info().Msg("server shutting down, closing connection")
		return err
	}

	cause := fallback
	select {
	case cause = <-readErr:
	default:
	}
	if IsNormalClose(cause) {
		log.Info().Msg("client disconnected")
	} else {
		log.Info().Err(cause).Msg("client connection lost")
	}
	if errors.Is(cause, ErrDisconnected) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrDisconnected, cause)
}

func (r *Relay) publish(t event.EventType, data any) {
	if err := r.bus.Publish(t, data); err != nil && !errors.Is(err, event.ErrClosed) {
		logging.Warn().Err(err).Str("type", string(t)).Msg("publish failed")
	}
}

type turn struct {
	conn     Conn
	session  chat.Session
	log      zerolog.Logger
	clientID string
	connID   string
}

// run streams the reply to one message. It returns ErrStreamFailure after
// sending an error frame, or ErrDisconnected if the client went away.
func (t *turn) run(ctx context.Context, text string) (event.StreamData, error) {
	stats := event.StreamData{ClientID: t.clientID, ConnID: t.connID}

	if err := t.conn.WriteFrame(types.StartFrame()); err != nil {
		return stats, fmt.Errorf("%w: %w", ErrDisconnected, err)
	}

	stream, err := t.session.SendStream(ctx, text)
	if err != nil {
		return stats, t.fail(ctx, err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		f, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, t.fail(ctx, err)
		}
		if f.Text == "" {
			continue
		}
		if err := t.conn.WriteFrame(types.ChunkFrame(f.Text)); err != nil {
			return stats, fmt.Errorf("%w: %w", ErrDisconnected, err)
		}
		full.WriteString(f.Text)
		stats.Fragments++
	}

	if err := t.conn.WriteFrame(types.EndFrame()); err != nil {
		return stats, fmt.Errorf("%w: %w", ErrDisconnected, err)
	}

	stats.Bytes = full.Len()
	t.log.Info().Int("fragments", stats.Fragments).Int("bytes", stats.Bytes).Msg("reply sent")
	t.log.Debug().Str("response", full.String()).Msg("full reply")
	return stats, nil
}

// fail reports a generation error to the client. Errors caused by the
// connection going away are not reported.
func (t *turn) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrDisconnected, ctx.Err())
	}

	t.log.Error().Err(err).Msg("reply failed")
	if werr := t.conn.WriteFrame(types.ErrorFrame("internal server error: " + err.Error())); werr != nil {
		t.log.Debug().Err(werr).Msg("error frame not delivered")
	}
	return fmt.Errorf("%w: %w", ErrStreamFailure, err)
}
