// Package event publishes relay lifecycle events over a watermill pub/sub.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/issacpacheco/chat-stream-gemini/internal/logging"
)

// Topic is the watermill topic every event is published on.
const Topic = "chatrelay.events"

// ErrClosed is returned when publishing to or subscribing on a closed bus.
var ErrClosed = errors.New("event bus closed")

// EventType represents the type of event.
type EventType string

const (
	SessionCreated     EventType = "session.created"
	SessionDeleted     EventType = "session.deleted"
	SessionEvicted     EventType = "session.evicted"
	ClientConnected    EventType = "client.connected"
	ClientDisconnected EventType = "client.disconnected"
	StreamCompleted    EventType = "stream.completed"
	StreamFailed       EventType = "stream.failed"
)

// Event is one lifecycle notification.
type Event struct {
	ID   string          `json:"id"`
	Type EventType       `json:"type"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Bus is the event bus. A nil *Bus is valid and discards everything.
type Bus struct {
	pubsub *gochannel.GoChannel
	buffer int

	mu     sync.RWMutex
	closed bool
}

// NewBus creates a bus backed by a watermill GoChannel. Publish waits for
// subscribers to take each message so events arrive in publish order.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            100,
				Persistent:                     false,
				BlockPublishUntilSubscriberAck: true,
			},
			watermill.NopLogger{},
		),
		buffer: 64,
	}
}

// Publish sends an event with data as its payload.
func (b *Bus) Publish(t EventType, data any) error {
	if b == nil {
		return nil
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", t, err)
	}
	ev := Event{
		ID:   watermill.NewULID(),
		Type: t,
		Time: time.Now().UTC(),
		Data: payload,
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msg := message.NewMessage(ev.ID, body)
	msg.Metadata.Set("type", string(t))

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return b.pubsub.Publish(Topic, msg)
}

// Subscribe returns a channel of events, optionally filtered by type. The
// channel closes when ctx ends or the bus closes. A subscriber that falls
// behind loses events rather than stalling publishers.
func (b *Bus) Subscribe(ctx context.Context, types ...EventType) (<-chan Event, error) {
	if b == nil {
		return nil, ErrClosed
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, ErrClosed
	}
	messages, err := b.pubsub.Subscribe(ctx, Topic)
	b.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	wanted := make(map[EventType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	out := make(chan Event, b.buffer)
	go func() {
		defer close(out)
		for msg := range messages {
			var ev Event
			err := json.Unmarshal(msg.Payload, &ev)
			msg.Ack()
			if err != nil {
				logging.Warn().Err(err).Str("uuid", msg.UUID).Msg("dropping undecodable event")
				continue
			}
			if len(wanted) > 0 && !wanted[ev.Type] {
				continue
			}
			select {
			case out <- ev:
			default:
				logging.Warn().Str("type", string(ev.Type)).Msg("event subscriber full, dropping event")
			}
		}
	}()
	return out, nil
}

// Close closes the bus and all its subscriptions.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}
