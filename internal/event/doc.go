/*
Package event carries relay lifecycle notifications between components.

Events are JSON messages published on a single watermill GoChannel topic.
The registry publishes session events, the relay publishes connection and
stream events, and the HTTP server forwards them to /event subscribers as
server-sent events.

# Event Types

Session Events:
  - session.created: a conversation was created for a client ID
  - session.deleted: a conversation was removed by the admin endpoint
  - session.evicted: a conversation was dropped for idleness or capacity

Client Events:
  - client.connected: a websocket bound to a client ID
  - client.disconnected: the websocket closed

Stream Events:
  - stream.completed: a reply was relayed in full
  - stream.failed: a reply failed part way

# Usage

	bus := event.NewBus()
	defer bus.Close()

	events, err := bus.Subscribe(ctx, event.SessionCreated, event.SessionDeleted)
	if err != nil {
	    return err
	}
	go func() {
	    for ev := range events {
	        var data event.SessionData
	        _ = ev.Decode(&data)
	    }
	}()

	_ = bus.Publish(event.SessionCreated, event.SessionData{ClientID: "client-1"})

A nil *Bus accepts Publish and Close and discards the events, so components
can run without one.

Publish blocks until every subscriber has taken the message. Subscribers
buffer events and drop them when the buffer is full, so a slow reader never
holds up the relay.
*/
package event
