package event

import (
	"context"
	"sync"
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
	}
	return Event{}
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	events, err := bus.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := bus.Publish(SessionCreated, SessionData{ClientID: "client-1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	ev := receive(t, events)
	if ev.Type != SessionCreated {
		t.Errorf("Expected SessionCreated, got %v", ev.Type)
	}
	if ev.ID == "" || ev.Time.IsZero() {
		t.Errorf("Expected ID and time, got %+v", ev)
	}
	var data SessionData
	if err := ev.Decode(&data); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if data.ClientID != "client-1" {
		t.Errorf("Expected client-1, got %q", data.ClientID)
	}
}

func TestBus_Ordering(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	events, err := bus.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	order := []EventType{ClientConnected, SessionCreated, StreamCompleted, StreamCompleted, ClientDisconnected}
	for _, typ := range order {
		if err := bus.Publish(typ, ClientData{ClientID: "c"}); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	for i, want := range order {
		if got := receive(t, events).Type; got != want {
			t.Errorf("event %d: got %s, want %s", i, got, want)
		}
	}
}

func TestBus_EventTypeFiltering(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	events, err := bus.Subscribe(context.Background(), SessionDeleted)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	_ = bus.Publish(SessionCreated, SessionData{ClientID: "a"})
	_ = bus.Publish(ClientConnected, ClientData{ClientID: "a"})
	_ = bus.Publish(SessionDeleted, SessionData{ClientID: "a"})

	if got := receive(t, events).Type; got != SessionDeleted {
		t.Errorf("Expected only SessionDeleted, got %s", got)
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var subs []<-chan Event
	for i := 0; i < 3; i++ {
		ch, err := bus.Subscribe(context.Background())
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		subs = append(subs, ch)
	}

	_ = bus.Publish(StreamFailed, StreamData{ClientID: "c", Error: "boom"})

	for _, ch := range subs {
		var data StreamData
		if err := receive(t, ch).Decode(&data); err != nil || data.Error != "boom" {
			t.Errorf("unexpected payload %+v, err %v", data, err)
		}
	}
}

func TestBus_NoSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	if err := bus.Publish(SessionCreated, SessionData{ClientID: "x"}); err != nil {
		t.Errorf("Publish without subscribers failed: %v", err)
	}
}

func TestBus_ContextCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	cancel()

	select {
	case _, ok := <-events:
		if ok {
			t.Error("Expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestBus_Close(t *testing.T) {
	bus := NewBus()
	events, err := bus.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := bus.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Error("Expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after Close")
	}

	if err := bus.Publish(SessionCreated, SessionData{}); err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, err := bus.Subscribe(context.Background()); err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestBus_Nil(t *testing.T) {
	var bus *Bus
	if err := bus.Publish(SessionCreated, SessionData{}); err != nil {
		t.Errorf("nil Publish: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	events, err := bus.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bus.Publish(StreamCompleted, StreamData{ClientID: "c"})
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		receive(t, events)
	}
}
