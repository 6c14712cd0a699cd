package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/issacpacheco/chat-stream-gemini/internal/chat"
	"github.com/issacpacheco/chat-stream-gemini/internal/event"
)

type fakeSession struct {
	n   int64
	cfg chat.SessionConfig
}

func (s *fakeSession) SendStream(context.Context, string) (*chat.FragmentStream, error) {
	return chat.FragmentsFrom("ok"), nil
}

type fakeCollab struct {
	created atomic.Int64
	delay   time.Duration
	fail    atomic.Bool
}

func (c *fakeCollab) CreateSession(ctx context.Context, cfg chat.SessionConfig) (chat.Session, error) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.fail.Load() {
		return nil, errors.New("backend down")
	}
	return &fakeSession{n: c.created.Add(1), cfg: cfg}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestGetOrCreateReturnsSameHandle(t *testing.T) {
	collab := &fakeCollab{}
	reg := New(collab, nil)
	ctx := context.Background()

	a1, err := reg.GetOrCreate(ctx, "client-a")
	require.NoError(t, err)
	a2, err := reg.GetOrCreate(ctx, "client-a")
	require.NoError(t, err)
	b, err := reg.GetOrCreate(ctx, "client-b")
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
	assert.Equal(t, int64(2), collab.created.Load())
	assert.Equal(t, 2, reg.Len())

	got, ok := reg.Get("client-a")
	require.True(t, ok)
	assert.Same(t, a1, got)
	_, ok = reg.Get("nobody")
	assert.False(t, ok)
}

func TestConcurrentGetOrCreateSingleWinner(t *testing.T) {
	collab := &fakeCollab{delay: 20 * time.Millisecond}
	reg := New(collab, nil)

	const n = 50
	results := make([]chat.Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := reg.GetOrCreate(context.Background(), "shared")
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), collab.created.Load())
	for _, s := range results {
		assert.Same(t, results[0], s)
	}
	assert.Equal(t, 1, reg.Len())
}

func TestConcurrentDistinctIDs(t *testing.T) {
	reg := New(&fakeCollab{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := reg.GetOrCreate(context.Background(), fmt.Sprintf("c-%d", i))
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			reg.Delete(fmt.Sprintf("c-%d", i-1))
			_ = reg.List()
		}(i)
	}
	wg.Wait()

	for _, info := range reg.List() {
		s, ok := reg.Get(info.ClientID)
		assert.True(t, ok)
		assert.NotNil(t, s)
	}
}

func TestCreationFailureLeavesNoEntry(t *testing.T) {
	collab := &fakeCollab{}
	collab.fail.Store(true)
	reg := New(collab, nil)

	s, err := reg.GetOrCreate(context.Background(), "client-x")
	assert.Nil(t, s)
	require.Error(t, err)
	assert.ErrorIs(t, err, chat.ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "backend down")
	assert.Equal(t, 0, reg.Len())

	collab.fail.Store(false)
	s, err = reg.GetOrCreate(context.Background(), "client-x")
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestUnavailableCollaborator(t *testing.T) {
	reg := New(chat.Unavailable(errors.New("no key")), nil)

	_, err := reg.GetOrCreate(context.Background(), "client-d")
	assert.ErrorIs(t, err, chat.ErrProviderUnavailable)
	assert.Equal(t, 0, reg.Len())
}

func TestDelete(t *testing.T) {
	reg := New(&fakeCollab{}, nil)
	ctx := context.Background()

	first, err := reg.GetOrCreate(ctx, "client-1")
	require.NoError(t, err)

	assert.True(t, reg.Delete("client-1"))
	assert.False(t, reg.Delete("client-1"))
	assert.False(t, reg.Delete("never-seen"))
	assert.Equal(t, 0, reg.Len())

	second, err := reg.GetOrCreate(ctx, "client-1")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestConfigsEvaluatedPerCreation(t *testing.T) {
	directive := "first"
	var mu sync.Mutex
	reg := New(&fakeCollab{}, func() chat.SessionConfig {
		mu.Lock()
		defer mu.Unlock()
		return chat.SessionConfig{SystemDirective: directive, Temperature: 0.2}
	})

	a, err := reg.GetOrCreate(context.Background(), "a")
	require.NoError(t, err)

	mu.Lock()
	directive = "second"
	mu.Unlock()

	b, err := reg.GetOrCreate(context.Background(), "b")
	require.NoError(t, err)
	again, err := reg.GetOrCreate(context.Background(), "a")
	require.NoError(t, err)

	assert.Equal(t, "first", a.(*fakeSession).cfg.SystemDirective)
	assert.Equal(t, "second", b.(*fakeSession).cfg.SystemDirective)
	assert.Equal(t, "first", again.(*fakeSession).cfg.SystemDirective)
}

func TestDefaultConfigs(t *testing.T) {
	reg := New(&fakeCollab{}, nil)
	s, err := reg.GetOrCreate(context.Background(), "a")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, s.(*fakeSession).cfg.Temperature, 1e-6)
}

func TestListAndTouch(t *testing.T) {
	clk := newClock()
	reg := New(&fakeCollab{}, nil, WithClock(clk.Now))
	ctx := context.Background()

	_, _ = reg.GetOrCreate(ctx, "b")
	_, _ = reg.GetOrCreate(ctx, "a")
	clk.Advance(time.Minute)
	reg.Touch("b")
	reg.Touch("missing")

	infos := reg.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].ClientID)
	assert.Equal(t, "b", infos[1].ClientID)
	assert.Equal(t, infos[0].CreatedAt, infos[0].LastUsed)
	assert.Equal(t, time.Minute, infos[1].LastUsed.Sub(infos[1].CreatedAt))
}

func TestUnboundedByDefault(t *testing.T) {
	clk := newClock()
	reg := New(&fakeCollab{}, nil, WithClock(clk.Now))

	for i := 0; i < 500; i++ {
		_, err := reg.GetOrCreate(context.Background(), fmt.Sprintf("c-%d", i))
		require.NoError(t, err)
	}
	clk.Advance(365 * 24 * time.Hour)

	assert.Zero(t, reg.evictIdleOnce(clk.Now()))
	reg.StartEviction(context.Background())
	assert.Equal(t, 500, reg.Len())
}

func TestMaxEntriesEvictsLeastRecentlyUsed(t *testing.T) {
	clk := newClock()
	reg := New(&fakeCollab{}, nil, WithMaxEntries(2), WithClock(clk.Now))
	ctx := context.Background()

	_, _ = reg.GetOrCreate(ctx, "a")
	_, _ = reg.GetOrCreate(ctx, "b")
	_, _ = reg.GetOrCreate(ctx, "a") // a is now most recent
	_, _ = reg.GetOrCreate(ctx, "c")

	assert.Equal(t, 2, reg.Len())
	_, ok := reg.Get("b")
	assert.False(t, ok)
	_, ok = reg.Get("a")
	assert.True(t, ok)
	_, ok = reg.Get("c")
	assert.True(t, ok)
}

func TestMaxEntriesSkipsActiveSessions(t *testing.T) {
	reg := New(&fakeCollab{}, nil, WithMaxEntries(1))
	ctx := context.Background()

	_, _ = reg.GetOrCreate(ctx, "held")
	release := reg.Acquire("held")

	_, err := reg.GetOrCreate(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	release()
	release()
	_, _ = reg.GetOrCreate(ctx, "newer")
	_, ok := reg.Get("held")
	assert.False(t, ok)
}

func TestIdleEviction(t *testing.T) {
	clk := newClock()
	reg := New(&fakeCollab{}, nil, WithIdleTTL(10*time.Minute, time.Minute), WithClock(clk.Now))
	ctx := context.Background()

	_, _ = reg.GetOrCreate(ctx, "stale")
	_, _ = reg.GetOrCreate(ctx, "held")
	release := reg.Acquire("held")
	clk.Advance(8 * time.Minute)
	_, _ = reg.GetOrCreate(ctx, "fresh")
	clk.Advance(3 * time.Minute)

	assert.Equal(t, 1, reg.evictIdleOnce(clk.Now()))
	_, ok := reg.Get("stale")
	assert.False(t, ok)
	_, ok = reg.Get("held")
	assert.True(t, ok)
	_, ok = reg.Get("fresh")
	assert.True(t, ok)

	release()
	clk.Advance(11 * time.Minute)
	assert.Equal(t, 2, reg.evictIdleOnce(clk.Now()))
	assert.Equal(t, 0, reg.Len())
}

func TestStartEvictionLoop(t *testing.T) {
	reg := New(&fakeCollab{}, nil, WithIdleTTL(20*time.Millisecond, 10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _ = reg.GetOrCreate(ctx, "a")
	reg.StartEviction(ctx)
	reg.StartEviction(ctx)

	assert.Eventually(t, func() bool { return reg.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestLifecycleEvents(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()
	events, err := bus.Subscribe(context.Background())
	require.NoError(t, err)

	reg := New(&fakeCollab{}, nil, WithBus(bus), WithMaxEntries(1))
	ctx := context.Background()

	_, _ = reg.GetOrCreate(ctx, "a")
	_, _ = reg.GetOrCreate(ctx, "b")
	reg.Delete("b")

	want := []struct {
		typ event.EventType
		id  string
	}{
		{event.SessionCreated, "a"},
		{event.SessionCreated, "b"},
		{event.SessionEvicted, "a"},
		{event.SessionDeleted, "b"},
	}
	for _, w := range want {
		select {
		case ev := <-events:
			var data event.SessionData
			require.NoError(t, ev.Decode(&data))
			assert.Equal(t, w.typ, ev.Type)
			assert.Equal(t, w.id, data.ClientID)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", w.typ)
		}
	}
}
