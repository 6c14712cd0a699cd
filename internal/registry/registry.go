// Package registry maps client identifiers to their conversations.
package registry

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/issacpacheco/chat-stream-gemini/internal/chat"
	"github.com/issacpacheco/chat-stream-gemini/internal/event"
	"github.com/issacpacheco/chat-stream-gemini/internal/logging"
)

// Info describes a registered conversation.
type Info struct {
	ClientID  string    `json:"clientID"`
	CreatedAt time.Time `json:"createdAt"`
	LastUsed  time.Time `json:"lastUsed"`
	Active    int       `json:"active"`
}

type entry struct {
	id        string
	session   chat.Session
	createdAt time.Time
	lastUsed  time.Time
	active    int
	elem      *list.Element
}

// Registry holds at most one conversation per client identifier. It is
// safe for concurrent use. Without options it never forgets a
// conversation on its own.
type Registry struct {
	collab  chat.Collaborator
	configs func() chat.SessionConfig
	bus     *event.Bus
	now     func() time.Time

	maxEntries    int
	idleTTL       time.Duration
	sweepInterval time.Duration

	mu           sync.Mutex
	entries      map[string]*entry
	order        *list.List // least recently used at front
	evictRunning bool

	group singleflight.Group
}

// Option configures a Registry.
type Option func(*Registry)

// WithMaxEntries caps the number of conversations. When a new client
// would exceed n, the least recently used idle conversation is dropped.
func WithMaxEntries(n int) Option {
	return func(r *Registry) { r.maxEntries = n }
}

// WithIdleTTL drops conversations unused for ttl, checked every interval
// once StartEviction runs.
func WithIdleTTL(ttl, interval time.Duration) Option {
	return func(r *Registry) {
		r.idleTTL = ttl
		r.sweepInterval = interval
	}
}

// WithBus publishes session lifecycle events to bus.
func WithBus(bus *event.Bus) Option {
	return func(r *Registry) { r.bus = bus }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New creates a registry whose conversations come from collab, each
// created with the settings configs returns at that moment.
func New(collab chat.Collaborator, configs func() chat.SessionConfig, opts ...Option) *Registry {
	if configs == nil {
		configs = chat.DefaultSessionConfig
	}
	r := &Registry{
		collab:  collab,
		configs: configs,
		now:     time.Now,
		entries: make(map[string]*entry),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the conversation for id, creating it on first use.
// Concurrent callers for the same new id share a single creation. When
// creation fails nothing is stored and the error wraps
// chat.ErrProviderUnavailable.
func (r *Registry) GetOrCreate(ctx context.Context, id string) (chat.Session, error) {
	if s, ok := r.lookup(id, true); ok {
		return s, nil
	}

	v, err, _ := r.group.Do(id, func() (any, error) {
		if s, ok := r.lookup(id, true); ok {
			return s, nil
		}

		s, err := r.collab.CreateSession(ctx, r.configs())
		if err != nil {
			if !errors.Is(err, chat.ErrProviderUnavailable) {
				err = fmt.Errorf("%w: %w", chat.ErrProviderUnavailable, err)
			}
			return nil, err
		}
		if s == nil {
			return nil, fmt.Errorf("%w: collaborator returned no session", chat.ErrProviderUnavailable)
		}

		evicted := r.insert(id, s)
		r.publish(event.SessionCreated, event.SessionData{ClientID: id})
		for _, old := range evicted {
			logging.Info().Str("clientID", old).Msg("session evicted, registry at capacity")
			r.publish(event.SessionEvicted, event.SessionData{ClientID: old, Reason: "capacity"})
		}
		logging.Info().Str("clientID", id).Msg("session created")
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(chat.Session), nil
}

func (r *Registry) lookup(id string, touch bool) (chat.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	if touch {
		r.touchLocked(e)
	}
	return e.session, true
}

func (r *Registry) insert(id string, s chat.Session) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []string
	if r.maxEntries > 0 {
		for len(r.entries) >= r.maxEntries {
			victim := r.oldestIdleLocked()
			if victim == nil {
				break
			}
			r.removeLocked(victim)
			evicted = append(evicted, victim.id)
		}
	}

	now := r.now()
	e := &entry{id: id, session: s, createdAt: now, lastUsed: now}
	e.elem = r.order.PushBack(e)
	r.entries[id] = e
	return evicted
}

func (r *Registry) oldestIdleLocked() *entry {
	for el := r.order.Front(); el != nil; el = el.Next() {
		if e := el.Value.(*entry); e.active == 0 {
			return e
		}
	}
	return nil
}

func (r *Registry) touchLocked(e *entry) {
	e.lastUsed = r.now()
	r.order.MoveToBack(e.elem)
}

func (r *Registry) removeLocked(e *entry) {
	r.order.Remove(e.elem)
	delete(r.entries, e.id)
}

// Get returns the conversation for id without creating one.
func (r *Registry) Get(id string) (chat.Session, bool) {
	return r.lookup(id, false)
}

// Delete removes the conversation for id. It reports whether one existed.
// Connections already holding the conversation keep using it.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		r.removeLocked(e)
	}
	r.mu.Unlock()

	if ok {
		logging.Info().Str("clientID", id).Msg("session deleted")
		r.publish(event.SessionDeleted, event.SessionData{ClientID: id})
	}
	return ok
}

// Touch marks the conversation for id as used now.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		r.touchLocked(e)
	}
}

// Acquire marks the conversation for id as held by a live connection,
// which exempts it from eviction until the returned release is called.
func (r *Registry) Acquire(id string) (release func()) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		e.active++
	}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			if !ok {
				return
			}
			r.mu.Lock()
			defer r.mu.Unlock()
			if e.active > 0 {
				e.active--
			}
			e.lastUsed = r.now()
		})
	}
}

// Len returns the number of conversations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// List returns every conversation ordered by client ID.
func (r *Registry) List() []Info {
	r.mu.Lock()
	infos := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		infos = append(infos, Info{
			ClientID:  e.id,
			CreatedAt: e.createdAt,
			LastUsed:  e.lastUsed,
			Active:    e.active,
		})
	}
	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ClientID < infos[j].ClientID })
	return infos
}

func (r *Registry) publish(t event.EventType, data event.SessionData) {
	if err := r.bus.Publish(t, data); err != nil && !errors.Is(err, event.ErrClosed) {
		logging.Warn().Err(err).Str("type", string(t)).Msg("publish failed")
	}
}
