// Package client is a terminal client for the chat relay.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/issacpacheco/chat-stream-gemini/internal/logging"
	"github.com/issacpacheco/chat-stream-gemini/internal/registry"
	"github.com/issacpacheco/chat-stream-gemini/pkg/types"
)

const (
	// MaxRetries is the maximum number of reconnect attempts per send.
	MaxRetries = 5
	// RetryInitialInterval is the initial interval for exponential backoff.
	RetryInitialInterval = 500 * time.Millisecond
	// RetryMaxInterval is the maximum interval for exponential backoff.
	RetryMaxInterval = 10 * time.Second
)

// ErrNotFound is returned when deleting a conversation the server does not have.
var ErrNotFound = errors.New("session not found")

// FrameError is an error frame sent by the server. The server closes the
// connection after sending one.
type FrameError struct {
	Message string
}

func (e *FrameError) Error() string { return e.Message }

// Config configures a Client.
type Config struct {
	// URL is the server's base URL, e.g. http://localhost:8000.
	URL string
	// ClientID names the conversation. Empty means NewClientID().
	ClientID string
	// ReplyTimeout bounds the wait for each frame. Zero means no limit.
	ReplyTimeout time.Duration

	Dialer  *websocket.Dialer
	HTTP    *http.Client
	Backoff func() backoff.BackOff
}

// Client holds one websocket connection to the relay and reconnects on
// demand.
type Client struct {
	base    *url.URL
	cfg     Config
	dialer  *websocket.Dialer
	http    *http.Client
	backoff func() backoff.BackOff

	mu       sync.Mutex
	clientID string
	conn     *websocket.Conn
}

// NewClientID returns a fresh identifier in the browser client's format.
func NewClientID() string {
	return fmt.Sprintf("client-%d", time.Now().UnixMilli())
}

// New creates a client. It does not connect.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch base.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported url scheme %q", base.Scheme)
	}

	c := &Client{
		base:     base,
		cfg:      cfg,
		dialer:   cfg.Dialer,
		http:     cfg.HTTP,
		backoff:  cfg.Backoff,
		clientID: cfg.ClientID,
	}
	if c.dialer == nil {
		c.dialer = websocket.DefaultDialer
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.backoff == nil {
		c.backoff = newReconnectBackoff
	}
	if c.clientID == "" {
		c.clientID = NewClientID()
	}
	return c, nil
}

func newReconnectBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithMaxRetries(b, MaxRetries)
}

// ClientID returns the current conversation identifier.
func (c *Client) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// URL returns the server base URL.
func (c *Client) URL() string {
	return c.base.String()
}

func (c *Client) endpoint(path string, websocketScheme bool) string {
	u := *c.base
	if websocketScheme {
		switch u.Scheme {
		case "http":
			u.Scheme = "ws"
		case "https":
			u.Scheme = "wss"
		}
	} else {
		switch u.Scheme {
		case "ws":
			u.Scheme = "http"
		case "wss":
			u.Scheme = "https"
		}
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String()
}

// Connect dials the chat websocket, retrying with exponential backoff.
// Handshake rejections (4xx) are not retried.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	target := c.endpoint("/ws/chat/"+url.PathEscape(c.clientID), true)
	attempt := 0
	op := func() error {
		attempt++
		conn, resp, err := c.dialer.DialContext(ctx, target, nil)
		if err != nil {
			if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(fmt.Errorf("connect %s: %w (status %d)", target, err, resp.StatusCode))
			}
			logging.Debug().Err(err).Int("attempt", attempt).Str("url", target).Msg("connect failed")
			return fmt.Errorf("connect %s: %w", target, err)
		}
		c.conn = conn
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(c.backoff(), ctx))
}

// Send submits text as one user turn and reads the streamed reply. onChunk,
// if set, is called for every chunk as it arrives. The full reply is
// returned once the end frame is read.
//
// A broken connection is redialed once before the message is written. An
// error frame is returned as *FrameError; the connection is dropped and the
// next Send reconnects to the same conversation.
func (c *Client) Send(ctx context.Context, text string, onChunk func(string)) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return "", err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		// The server may have closed an idle connection; retry on a fresh one.
		c.dropLocked()
		if err := c.connectLocked(ctx); err != nil {
			return "", err
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
			c.dropLocked()
			return "", fmt.Errorf("send: %w", err)
		}
	}

	var reply strings.Builder
	started := false
	for {
		f, err := c.readFrameLocked(ctx)
		if err != nil {
			c.dropLocked()
			return reply.String(), err
		}
		switch {
		case f.IsError():
			c.dropLocked()
			return reply.String(), &FrameError{Message: f.Error}
		case f.Type == types.FrameStart:
			started = true
		case f.Type == types.FrameChunk:
			if !started {
				logging.Warn().Msg("chunk before start frame")
			}
			reply.WriteString(f.Content)
			if onChunk != nil {
				onChunk(f.Content)
			}
		case f.Type == types.FrameEnd:
			return reply.String(), nil
		default:
			logging.Warn().Str("type", string(f.Type)).Msg("ignoring unknown frame")
		}
	}
}

func (c *Client) readFrameLocked(ctx context.Context) (types.Frame, error) {
	var deadline time.Time
	if c.cfg.ReplyTimeout > 0 {
		deadline = time.Now().Add(c.cfg.ReplyTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	conn := c.conn
	_ = conn.SetReadDeadline(deadline)

	// Cancelling ctx unblocks the read by closing the connection.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_, data, err := conn.ReadMessage()
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			err = cerr
		}
		return types.Frame{}, fmt.Errorf("read reply: %w", err)
	}
	var f types.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return types.Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

func (c *Client) dropLocked() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close()
	c.conn = nil
}

// DeleteSession asks the server to forget the conversation of clientID.
// It returns the server's message, or ErrNotFound.
func (c *Client) DeleteSession(ctx context.Context, clientID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.endpoint("/api/sessions/"+url.PathEscape(clientID), false), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("delete session: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	switch resp.StatusCode {
	case http.StatusOK:
		return body.Message, nil
	case http.StatusNotFound:
		return body.Message, fmt.Errorf("%w: %s", ErrNotFound, clientID)
	default:
		return body.Message, fmt.Errorf("delete session: unexpected status %d", resp.StatusCode)
	}
}

// ListSessions returns the conversations the server holds.
func (c *Client) ListSessions(ctx context.Context) ([]registry.Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/sessions", false), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list sessions: unexpected status %d", resp.StatusCode)
	}

	var infos []registry.Info
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return infos, nil
}

// Clear deletes the current conversation and switches to a new client
// identifier. The next Send connects under the new identifier. A
// conversation the server no longer has is not an error.
func (c *Client) Clear(ctx context.Context) (string, error) {
	old := c.ClientID()
	msg, err := c.DeleteSession(ctx, old)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()
	next := NewClientID()
	if next == old {
		next += "-1"
	}
	c.clientID = next
	return msg, nil
}

// Close closes the connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.dropLocked()
	return nil
}
