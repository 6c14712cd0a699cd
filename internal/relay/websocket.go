package relay

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/issacpacheco/chat-stream-gemini/internal/logging"
	"github.com/issacpacheco/chat-stream-gemini/pkg/types"
)

// WebSocketOptions tunes a WebSocketConn. Zero values disable the
// corresponding limit.
type WebSocketOptions struct {
	// PingInterval is how often pings are sent. The peer must answer
	// within two intervals or reads fail.
	PingInterval time.Duration
	// WriteTimeout bounds each write.
	WriteTimeout time.Duration
	// MaxMessageSize limits inbound message size in bytes.
	MaxMessageSize int64
}

// WebSocketConn adapts a gorilla websocket to Conn. Writes are serialized
// so frames and pings never interleave.
type WebSocketConn struct {
	conn *websocket.Conn
	opts WebSocketOptions

	mu        sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketConn wraps conn and starts its keepalive, if configured.
func NewWebSocketConn(conn *websocket.Conn, opts WebSocketOptions) *WebSocketConn {
	c := &WebSocketConn{conn: conn, opts: opts, done: make(chan struct{})}

	if opts.MaxMessageSize > 0 {
		conn.SetReadLimit(opts.MaxMessageSize)
	}
	if opts.PingInterval > 0 {
		pongWait := 2 * opts.PingInterval
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go c.pingLoop()
	}
	return c
}

func (c *WebSocketConn) pingLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, c.deadline())
			c.mu.Unlock()
			if err != nil {
				logging.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

func (c *WebSocketConn) deadline() time.Time {
	if c.opts.WriteTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.opts.WriteTimeout)
}

// ReadText returns the next text message. Binary messages are dropped.
func (c *WebSocketConn) ReadText() (string, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if kind == websocket.TextMessage {
			return string(data), nil
		}
		logging.Debug().Int("len", len(data)).Msg("dropping binary message")
	}
}

// WriteFrame writes f as a JSON text message.
func (c *WebSocketConn) WriteFrame(f types.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(c.deadline()); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close message and closes the socket. It is safe to call
// more than once.
func (c *WebSocketConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.mu.Unlock()

		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// IsNormalClose reports whether err is an orderly end of the connection
// rather than a transport fault.
func IsNormalClose(err error) bool {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	switch ce.Code {
	case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
		return true
	}
	return false
}
