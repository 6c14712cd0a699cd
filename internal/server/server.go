// Package server provides the HTTP surface of the chat relay.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/issacpacheco/chat-stream-gemini/internal/config"
	"github.com/issacpacheco/chat-stream-gemini/internal/event"
	"github.com/issacpacheco/chat-stream-gemini/internal/logging"
	"github.com/issacpacheco/chat-stream-gemini/internal/registry"
	"github.com/issacpacheco/chat-stream-gemini/internal/relay"
	"github.com/issacpacheco/chat-stream-gemini/pkg/types"
)

// Config holds server configuration.
type Config struct {
	Hostname       string
	Port           int
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WebSocket      relay.WebSocketOptions
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Hostname:       "0.0.0.0",
		Port:           config.DefaultPort,
		AllowedOrigins: []string{"*"},
		ReadTimeout:    30 * time.Second,
		WebSocket: relay.WebSocketOptions{
			PingInterval:   30 * time.Second,
			WriteTimeout:   10 * time.Second,
			MaxMessageSize: 64 << 10,
		},
	}
}

// FromConfig builds a Config from the server section of the config file.
func FromConfig(sc types.ServerConfig) (*Config, error) {
	cfg := DefaultConfig()
	if sc.Hostname != "" {
		cfg.Hostname = sc.Hostname
	}
	if sc.Port > 0 {
		cfg.Port = sc.Port
	}
	if len(sc.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = sc.AllowedOrigins
	}

	var err error
	if cfg.WebSocket.PingInterval, err = config.Duration(sc.PingInterval, cfg.WebSocket.PingInterval); err != nil {
		return nil, fmt.Errorf("server.pingInterval: %w", err)
	}
	if cfg.WebSocket.WriteTimeout, err = config.Duration(sc.WriteTimeout, cfg.WebSocket.WriteTimeout); err != nil {
		return nil, fmt.Errorf("server.writeTimeout: %w", err)
	}
	return cfg, nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Hostname, strconv.Itoa(c.Port))
}

// Server is the HTTP server.
type Server struct {
	config   *Config
	router   *chi.Mux
	httpSrv  *http.Server
	registry *registry.Registry
	relay    *relay.Relay
	bus      *event.Bus
	upgrader websocket.Upgrader

	// ctx is the parent of every relay loop; Shutdown cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	// connMu orders conns.Add against the Wait in Shutdown.
	connMu  sync.Mutex
	closing bool
	conns   sync.WaitGroup
}

// New creates a new Server. bus may be nil, in which case /event only
// sends heartbeats.
func New(cfg *Config, reg *registry.Registry, rl *relay.Relay, bus *event.Bus) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		registry: reg,
		relay:    rl,
		bus:      bus,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln. It returns nil after Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.httpSrv = &http.Server{
		Handler:     s.router,
		ReadTimeout: s.config.ReadTimeout,
		BaseContext: func(net.Listener) context.Context { return s.ctx },
	}

	logging.Info().Str("addr", ln.Addr().String()).Msg("server listening")
	err := s.httpSrv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, ends every live chat connection and
// waits for their loops to return or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.connMu.Lock()
	s.closing = true
	s.connMu.Unlock()
	s.cancel()

	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

// trackConn registers a websocket connection with Shutdown. It reports
// false once shutdown has begun; otherwise the caller must call conns.Done.
func (s *Server) trackConn() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.closing {
		return false
	}
	s.conns.Add(1)
	return true
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
