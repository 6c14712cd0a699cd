package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/", s.health)

	// Chat websocket
	r.Get("/ws/chat/{clientID}", s.chatSocket)

	// Session administration
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Delete("/{clientID}", s.deleteSession)
	})

	// Lifecycle events (SSE)
	r.Get("/event", s.events)
}
