package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/issacpacheco/chat-stream-gemini/internal/chat"
	"github.com/issacpacheco/chat-stream-gemini/internal/logging"
	"github.com/issacpacheco/chat-stream-gemini/internal/relay"
	"github.com/issacpacheco/chat-stream-gemini/internal/registry"
)

const (
	healthMessage   = "El servidor está listo."
	deletedMessage  = "Historial borrado exitosamente"
	notFoundMessage = "Sesión de cliente no encontrada o ya borrada"
)

// health reports readiness. It has no side effects.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Message: healthMessage})
}

// chatSocket upgrades the request and runs the relay loop for clientID
// until the connection ends or the server shuts down.
func (s *Server) chatSocket(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "clientID required")
		return
	}

	if !s.trackConn() {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternalError, "server shutting down")
		return
	}
	defer s.conns.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		logging.Debug().Err(err).Str("clientID", clientID).Msg("websocket upgrade failed")
		return
	}

	conn := relay.NewWebSocketConn(ws, s.config.WebSocket)
	err = s.relay.Serve(s.ctx, conn, clientID)
	logging.Debug().Err(err).
		Str("clientID", clientID).
		Bool("failed", errors.Is(err, relay.ErrStreamFailure) || errors.Is(err, chat.ErrProviderUnavailable)).
		Msg("chat connection closed")
}

// deleteSession removes the conversation of clientID.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if !s.registry.Delete(clientID) {
		writeMessage(w, http.StatusNotFound, notFoundMessage)
		return
	}
	writeMessage(w, http.StatusOK, deletedMessage)
}

// listSessions returns every registered conversation, sorted by client ID.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.registry.List()
	if sessions == nil {
		sessions = []registry.Info{}
	}
	writeJSON(w, http.StatusOK, sessions)
}
