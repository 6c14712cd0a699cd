package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/issacpacheco/chat-stream-gemini/internal/event"
)

// SSEEvent is the wire form of a lifecycle event:
// {"id": "...", "type": "...", "time": "...", "properties": {...}}
type SSEEvent struct {
	ID         string          `json:"id,omitempty"`
	Type       event.EventType `json:"type"`
	Time       time.Time       `json:"time"`
	Properties json.RawMessage `json:"properties"`
}

// SSEHeartbeatInterval is the interval for SSE heartbeats.
var SSEHeartbeatInterval = 30 * time.Second

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

// newSSEWriter creates a new SSE writer.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	rc := http.NewResponseController(w)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

// writeEvent writes one SSE event and flushes it.
func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}

	// ResponseController reaches through middleware wrappers.
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}
	return nil
}

// writeHeartbeat writes an SSE heartbeat comment.
func (s *sseWriter) writeHeartbeat() error {
	if _, err := fmt.Fprint(s.w, ": heartbeat\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// events streams lifecycle events. Optional query parameters:
//
//	type      comma separated event types to include
//	clientID  only events about this client
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	var types []event.EventType
	if q := r.URL.Query().Get("type"); q != "" {
		for _, t := range strings.Split(q, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, event.EventType(t))
			}
		}
	}
	clientID := r.URL.Query().Get("clientID")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// A nil bus yields a nil channel: heartbeats only.
	var events <-chan event.Event
	if s.bus != nil {
		events, err = s.bus.Subscribe(r.Context(), types...)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, ErrCodeInternalError, err.Error())
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	if err := sse.writeEvent("message", SSEEvent{
		Type:       "server.connected",
		Time:       time.Now().UTC(),
		Properties: json.RawMessage(`{}`),
	}); err != nil {
		return
	}

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if clientID != "" && !aboutClient(e, clientID) {
				continue
			}
			data := SSEEvent{ID: e.ID, Type: e.Type, Time: e.Time, Properties: e.Data}
			if err := sse.writeEvent("message", data); err != nil {
				return
			}
		case <-ticker.C:
			if err := sse.writeHeartbeat(); err != nil {
				return
			}
		}
	}
}

// aboutClient reports whether e concerns clientID. Every payload type
// carries a clientID field.
func aboutClient(e event.Event, clientID string) bool {
	var probe struct {
		ClientID string `json:"clientID"`
	}
	if err := e.Decode(&probe); err != nil {
		return false
	}
	return probe.ClientID == clientID
}
