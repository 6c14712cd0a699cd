package providertest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// ServerConfig scripts the replies of a Server.
type ServerConfig struct {
	// Responses maps a lowercase substring of the last user message to a reply.
	Responses map[string]string
	// Fallback is used when nothing in Responses matches.
	Fallback string
	// Lag is slept before answering.
	Lag time.Duration
	// Status, when non-zero, is returned instead of a reply.
	Status int
}

// Request records an incoming request for verification.
type Request struct {
	Timestamp time.Time
	Path      string
	Body      map[string]any
	Headers   http.Header
}

// Server is an HTTP server that mimics the OpenAI chat completions API
// (which Gemini also exposes) and the Anthropic messages API.
type Server struct {
	server *httptest.Server
	config ServerConfig

	mu       sync.Mutex
	requests []Request
}

// NewServer starts a mock LLM server.
func NewServer(config ServerConfig) *Server {
	s := &Server{config: config}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", s.handleOpenAI)
	mux.HandleFunc("/chat/completions", s.handleOpenAI)
	mux.HandleFunc("/v1/messages", s.handleAnthropic)

	s.server = httptest.NewServer(mux)
	return s
}

// URL returns the server's base URL.
func (s *Server) URL() string {
	return s.server.URL
}

// Close shuts down the server.
func (s *Server) Close() {
	s.server.Close()
}

// Requests returns all recorded requests.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return nil, false
	}
	defer r.Body.Close()

	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return nil, false
	}

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Timestamp: time.Now(),
		Path:      r.URL.Path,
		Body:      req,
		Headers:   r.Header.Clone(),
	})
	s.mu.Unlock()

	if s.config.Lag > 0 {
		time.Sleep(s.config.Lag)
	}
	if s.config.Status != 0 {
		http.Error(w, `{"error":{"message":"scripted failure"}}`, s.config.Status)
		return nil, false
	}
	return req, true
}

func (s *Server) handleOpenAI(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	reply := s.findResponse(lastUserPrompt(req))

	if stream, _ := req["stream"].(bool); !stream {
		writeJSON(w, map[string]any{
			"id":      "chatcmpl-mock",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   req["model"],
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
		})
		return
	}

	flusher := startSSE(w)
	if flusher == nil {
		return
	}

	chunk := func(delta map[string]any, finish any) {
		data, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-mock",
			"object":  "chat.completion.chunk",
			"created": time.Now().Unix(),
			"model":   req["model"],
			"choices": []map[string]any{{"index": 0, "delta": delta, "finish_reason": finish}},
		})
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	chunk(map[string]any{"role": "assistant"}, nil)
	for _, word := range splitWords(reply) {
		chunk(map[string]any{"content": word}, nil)
	}
	chunk(map[string]any{}, "stop")
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) handleAnthropic(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	reply := s.findResponse(lastUserPrompt(req))

	if stream, _ := req["stream"].(bool); !stream {
		writeJSON(w, map[string]any{
			"id":          "msg_mock",
			"type":        "message",
			"role":        "assistant",
			"model":       req["model"],
			"stop_reason": "end_turn",
			"content":     []map[string]any{{"type": "text", "text": reply}},
			"usage":       map[string]any{"input_tokens": 10, "output_tokens": 10},
		})
		return
	}

	flusher := startSSE(w)
	if flusher == nil {
		return
	}

	send := func(event string, payload map[string]any) {
		data, _ := json.Marshal(payload)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	send("message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id": "msg_mock", "type": "message", "role": "assistant", "model": req["model"],
			"content": []any{}, "usage": map[string]any{"input_tokens": 10, "output_tokens": 0},
		},
	})
	send("content_block_start", map[string]any{
		"type": "content_block_start", "index": 0,
		"content_block": map[string]any{"type": "text", "text": ""},
	})
	for _, word := range splitWords(reply) {
		send("content_block_delta", map[string]any{
			"type": "content_block_delta", "index": 0,
			"delta": map[string]any{"type": "text_delta", "text": word},
		})
	}
	send("content_block_stop", map[string]any{"type": "content_block_stop", "index": 0})
	send("message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": "end_turn"},
		"usage": map[string]any{"output_tokens": 10},
	})
	send("message_stop", map[string]any{"type": "message_stop"})
}

func (s *Server) findResponse(prompt string) string {
	prompt = strings.ToLower(strings.TrimSpace(prompt))
	for key, resp := range s.config.Responses {
		if strings.Contains(prompt, strings.ToLower(key)) {
			return resp
		}
	}
	return s.config.Fallback
}

// lastUserPrompt extracts the last user message; content may be a string
// or a list of text blocks.
func lastUserPrompt(req map[string]any) string {
	messages, _ := req["messages"].([]any)
	for i := len(messages) - 1; i >= 0; i-- {
		msg, ok := messages[i].(map[string]any)
		if !ok || msg["role"] != "user" {
			continue
		}
		switch content := msg["content"].(type) {
		case string:
			return content
		case []any:
			for _, item := range content {
				if block, ok := item.(map[string]any); ok && block["type"] == "text" {
					text, _ := block["text"].(string)
					return text
				}
			}
		}
	}
	return ""
}

func splitWords(s string) []string {
	return strings.SplitAfter(s, " ")
}

func startSSE(w http.ResponseWriter) http.Flusher {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return nil
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return flusher
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
