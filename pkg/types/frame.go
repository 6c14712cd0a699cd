package types

import "encoding/json"

// FrameType tags an outbound frame.
type FrameType string

const (
	FrameStart FrameType = "start"
	FrameChunk FrameType = "chunk"
	FrameEnd   FrameType = "end"
)

// Frame is one message sent to a chat client over the websocket.
//
// Error frames carry no type tag: {"error": "..."}. Browser clients
// already key off the presence of "error", so the shape is kept.
type Frame struct {
	Type    FrameType `json:"type,omitempty"`
	Content string    `json:"content,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// StartFrame opens a streamed reply.
func StartFrame() Frame { return Frame{Type: FrameStart} }

// ChunkFrame carries one fragment of a streamed reply.
func ChunkFrame(content string) Frame { return Frame{Type: FrameChunk, Content: content} }

// EndFrame closes a streamed reply.
func EndFrame() Frame { return Frame{Type: FrameEnd} }

// ErrorFrame reports a failure; the connection is closed after it.
func ErrorFrame(msg string) Frame { return Frame{Error: msg} }

// IsError reports whether f is an error frame.
func (f Frame) IsError() bool { return f.Type == "" && f.Error != "" }

// MarshalJSON emits exactly the fields each frame kind defines, so a
// chunk always carries "content" even when it is empty.
func (f Frame) MarshalJSON() ([]byte, error) {
	switch f.Type {
	case FrameChunk:
		return json.Marshal(struct {
			Type    FrameType `json:"type"`
			Content string    `json:"content"`
		}{f.Type, f.Content})
	case "":
		return json.Marshal(struct {
			Error string `json:"error"`
		}{f.Error})
	default:
		return json.Marshal(struct {
			Type FrameType `json:"type"`
		}{f.Type})
	}
}
