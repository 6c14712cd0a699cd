package event

// SessionData is the payload of session.* events.
type SessionData struct {
	ClientID string `json:"clientID"`
	// Reason is set on session.evicted ("idle" or "capacity").
	Reason string `json:"reason,omitempty"`
}

// ClientData is the payload of client.* events.
type ClientData struct {
	ClientID string `json:"clientID"`
	ConnID   string `json:"connID"`
}

// StreamData is the payload of stream.* events.
type StreamData struct {
	ClientID  string `json:"clientID"`
	ConnID    string `json:"connID"`
	Fragments int    `json:"fragments"`
	Bytes     int    `json:"bytes"`
	Error     string `json:"error,omitempty"`
}
