// Package server exposes the chat relay over HTTP.
//
// # Endpoints
//
//   - GET /                          health check: {"status":"ok","message":"..."}
//   - GET /ws/chat/{clientID}        websocket chat; one relay loop per connection
//   - GET /api/sessions              registered conversations
//   - DELETE /api/sessions/{clientID} drop a conversation: 200 or 404 {"message":"..."}
//   - GET /event                     lifecycle events as Server-Sent Events
//
// # Websocket protocol
//
// Each text message the client sends is one user turn. The server answers
// with a start frame, one chunk frame per fragment and an end frame:
//
//	{"type":"start"}
//	{"type":"chunk","content":"..."}
//	{"type":"end"}
//
// A failure is reported once as {"error":"..."} and the connection is
// closed. The conversation survives disconnects and failures; only
// DELETE /api/sessions/{clientID} removes it.
//
// # Shutdown
//
// Shutdown cancels the context every relay loop runs under, so live chat
// connections are closed instead of holding the process open.
package server
