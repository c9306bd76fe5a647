// Package events contains the message contracts of the live checking
// WebSocket at GET /ws.
package events

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Client to server
	MessageTypeCheck MessageType = "check"

	// Server to client
	MessageTypeConnected MessageType = "connected"
	MessageTypeResult    MessageType = "result"
	MessageTypeError     MessageType = "error"
)

// BaseMessage represents the base structure for all WebSocket messages
type BaseMessage struct {
	ID        string      `json:"id,omitempty"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// ClientMessage is one inbound frame. A frame that is not a JSON object is
// treated as the text to check. ID is echoed back on the reply.
type ClientMessage struct {
	ID             string      `json:"id,omitempty"`
	Type           MessageType `json:"type,omitempty"`
	Text           string      `json:"text"`
	MaxSuggestions int         `json:"max_suggestions,omitempty"`
	Locale         string      `json:"locale,omitempty"`
}

// WebSocketMessage is one outbound frame. Data holds a CheckResponse for
// results, problem details for errors and a ConnectedData on connect.
type WebSocketMessage struct {
	BaseMessage
	Data interface{} `json:"data,omitempty"`
}

// ConnectedData greets a new session
type ConnectedData struct {
	SessionID string `json:"session_id"`
	Language  string `json:"language"`
	Kind      string `json:"kind"`
}
