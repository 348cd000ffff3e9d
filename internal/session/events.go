package session

import (
	"encoding/json"

	"github.com/chattr-project/relay/internal/chat"
)

// Event names exchanged with clients.
const (
	EventJoinRoom       = "joinRoom"
	EventSendMessage    = "sendMessage"
	EventChatHistory    = "chatHistory"
	EventReceiveMessage = "receiveMessage"
	EventError          = "error"
)

// ClientEvent is the envelope for client -> server events.
type ClientEvent struct {
	Event string          `json:"event"`
	Room  string          `json:"room,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SendPayload is the data carried by a sendMessage event.
type SendPayload struct {
	Room string `json:"room"`
	Text string `json:"message"`
}

// HistoryEvent replays a room's recent messages once after a successful
// join, oldest first.
type HistoryEvent struct {
	Event    string         `json:"event"`
	Messages []chat.Message `json:"messages"`
}

// MessageEvent delivers one accepted message to a room member.
type MessageEvent struct {
	Event   string       `json:"event"`
	Message chat.Message `json:"message"`
}

// ErrorEvent reports a recoverable rejection to the originating connection.
type ErrorEvent struct {
	Event string `json:"event"`
	Error string `json:"error"`
}
