package chat

import "errors"

// Rejection errors for room and message operations. These are recoverable:
// they are reported back to the originating connection only and never
// affect other room members.
var (
	// ErrInvalidRoomName rejects joins naming an empty room.
	ErrInvalidRoomName = errors.New("room name cannot be empty")
	// ErrEmptyMessage rejects messages that are empty after trimming
	// surrounding whitespace.
	ErrEmptyMessage = errors.New("message text cannot be empty")
	// ErrNotMember rejects submissions from connections that are not
	// currently members of the target room.
	ErrNotMember = errors.New("sender is not a member of the room")
)

// Message is a chat message accepted by the relay. It is immutable once
// created. Seq is strictly increasing per room and assigned at append
// time; it is the ordering and de-duplication key, so clients never need
// to match on (time, sender, text) heuristics.
//
// The JSON shape is the wire format delivered to clients: Time is epoch
// milliseconds of the server clock at append time.
type Message struct {
	Sender   string `json:"sender"`
	SenderID string `json:"-"`
	Text     string `json:"message"`
	Room     string `json:"room"`
	Time     int64  `json:"time"`
	Seq      uint64 `json:"seq"`
}
