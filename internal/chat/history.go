package chat

// DefaultHistoryLimit is the per-room history capacity used when no limit
// is configured.
const DefaultHistoryLimit = 100

// HistoryBuffer holds the bounded, ordered recent-message buffer for one
// room. When the buffer exceeds its capacity the oldest entries are
// evicted, so gaps only ever appear at the front.
//
// HistoryBuffer is not safe for concurrent use; the owning room serializes
// access alongside membership and sequence-counter updates.
type HistoryBuffer struct {
	capacity int
	messages []Message
}

func newHistoryBuffer(capacity int) *HistoryBuffer {
	if capacity <= 0 {
		capacity = DefaultHistoryLimit
	}
	return &HistoryBuffer{capacity: capacity}
}

// Append adds a message to the buffer, evicting the oldest entry when the
// buffer is full.
func (b *HistoryBuffer) Append(msg Message) {
	b.messages = append(b.messages, msg)
	if len(b.messages) > b.capacity {
		b.messages = b.messages[len(b.messages)-b.capacity:]
	}
}

// Snapshot returns a copy of the current buffer contents, oldest first.
// The copy never observes later appends.
func (b *HistoryBuffer) Snapshot() []Message {
	snapshot := make([]Message, len(b.messages))
	copy(snapshot, b.messages)
	return snapshot
}

// Len returns the number of buffered messages.
func (b *HistoryBuffer) Len() int {
	return len(b.messages)
}
