package chat

import (
	"log"
	"strings"
	"time"
)

// Engine accepts new message events, assigns per-room sequence numbers,
// appends to history, and fans the message out to every current room
// member. It is the only component that mutates sequence counters and
// history, and it does so under the room's mutex so concurrent submits to
// the same room are linearized.
type Engine struct {
	registry *Registry
	now      func() time.Time
}

// NewEngine creates an engine operating on the given registry.
func NewEngine(registry *Registry) *Engine {
	return &Engine{registry: registry, now: time.Now}
}

// Submit validates and broadcasts a message from connID to roomName.
//
// The text is trimmed of surrounding whitespace and rejected with
// ErrEmptyMessage when nothing remains. Submissions from connections that
// are not current members of roomName are rejected with ErrNotMember,
// which also covers rooms that do not exist.
//
// The sender receives the same server-assigned message back through the
// fan-out path: there is no client-side provisional echo to reconcile.
// Delivery is best-effort; members whose outbox is full are evicted from
// the room rather than allowed to stall it.
func (e *Engine) Submit(connID, roomName, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}

	rm := e.registry.lookup(strings.TrimSpace(roomName))
	if rm == nil {
		return Message{}, ErrNotMember
	}

	rm.mu.Lock()
	sender, ok := rm.members[connID]
	if !ok {
		rm.mu.Unlock()
		return Message{}, ErrNotMember
	}

	rm.seq++
	identity := sender.Identity()
	msg := Message{
		Sender:   identity.Username,
		SenderID: identity.UserID,
		Text:     text,
		Room:     rm.name,
		Time:     e.now().UnixMilli(),
		Seq:      rm.seq,
	}
	rm.history.Append(msg)

	// Fan-out enqueueing happens under the room mutex so every member
	// observes messages in sequence order.
	var dead []string
	for id, member := range rm.members {
		if !member.Deliver(msg) {
			dead = append(dead, id)
		}
	}
	rm.mu.Unlock()

	if len(dead) > 0 {
		log.Printf("Evicting %d unreachable member(s) from room %q", len(dead), rm.name)
		e.registry.evict(rm, dead)
	}

	return msg, nil
}
