package chat

import (
	"strings"
	"sync"

	"github.com/chattr-project/relay/internal/auth"
)

// Receiver is the delivery endpoint for one live connection. Deliver must
// not block: it reports false when the message could not be queued, which
// marks the receiver as dead and evicts it from its room.
type Receiver interface {
	ID() string
	Identity() auth.Identity
	Deliver(msg Message) bool
}

// room owns the mutable state of one broadcast domain. Its mutex
// serializes membership changes, sequence assignment, history appends, and
// fan-out enqueueing relative to each other.
type room struct {
	name    string
	mu      sync.Mutex
	members map[string]Receiver
	seq     uint64
	history *HistoryBuffer
}

// Registry maps room names to their member sets and tracks which room each
// connection currently occupies. A connection occupies at most one room at
// a time; joining a new room implicitly leaves the previous one.
//
// Rooms are created lazily on first join and left dormant when emptied:
// their history and sequence counter survive so a later member still sees
// monotonic sequence numbers.
type Registry struct {
	mu           sync.RWMutex
	rooms        map[string]*room
	occupied     map[string]*room
	historyLimit int
}

// NewRegistry creates an empty registry whose rooms buffer up to
// historyLimit recent messages each. A non-positive limit falls back to
// DefaultHistoryLimit.
func NewRegistry(historyLimit int) *Registry {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Registry{
		rooms:        make(map[string]*room),
		occupied:     make(map[string]*room),
		historyLimit: historyLimit,
	}
}

// Join adds the member to roomName, implicitly leaving any room it
// currently occupies, and returns a point-in-time snapshot of the room's
// history. The snapshot is atomic with the membership change: a message
// broadcast concurrently with the join either appears in the snapshot or
// is delivered live, never both and never neither.
//
// Re-joining the occupied room is a membership no-op and returns a fresh
// snapshot.
func (r *Registry) Join(member Receiver, roomName string) ([]Message, error) {
	roomName = strings.TrimSpace(roomName)
	if roomName == "" {
		return nil, ErrInvalidRoomName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.occupied[member.ID()]
	if current != nil && current.name == roomName {
		current.mu.Lock()
		snapshot := current.history.Snapshot()
		current.mu.Unlock()
		return snapshot, nil
	}

	if current != nil {
		current.mu.Lock()
		delete(current.members, member.ID())
		current.mu.Unlock()
	}

	rm, ok := r.rooms[roomName]
	if !ok {
		rm = &room{
			name:    roomName,
			members: make(map[string]Receiver),
			history: newHistoryBuffer(r.historyLimit),
		}
		r.rooms[roomName] = rm
	}
	r.occupied[member.ID()] = rm

	rm.mu.Lock()
	rm.members[member.ID()] = member
	snapshot := rm.history.Snapshot()
	rm.mu.Unlock()

	return snapshot, nil
}

// Leave removes the connection from its current room's member set. It is a
// no-op for connections not in any room, and must be called on disconnect
// as well as on room switch.
func (r *Registry) Leave(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.occupied[connID]
	if rm == nil {
		return
	}
	delete(r.occupied, connID)

	rm.mu.Lock()
	delete(rm.members, connID)
	rm.mu.Unlock()
}

// MembersOf returns the connection ids currently in roomName, reflecting
// membership at the instant of the call.
func (r *Registry) MembersOf(roomName string) []string {
	r.mu.RLock()
	rm := r.rooms[strings.TrimSpace(roomName)]
	r.mu.RUnlock()
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	ids := make([]string, 0, len(rm.members))
	for id := range rm.members {
		ids = append(ids, id)
	}
	return ids
}

// CurrentRoom reports the room the connection occupies, if any.
func (r *Registry) CurrentRoom(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm := r.occupied[connID]
	if rm == nil {
		return "", false
	}
	return rm.name, true
}

// Replay returns the room's buffered history, oldest first. A room with no
// history yields an empty slice.
func (r *Registry) Replay(roomName string) []Message {
	r.mu.RLock()
	rm := r.rooms[strings.TrimSpace(roomName)]
	r.mu.RUnlock()
	if rm == nil {
		return []Message{}
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.history.Snapshot()
}

// lookup returns the named room without creating it.
func (r *Registry) lookup(roomName string) *room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomName]
}

// evict removes members from rm and clears their occupancy, unless they
// have already moved to a different room.
func (r *Registry) evict(rm *room, connIDs []string) {
	if len(connIDs) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rm.mu.Lock()
	for _, id := range connIDs {
		delete(rm.members, id)
	}
	rm.mu.Unlock()

	for _, id := range connIDs {
		if r.occupied[id] == rm {
			delete(r.occupied, id)
		}
	}
}
