// Package chat implements the room-broadcast core: room membership
// tracking, bounded per-room message history, and ordered fan-out of
// messages with server-assigned sequence numbers.
//
// All mutations to a single room's membership, sequence counter, and
// history buffer are serialized by that room's mutex, so sequence numbers
// are gap-free and a join's history replay is causally consistent with
// live fan-out. Different rooms never contend.
package chat
