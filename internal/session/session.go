// Package session implements the server-side state for one live client
// connection, from handshake to disconnect. A session mediates between the
// websocket transport and the chat core, enforcing the connection state
// machine: Connecting -> Authenticated -> InRoom -> Closed.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/chattr-project/relay/internal/auth"
	"github.com/chattr-project/relay/internal/chat"
)

// State is the lifecycle state of a session.
type State int32

// Session states. Closed is terminal; no operation other than Close is
// valid from it.
const (
	StateConnecting State = iota
	StateAuthenticated
	StateInRoom
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateInRoom:
		return "in-room"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrSessionClosed rejects operations attempted after disconnect.
	ErrSessionClosed = errors.New("session is closed")
	// ErrNotAuthenticated rejects room operations before verification.
	ErrNotAuthenticated = errors.New("session is not authenticated")
)

const sendBufferSize = 256

// Session is one live client connection. It implements chat.Receiver so
// the broadcast engine can deliver messages into its outbox.
type Session struct {
	id       string
	registry *chat.Registry
	engine   *chat.Engine
	limiter  *rateLimiter

	mu       sync.Mutex
	state    State
	identity auth.Identity
	room     string
	closed   bool
	send     chan []byte
}

// New creates a session in the Connecting state. The id must be unique per
// live connection.
func New(id string, registry *chat.Registry, engine *chat.Engine) *Session {
	return &Session{
		id:       id,
		registry: registry,
		engine:   engine,
		state:    StateConnecting,
		send:     make(chan []byte, sendBufferSize),
	}
}

// ID returns the session's connection id.
func (s *Session) ID() string {
	return s.id
}

// Identity returns the verified identity. It is the zero value until
// Authenticate succeeds and immutable afterwards.
func (s *Session) Identity() auth.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Room returns the name of the occupied room, empty when not in a room.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Authenticate installs the verified identity and moves the session from
// Connecting to Authenticated. It is called exactly once, after the
// credential check at handshake.
func (s *Session) Authenticate(identity auth.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateConnecting:
		s.identity = identity
		s.state = StateAuthenticated
		return nil
	case StateClosed:
		return ErrSessionClosed
	default:
		return fmt.Errorf("cannot authenticate a session in state %q", s.state)
	}
}

// HandleJoin joins the named room, implicitly leaving any current one, and
// queues the room's history replay for delivery. On rejection the session
// remains in its prior state.
func (s *Session) HandleJoin(roomName string) error {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return ErrSessionClosed
	case StateConnecting:
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	s.mu.Unlock()

	replay, err := s.registry.Join(s, roomName)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == StateClosed {
		// Disconnected while the join was in flight; undo the membership.
		s.mu.Unlock()
		s.registry.Leave(s.id)
		return ErrSessionClosed
	}
	s.room = strings.TrimSpace(roomName)
	s.state = StateInRoom
	s.mu.Unlock()

	s.enqueueEvent(HistoryEvent{Event: EventChatHistory, Messages: replay})
	return nil
}

// HandleSend submits a message to the named room. The sender's own copy
// arrives through the fan-out path like any other member's.
func (s *Session) HandleSend(roomName, text string) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.mu.Unlock()

	_, err := s.engine.Submit(s.id, roomName, text)
	return err
}

// Deliver queues a broadcast message for the client. It never blocks: a
// full outbox reports false, marking this session unreachable.
func (s *Session) Deliver(msg chat.Message) bool {
	payload, err := json.Marshal(MessageEvent{Event: EventReceiveMessage, Message: msg})
	if err != nil {
		log.Printf("Error marshaling message for session %s: %v", s.id, err)
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// HandleEvent dispatches one raw client event. Recoverable rejections are
// reported back to this connection only.
func (s *Session) HandleEvent(raw []byte) {
	var evt ClientEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		s.sendError("invalid event payload")
		return
	}

	switch evt.Event {
	case EventJoinRoom:
		if err := s.HandleJoin(evt.Room); err != nil {
			s.sendError(err.Error())
		}
	case EventSendMessage:
		if s.limiter != nil && !s.limiter.allow() {
			s.sendError("message rate limit exceeded")
			return
		}
		var payload SendPayload
		if err := json.Unmarshal(evt.Data, &payload); err != nil {
			s.sendError("invalid sendMessage payload")
			return
		}
		if err := s.HandleSend(payload.Room, payload.Text); err != nil {
			s.sendError(err.Error())
		}
	default:
		s.sendError("unknown event: " + evt.Event)
	}
}

// Close transitions the session to Closed, releases its room membership,
// and closes the outbox. It is idempotent. In-flight broadcasts already
// queued are not retracted.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = StateClosed
	s.room = ""
	close(s.send)
	s.mu.Unlock()

	s.registry.Leave(s.id)
}

// SendChan exposes the outbox for the write pump and for tests.
func (s *Session) SendChan() <-chan []byte {
	return s.send
}

func (s *Session) sendError(reason string) {
	s.enqueueEvent(ErrorEvent{Event: EventError, Error: reason})
}

func (s *Session) enqueueEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshaling event for session %s: %v", s.id, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- payload:
	default:
		log.Printf("Dropping event for session %s: outbox full", s.id)
	}
}
