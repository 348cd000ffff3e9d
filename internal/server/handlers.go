package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chattr-project/relay/internal/auth"
	"github.com/chattr-project/relay/internal/chat"
	"github.com/chattr-project/relay/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// Relay owns the live sessions and wires the transport layer to the
// verifier and the chat core.
type Relay struct {
	verifier auth.Verifier
	registry *chat.Registry
	engine   *chat.Engine

	mu       sync.Mutex
	sessions map[*session.Session]struct{}
	wg       sync.WaitGroup
}

// NewRelay creates a relay serving connections against the given verifier
// and chat core.
func NewRelay(verifier auth.Verifier, registry *chat.Registry, engine *chat.Engine) *Relay {
	return &Relay{
		verifier: verifier,
		registry: registry,
		engine:   engine,
		sessions: make(map[*session.Session]struct{}),
	}
}

// WebSocketHandler authenticates the handshake, upgrades the connection,
// and services the session until disconnect. Verification failures refuse
// the connection before any application event is processed.
func (rl *Relay) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	credential := bearerCredential(r)
	if credential == "" {
		http.Error(w, "Missing credential", http.StatusUnauthorized)
		return
	}

	identity, err := rl.verifier.Verify(r.Context(), credential)
	if err != nil {
		log.Printf("Rejected connection from %s: %v", r.RemoteAddr, err)
		http.Error(w, "Authentication failed", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	sess := session.New(uuid.NewString(), rl.registry, rl.engine)
	if err := sess.Authenticate(identity); err != nil {
		log.Printf("Error authenticating session for %s: %v", r.RemoteAddr, err)
		_ = conn.Close()
		return
	}

	rl.track(sess)
	defer rl.untrack(sess)

	log.Printf("Session %s connected as %q from %s", sess.ID(), identity.Username, r.RemoteAddr)

	cfg := currentConfig()
	sess.Run(conn, session.Limits{
		MaxMessageSize: cfg.MaxMessageSize,
		RateBurst:      cfg.RateLimit.Burst,
		RateInterval:   cfg.RateLimit.RefillInterval,
	})

	log.Printf("Session %s disconnected", sess.ID())
}

// bearerCredential extracts the bearer credential from the Authorization
// header, falling back to the token query parameter because browser
// WebSocket clients cannot set request headers.
func bearerCredential(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimSpace(header)
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func (rl *Relay) track(sess *session.Session) {
	rl.mu.Lock()
	rl.sessions[sess] = struct{}{}
	rl.mu.Unlock()
	rl.wg.Add(1)
}

func (rl *Relay) untrack(sess *session.Session) {
	rl.mu.Lock()
	delete(rl.sessions, sess)
	rl.mu.Unlock()
	rl.wg.Done()
}

// SessionCount returns the number of live sessions.
func (rl *Relay) SessionCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.sessions)
}

// Shutdown closes every live session and waits for their handlers to
// finish, or until the timeout is reached.
func (rl *Relay) Shutdown(timeout time.Duration) error {
	rl.mu.Lock()
	sessions := make([]*session.Session, 0, len(rl.sessions))
	for sess := range rl.sessions {
		sessions = append(sessions, sess)
	}
	rl.mu.Unlock()

	log.Printf("Closing %d active session(s)...", len(sessions))
	for _, sess := range sessions {
		sess.Close()
	}

	done := make(chan struct{})
	go func() {
		rl.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Relay shutdown completed")
		return nil
	case <-time.After(timeout):
		log.Println("Relay shutdown timeout reached, some sessions may still be draining")
		return fmt.Errorf("relay shutdown timed out after %s", timeout)
	}
}

// HealthHandler provides a simple health check endpoint that returns relay status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "chattr relay is running!")
}
