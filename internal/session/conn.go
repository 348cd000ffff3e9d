package session

import (
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

// Limits carries the per-connection transport limits from server
// configuration.
type Limits struct {
	MaxMessageSize int64
	RateBurst      int
	RateInterval   time.Duration
}

// Run binds the session to a websocket connection and services it until
// disconnect. It blocks until both pumps have exited; the session is
// Closed by then.
func (s *Session) Run(conn *websocket.Conn, limits Limits) {
	if limits.MaxMessageSize > 0 {
		conn.SetReadLimit(limits.MaxMessageSize)
	}
	s.limiter = newRateLimiter(limits.RateBurst, limits.RateInterval)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writePump(conn)
	}()
	go func() {
		defer wg.Done()
		s.readPump(conn, limits.MaxMessageSize)
	}()
	wg.Wait()
}

// readPump reads client events until the connection drops, then tears the
// session down so its room membership is promptly released.
func (s *Session) readPump(conn *websocket.Conn, maxMessageSize int64) {
	defer func() {
		s.Close()
		if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection for session %s: %v", s.id, err)
		}
	}()

	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Error setting read deadline for session %s: %v", s.id, err)
	}
	conn.SetPongHandler(func(string) error {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Error setting read deadline in pong handler for session %s: %v", s.id, err)
		}
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.logReadError(err, maxMessageSize)
			return
		}
		s.HandleEvent(raw)
	}
}

func (s *Session) logReadError(err error, maxMessageSize int64) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("Session %s sent a message exceeding %d bytes", s.id, maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Printf("Session %s disconnected: %v", s.id, err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		log.Printf("Session %s connection closed: %v", s.id, err)
	default:
		log.Printf("Websocket read error for session %s: %v", s.id, err)
	}
}

// writePump drains the outbox to the connection and keeps it alive with
// pings. It exits when the outbox is closed or a write fails.
func (s *Session) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in write pump for session %s: %v", s.id, err)
		}
	}()

	for {
		select {
		case payload, ok := <-s.send:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Printf("Error setting write deadline for session %s: %v", s.id, err)
				return
			}
			if !ok {
				if err := conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
					log.Printf("Error writing close message for session %s: %v", s.id, err)
				}
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error writing message for session %s: %v", s.id, err)
				}
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Printf("Error setting write deadline for ping to session %s: %v", s.id, err)
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error writing ping for session %s: %v", s.id, err)
				}
				return
			}
		}
	}
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
