// Command relay starts the chattr real-time chat relay.
//
// Clients connect over WebSocket with a bearer token minted by the
// identity service, join a room, receive its recent history, and exchange
// messages fanned out to the room's current members.
package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/chattr-project/relay/internal/auth"
	"github.com/chattr-project/relay/internal/chat"
	"github.com/chattr-project/relay/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Optional .env file for local development.
	_ = godotenv.Load()

	cfg := server.NewConfigFromEnv()
	server.SetConfig(cfg)

	verifier := auth.NewTimeoutVerifier(
		auth.NewJWTVerifier([]byte(cfg.JWTSecret)),
		cfg.AuthTimeout,
	)

	registry := chat.NewRegistry(cfg.HistoryLimit)
	engine := chat.NewEngine(registry)
	relay := server.NewRelay(verifier, registry, engine)

	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(relay))

	go func() {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe error: %v", err)
		}
	}()

	// Graceful shutdown on interrupt.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down relay...")

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}
	if err := relay.Shutdown(shutdownTimeout); err != nil {
		log.Printf("Error shutting down relay: %v", err)
	}

	log.Println("Relay exiting")
}
