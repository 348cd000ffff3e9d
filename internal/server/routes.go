package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures and returns a router with all relay routes.
func SetupRoutes(relay *Relay) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ws", relay.WebSocketHandler).Methods(http.MethodGet)
	return r
}
