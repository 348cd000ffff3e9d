// Package server implements the HTTP and WebSocket surface of the chattr
// relay.
//
// The implementation is organized into specialized files for configuration,
// the relay handler, origin policy, routing, and server lifecycle to keep
// the codebase maintainable and testable as the project grows.
package server
