// Package auth verifies the bearer credentials presented at connection
// handshake and resolves them into the identity a session carries for its
// lifetime. Credential minting belongs to the external identity service;
// this package only validates what it issued.
package auth

import (
	"context"
	"errors"
)

// Verification errors. Both are fatal to the connection: no session is
// created when verification fails.
var (
	// ErrInvalidCredential is returned for missing, malformed, expired, or
	// mis-signed credentials.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrVerifyTimeout is returned when verification does not resolve
	// within the configured window.
	ErrVerifyTimeout = errors.New("credential verification timed out")
)

// Identity is a verified user identity. It is immutable once established
// for a session.
type Identity struct {
	UserID   string
	Username string
}

// Verifier resolves an opaque bearer credential into a verified Identity.
// Verify is called exactly once per connection, before any room operation
// is permitted, and must have no side effects on room or message state.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}
