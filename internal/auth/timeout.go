package auth

import (
	"context"
	"time"
)

// TimeoutVerifier bounds the verification of another Verifier so a stalled
// identity check can never hold a handshake open indefinitely.
type TimeoutVerifier struct {
	inner   Verifier
	timeout time.Duration
}

// NewTimeoutVerifier wraps inner so that verification taking longer than
// timeout fails with ErrVerifyTimeout.
func NewTimeoutVerifier(inner Verifier, timeout time.Duration) *TimeoutVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TimeoutVerifier{inner: inner, timeout: timeout}
}

type verifyResult struct {
	identity Identity
	err      error
}

// Verify runs the inner verification and enforces the configured window.
func (v *TimeoutVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	results := make(chan verifyResult, 1)
	go func() {
		identity, err := v.inner.Verify(ctx, credential)
		results <- verifyResult{identity: identity, err: err}
	}()

	select {
	case res := <-results:
		return res.identity, res.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return Identity{}, ErrVerifyTimeout
		}
		return Identity{}, ctx.Err()
	}
}
