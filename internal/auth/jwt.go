package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// claims mirrors the token payload minted by the identity service: the
// user id and username, plus the registered expiry fields.
type claims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HMAC-SHA256 signed bearer tokens issued by the
// identity service.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier that validates tokens against the
// given shared secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify parses and validates the credential. The "Bearer " prefix is
// accepted and stripped so callers may pass the Authorization header value
// unmodified.
func (v *JWTVerifier) Verify(_ context.Context, credential string) (Identity, error) {
	credential = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(credential), "Bearer "))
	if credential == "" {
		return Identity{}, ErrInvalidCredential
	}

	token, err := jwt.ParseWithClaims(credential, &claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidCredential
	}
	if c.ID == "" || c.Username == "" {
		return Identity{}, fmt.Errorf("%w: token missing identity claims", ErrInvalidCredential)
	}

	return Identity{UserID: c.ID, Username: c.Username}, nil
}
