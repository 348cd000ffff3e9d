package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func requestWithOrigin(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestCheckOriginAllowList(t *testing.T) {
	defer SetConfig(nil)
	SetConfig(&Config{AllowedOrigins: []string{"https://chat.example.com"}})

	assert.True(t, checkOrigin(requestWithOrigin("https://chat.example.com")))
	assert.True(t, checkOrigin(requestWithOrigin("HTTPS://CHAT.EXAMPLE.COM")))
	assert.False(t, checkOrigin(requestWithOrigin("https://evil.example.com")))
	assert.False(t, checkOrigin(requestWithOrigin("")))
}

func TestCheckOriginWildcard(t *testing.T) {
	defer SetConfig(nil)
	SetConfig(&Config{AllowedOrigins: []string{"*"}})

	assert.True(t, checkOrigin(requestWithOrigin("https://anywhere.example.com")))
	assert.True(t, checkOrigin(requestWithOrigin("http://localhost:3000")))

	// The wildcard still requires a parseable Origin header.
	assert.False(t, checkOrigin(requestWithOrigin("not a url")))
	assert.False(t, checkOrigin(requestWithOrigin("")))
}

func TestNormalizeOriginsSkipsInvalidEntries(t *testing.T) {
	normalized, allowAll := normalizeOrigins([]string{
		"https://chat.example.com",
		"   ",
		"no-scheme.example.com",
		"*",
	})

	assert.True(t, allowAll)
	assert.Equal(t, []string{"https://chat.example.com"}, normalized)
}
