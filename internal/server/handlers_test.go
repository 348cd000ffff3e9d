package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chattr-project/relay/internal/auth"
	"github.com/chattr-project/relay/internal/chat"
)

var integrationSecret = []byte("integration-test-secret")

func mintToken(t *testing.T, username string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":       "uid-" + username,
		"username": username,
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(integrationSecret)
	require.NoError(t, err)
	return signed
}

func newTestRelay(t *testing.T) (*Relay, *httptest.Server) {
	t.Helper()

	SetConfig(&Config{AllowedOrigins: []string{"*"}})
	t.Cleanup(func() { SetConfig(nil) })

	verifier := auth.NewJWTVerifier(integrationSecret)
	registry := chat.NewRegistry(0)
	relay := NewRelay(verifier, registry, chat.NewEngine(registry))

	srv := httptest.NewServer(SetupRoutes(relay))
	t.Cleanup(srv.Close)
	return relay, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// dial opens an authenticated websocket connection; the token is carried in
// the Authorization header unless rawQuery moves it to the URL.
func dial(t *testing.T, srv *httptest.Server, header http.Header, rawQuery string) *websocket.Conn {
	t.Helper()

	url := wsURL(srv)
	if rawQuery != "" {
		url += "?" + rawQuery
	}
	if header == nil {
		header = http.Header{}
	}
	header.Set("Origin", srv.URL)

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type wireEvent struct {
	Event    string         `json:"event"`
	Messages []chat.Message `json:"messages"`
	Message  chat.Message   `json:"message"`
	Error    string         `json:"error"`
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt wireEvent
	require.NoError(t, json.Unmarshal(raw, &evt))
	return evt
}

func writeEvent(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := newTestRelay(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "chattr relay is running!", string(body))
}

func TestHandshakeRejectsMissingCredential(t *testing.T) {
	_, srv := newTestRelay(t)

	header := http.Header{}
	header.Set("Origin", srv.URL)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandshakeRejectsInvalidToken(t *testing.T) {
	_, srv := newTestRelay(t)

	header := http.Header{}
	header.Set("Origin", srv.URL)
	header.Set("Authorization", "Bearer not-a-real-token")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandshakeRejectsDisallowedOrigin(t *testing.T) {
	SetConfig(&Config{AllowedOrigins: []string{"https://chat.example.com"}})
	t.Cleanup(func() { SetConfig(nil) })

	verifier := auth.NewJWTVerifier(integrationSecret)
	registry := chat.NewRegistry(0)
	relay := NewRelay(verifier, registry, chat.NewEngine(registry))
	srv := httptest.NewServer(SetupRoutes(relay))
	t.Cleanup(srv.Close)

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	header.Set("Authorization", "Bearer "+mintToken(t, "alice"))
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.Error(t, err)
	require.Nil(t, conn)
	if resp != nil {
		_ = resp.Body.Close()
	}
}

func TestRoomConversation(t *testing.T) {
	relay, srv := newTestRelay(t)

	aliceHeader := http.Header{}
	aliceHeader.Set("Authorization", "Bearer "+mintToken(t, "alice"))
	alice := dial(t, srv, aliceHeader, "")

	// Alice joins an empty room and gets an empty replay.
	writeEvent(t, alice, `{"event":"joinRoom","room":"general"}`)
	evt := readEvent(t, alice)
	assert.Equal(t, "chatHistory", evt.Event)
	assert.NotNil(t, evt.Messages)
	assert.Empty(t, evt.Messages)

	// Her first message comes back through fan-out with sequence 1.
	writeEvent(t, alice, `{"event":"sendMessage","data":{"room":"general","message":"hi"}}`)
	evt = readEvent(t, alice)
	assert.Equal(t, "receiveMessage", evt.Event)
	assert.Equal(t, "hi", evt.Message.Text)
	assert.Equal(t, "alice", evt.Message.Sender)
	assert.Equal(t, uint64(1), evt.Message.Seq)

	// Bob authenticates through the query parameter fallback and sees the
	// history on join.
	bob := dial(t, srv, nil, "token="+mintToken(t, "bob"))
	writeEvent(t, bob, `{"event":"joinRoom","room":"general"}`)
	evt = readEvent(t, bob)
	assert.Equal(t, "chatHistory", evt.Event)
	require.Len(t, evt.Messages, 1)
	assert.Equal(t, uint64(1), evt.Messages[0].Seq)
	assert.Equal(t, "hi", evt.Messages[0].Text)

	assert.Equal(t, 2, relay.SessionCount())

	// Alice's next message reaches both, exactly once each.
	writeEvent(t, alice, `{"event":"sendMessage","data":{"room":"general","message":"yo"}}`)
	for _, conn := range []*websocket.Conn{alice, bob} {
		evt = readEvent(t, conn)
		assert.Equal(t, "receiveMessage", evt.Event)
		assert.Equal(t, "yo", evt.Message.Text)
		assert.Equal(t, uint64(2), evt.Message.Seq)
	}
}

func TestSendBeforeJoinIsRejected(t *testing.T) {
	_, srv := newTestRelay(t)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+mintToken(t, "alice"))
	conn := dial(t, srv, header, "")

	writeEvent(t, conn, `{"event":"sendMessage","data":{"room":"general","message":"hi"}}`)
	evt := readEvent(t, conn)
	assert.Equal(t, "error", evt.Event)
	assert.Equal(t, chat.ErrNotMember.Error(), evt.Error)
}

func TestShutdownClosesSessions(t *testing.T) {
	relay, srv := newTestRelay(t)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+mintToken(t, "alice"))
	conn := dial(t, srv, header, "")
	writeEvent(t, conn, `{"event":"joinRoom","room":"general"}`)
	_ = readEvent(t, conn) // chatHistory

	require.NoError(t, relay.Shutdown(2*time.Second))
	assert.Equal(t, 0, relay.SessionCount())
}
