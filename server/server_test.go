package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-relay/auth"
	"chat-relay/moderation"
)

func newTestServer(t *testing.T) (*Server, *testRelay) {
	t.Helper()

	relay := newTestRelay(t)
	moderator, err := moderation.NewModerator(nil, '*')
	require.NoError(t, err)

	srv := NewServer(slog.Default(), "127.0.0.1:0", 64,
		relay.registry, relay.gateway, nil, relay.history,
		&moderator, relay.monitor, nil,
		auth.NewTokenService("test-secret"), time.Hour)
	return srv, relay
}

func TestServer_Token_Issues_Valid_Token(t *testing.T) {
	req := require.New(t)
	srv, relay := newTestServer(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/token",
		strings.NewReader(`{"userId":"u1","username":"alice"}`))
	srv.handleToken(w, r)

	req.Equal(http.StatusOK, w.Code)
	var body map[string]string
	req.NoError(json.Unmarshal(w.Body.Bytes(), &body))

	claims, err := srv.tokens.Validate(body["token"])
	req.NoError(err)
	req.Equal("u1", claims.UserID)
	req.Equal("alice", claims.Username)

	// Issuance recorded the principal, so presence writes resolve it
	req.NoError(relay.gateway.SetOnline(context.Background(), "u1", true))
}

func TestServer_Token_Rejects_Incomplete_Request(t *testing.T) {
	req := require.New(t)
	srv, _ := newTestServer(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/token",
		strings.NewReader(`{"userId":"u1"}`))
	srv.handleToken(w, r)
	req.Equal(http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/api/token",
		strings.NewReader(`not json`))
	srv.handleToken(w, r)
	req.Equal(http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/api/token", nil)
	srv.handleToken(w, r)
	req.Equal(http.StatusMethodNotAllowed, w.Code)
}
