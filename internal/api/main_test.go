package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"filetree-server/internal/auth"
	"filetree-server/internal/clock"
	"filetree-server/internal/config"
	"filetree-server/internal/database/memory"
	"filetree-server/internal/filetree"
	"filetree-server/internal/models"
	"filetree-server/internal/storage"
	"filetree-server/internal/websocket"

	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server  *Server
	handler http.Handler
	users   *memory.Users
	journal *memory.Journal
}

var testCfg = &config.Config{
	Server: config.ServerConfig{Addr: ":0"},
	JWT:    config.JWTConfig{Secret: "api_test_secret_value", TTL: time.Hour},
	Limits: config.LimitsConfig{MaxInlineContentBytes: 64, MaxUploadBytes: 1 << 20},
	CORS:   config.CORSConfig{AllowedOrigins: []string{"*"}},
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	blobs, err := storage.NewLocalStorage(t.TempDir(), nil)
	require.NoError(t, err)

	c := clock.NewManual(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	hub := websocket.NewHub(nil)
	users := memory.NewUsers()
	journal := memory.NewJournal(c, hub)
	svc, err := filetree.NewService(memory.NewStore(c), users, blobs,
		filetree.WithClock(c),
		filetree.WithEventSink(journal),
		filetree.WithLimits(filetree.Limits{
			MaxInlineContentBytes: testCfg.Limits.MaxInlineContentBytes,
			MaxUploadBytes:        testCfg.Limits.MaxUploadBytes,
		}),
	)
	require.NoError(t, err)

	server := NewServer(testCfg, svc, users, journal, hub, nil)
	return &testEnv{server: server, handler: server.Routes(), users: users, journal: journal}
}

type testUser struct {
	user  *models.User
	token string
}

func (e *testEnv) createUser(t *testing.T, username, password string) testUser {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	user, err := e.users.CreateUser(context.Background(), username, hash)
	require.NoError(t, err)
	token, err := auth.GenerateJWT(user, testCfg.JWT.Secret, testCfg.JWT.TTL)
	require.NoError(t, err)
	return testUser{user: user, token: token}
}

type requestOption func(*http.Request)

func withHeader(key, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func (e *testEnv) do(t *testing.T, method, path string, as *testUser, body any, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+as.token)
	}
	for _, opt := range opts {
		opt(req)
	}

	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}
