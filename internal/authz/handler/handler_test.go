package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/authz"
	"aegis/internal/authz/remote"
	jwttoken "aegis/internal/jwt_token"
)

type stubRemote struct {
	mu    sync.Mutex
	calls int
	resp  remote.EvaluateResponse
}

func (s *stubRemote) Evaluate(_ context.Context, _ remote.EvaluateRequest) (remote.EvaluateResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.resp, nil
}

type env struct {
	router chi.Router
	jwt    *jwttoken.JWTService
	remote *stubRemote
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rem := &stubRemote{resp: remote.EvaluateResponse{Allowed: false, Reason: "DENIED_BY_DEFAULT"}}
	svc := authz.NewService(authz.NewResolver(), rem, authz.WithLogger(logger))

	jwtSvc := jwttoken.NewJWTService("test-key", "aegis", "content-platform")
	h := New(svc, logger, jwtSvc)
	router := chi.NewRouter()
	h.Register(router)
	return &env{router: router, jwt: jwtSvc, remote: rem}
}

func (e *env) evaluate(t *testing.T, token string, body evaluateRequest) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/authz/evaluate", bytes.NewReader(raw))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleEvaluate_TokenAllow(t *testing.T) {
	e := newEnv(t)
	token, err := e.jwt.GenerateAccessToken("user-1", "sess-1", []string{"articles:read"}, nil, time.Minute)
	require.NoError(t, err)

	rec := e.evaluate(t, token, evaluateRequest{Namespace: "articles", Action: "read"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got evaluateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Allowed)
	assert.Equal(t, "ALLOWED_BY_TOKEN", got.Reason)
	assert.Equal(t, "TOKEN", got.Source)
	assert.Equal(t, 0, e.remote.calls)
}

func TestHandleEvaluate_FallsThroughToRemote(t *testing.T) {
	e := newEnv(t)
	e.remote.resp = remote.EvaluateResponse{Allowed: true, Reason: "ALLOWED_BY_POLICY", MatchedPolicy: "editor"}
	token, err := e.jwt.GenerateAccessToken("user-1", "sess-1", nil, nil, time.Minute)
	require.NoError(t, err)

	rec := e.evaluate(t, token, evaluateRequest{Namespace: "articles", Action: "publish", ResourceID: "art-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var got evaluateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Allowed)
	assert.Equal(t, "REMOTE_AUTHORITY", got.Source)
	assert.Equal(t, "editor", got.MatchedPolicy)
	assert.Equal(t, "art-1", got.ResourceID)
	assert.Equal(t, 1, e.remote.calls)
}

func TestHandleEvaluate_Validation(t *testing.T) {
	e := newEnv(t)
	token, err := e.jwt.GenerateAccessToken("user-1", "sess-1", nil, nil, time.Minute)
	require.NoError(t, err)

	rec := e.evaluate(t, token, evaluateRequest{Namespace: "articles"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEvaluate_Unauthenticated(t *testing.T) {
	e := newEnv(t)
	rec := e.evaluate(t, "", evaluateRequest{Namespace: "articles", Action: "read"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
