package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "aegis/internal/jwt_token"
	"aegis/internal/policy"
	"aegis/internal/policy/models"
	"aegis/internal/policy/service"
	"aegis/internal/policy/store/assignment"
	"aegis/internal/policy/store/version"
)

type memoryTx struct {
	store service.VersionStore
}

func (t *memoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store service.VersionStore) error) error {
	return fn(ctx, t.store)
}

type env struct {
	router      chi.Router
	jwt         *jwttoken.JWTService
	versions    *version.InMemoryStore
	assignments *assignment.InMemoryStore
	svc         *service.VersionService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := policy.NewRegistry(map[string]policy.NamespaceSpec{
		"articles":   {Label: "Articles", SupportedActions: []string{"read", "create", "publish"}},
		"categories": {Label: "Categories", SupportedActions: []string{"read", "manage"}},
	}, policy.WildcardPolicy{AllowNamespaceWildcard: true})

	versions := version.NewInMemoryStore()
	assignments := assignment.NewInMemoryStore(versions.GetDefault)
	svc := service.NewVersionService(
		versions,
		assignments,
		&memoryTx{store: versions},
		policy.NewCompiler(registry, logger),
		policy.NewEngine(logger),
		service.WithLogger(logger),
	)

	jwtSvc := jwttoken.NewJWTService("test-key", "aegis", "content-platform")
	h := New(svc, registry, logger, jwtSvc, nil)
	router := chi.NewRouter()
	h.Register(router)

	return &env{router: router, jwt: jwtSvc, versions: versions, assignments: assignments, svc: svc}
}

func (e *env) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	token, err := e.jwt.GenerateAccessToken("admin-1", "sess-1", nil, nil, time.Minute)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleSeal(t *testing.T) {
	e := newEnv(t)
	e.versions.SeedPolicy(models.Policy{ID: "pol-1", Name: "editor"})

	rec := e.request(t, http.MethodPost, "/admin/policies/pol-1/seal", sealRequest{
		Matrix: policy.Matrix{"articles": {"read": true, "create": true}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got versionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.VersionNumber)
	assert.True(t, got.IsDefault)
	assert.Equal(t, "admin-1", got.CreatedBy)
	assert.Contains(t, got.DocumentJSON, "articles:read")
}

func TestHandleSeal_ImpactConfirmationRequired(t *testing.T) {
	e := newEnv(t)
	e.versions.SeedPolicy(models.Policy{ID: "pol-1", Name: "editor"})
	e.assignments.BindPolicy("editor", "pol-1", "editor")

	rec := e.request(t, http.MethodPost, "/admin/policies/pol-1/seal", sealRequest{
		Matrix: policy.Matrix{"articles": {"read": true}},
	})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "impact confirmation required")

	rec = e.request(t, http.MethodPost, "/admin/policies/pol-1/seal", sealRequest{
		Matrix:        policy.Matrix{"articles": {"read": true}},
		ConfirmImpact: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestHandleSeal_Validation(t *testing.T) {
	e := newEnv(t)
	e.versions.SeedPolicy(models.Policy{ID: "pol-1", Name: "editor"})

	rec := e.request(t, http.MethodPost, "/admin/policies/pol-1/seal", sealRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRollback(t *testing.T) {
	e := newEnv(t)
	e.versions.SeedPolicy(models.Policy{ID: "pol-1", Name: "editor"})
	ctx := context.Background()

	v1, err := e.svc.Seal(ctx, "pol-1", policy.Matrix{"articles": {"read": true}}, false)
	require.NoError(t, err)
	_, err = e.svc.Seal(ctx, "pol-1", policy.Matrix{"articles": {"read": true, "publish": true}}, false)
	require.NoError(t, err)

	rec := e.request(t, http.MethodPost, "/admin/policies/pol-1/rollback", rollbackRequest{VersionID: v1.VersionID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got versionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, v1.VersionID, got.VersionID)
	assert.True(t, got.IsDefault)
}

func TestHandleRollback_ForeignVersion(t *testing.T) {
	e := newEnv(t)
	e.versions.SeedPolicy(models.Policy{ID: "pol-1", Name: "editor"})
	e.versions.SeedPolicy(models.Policy{ID: "pol-2", Name: "viewer"})

	v, err := e.svc.Seal(context.Background(), "pol-2", policy.Matrix{"articles": {"read": true}}, false)
	require.NoError(t, err)

	rec := e.request(t, http.MethodPost, "/admin/policies/pol-1/rollback", rollbackRequest{VersionID: v.VersionID})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleListVersionsAndMatrix(t *testing.T) {
	e := newEnv(t)
	e.versions.SeedPolicy(models.Policy{ID: "pol-1", Name: "editor"})
	_, err := e.svc.Seal(context.Background(), "pol-1", policy.Matrix{"articles": {"read": true}}, false)
	require.NoError(t, err)

	rec := e.request(t, http.MethodGet, "/admin/policies/pol-1/versions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var versions []versionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &versions))
	require.Len(t, versions, 1)

	rec = e.request(t, http.MethodGet, "/admin/policies/pol-1/matrix", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var matrix matrixResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &matrix))
	assert.True(t, matrix.Matrix["articles"]["read"])
	assert.False(t, matrix.Matrix["articles"]["publish"])
}

func TestHandleGetDefault_NotFound(t *testing.T) {
	e := newEnv(t)
	e.versions.SeedPolicy(models.Policy{ID: "pol-1", Name: "editor"})

	rec := e.request(t, http.MethodGet, "/admin/policies/pol-1/default", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRegistry(t *testing.T) {
	e := newEnv(t)

	rec := e.request(t, http.MethodGet, "/admin/policies/registry", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got registryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Namespaces, 2)
	assert.Equal(t, "articles", got.Namespaces[0].Namespace)
	assert.Equal(t, []string{"read", "create", "publish"}, got.Namespaces[0].Actions)
}

func TestHandleTestEvaluate(t *testing.T) {
	e := newEnv(t)
	e.versions.SeedPolicy(models.Policy{ID: "pol-1", Name: "editor"})
	e.assignments.BindPolicy("editor", "pol-1", "editor")
	e.assignments.AssignRole("user-9", "editor")
	_, err := e.svc.Seal(context.Background(), "pol-1", policy.Matrix{"articles": {"read": true}}, true)
	require.NoError(t, err)

	rec := e.request(t, http.MethodPost, "/admin/policies/test-evaluate", testEvaluateRequest{
		UserID: "user-9", Namespace: "articles", Action: "read",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got testEvaluateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Allowed)
	assert.Equal(t, "ALLOWED_BY_POLICY", got.Reason)
	assert.NotEmpty(t, got.MatchedStatements)
}

func TestUnauthenticatedRejected(t *testing.T) {
	e := newEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/policies/", nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
