// Package handler exposes the admin surface for managing policies: listing,
// matrix editing, sealing, rollback, and dry-run evaluation.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"aegis/internal/platform/middleware"
	"aegis/internal/policy"
	"aegis/internal/policy/models"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/httputil"
	"aegis/pkg/requestcontext"
)

// Handler handles policy administration endpoints.
type Handler struct {
	logger       *slog.Logger
	versions     VersionService
	registry     *policy.Registry
	jwtValidator middleware.JWTValidator
	adminGuard   func(http.Handler) http.Handler
}

// VersionService is the policy lifecycle surface the handler needs.
type VersionService interface {
	ListPolicies(ctx context.Context) ([]models.Policy, error)
	ListVersions(ctx context.Context, policyID string) ([]models.Version, error)
	GetDefault(ctx context.Context, policyID string) (models.Version, error)
	GetMatrix(ctx context.Context, policyID string) (policy.Matrix, error)
	Impact(ctx context.Context, policyID string) (models.Impact, error)
	Seal(ctx context.Context, policyID string, matrix policy.Matrix, confirmImpact bool) (models.Version, error)
	Rollback(ctx context.Context, policyID, versionID string) (models.Version, error)
	TestEvaluate(ctx context.Context, req policy.AccessRequest) (policy.AccessDecision, error)
}

// New creates a new policy admin Handler. adminGuard gates every route;
// pass the authorization guard for the admin namespace.
func New(
	versions VersionService,
	registry *policy.Registry,
	logger *slog.Logger,
	jwtValidator middleware.JWTValidator,
	adminGuard func(http.Handler) http.Handler) *Handler {
	return &Handler{
		logger:       logger,
		versions:     versions,
		registry:     registry,
		jwtValidator: jwtValidator,
		adminGuard:   adminGuard,
	}
}

// Register registers the policy admin routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		if h.adminGuard != nil {
			r.Use(h.adminGuard)
		}
		r.Route("/admin/policies", func(r chi.Router) {
			r.Get("/", h.handleListPolicies)
			r.Get("/registry", h.handleRegistry)
			r.Post("/test-evaluate", h.handleTestEvaluate)
			r.Route("/{policyID}", func(r chi.Router) {
				r.Get("/versions", h.handleListVersions)
				r.Get("/default", h.handleGetDefault)
				r.Get("/matrix", h.handleGetMatrix)
				r.Get("/impact", h.handleImpact)
				r.Post("/seal", h.handleSeal)
				r.Post("/rollback", h.handleRollback)
			})
		})
	})
}

func (h *Handler) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.versions.ListPolicies(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]policyResponse, 0, len(policies))
	for _, p := range policies {
		out = append(out, toPolicyResponse(p))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// handleRegistry describes the namespaces and actions the matrix editor can
// offer.
func (h *Handler) handleRegistry(w http.ResponseWriter, r *http.Request) {
	namespaces := make([]registryNamespace, 0)
	for _, ns := range h.registry.Namespaces() {
		actions, _ := h.registry.Actions(ns)
		namespaces = append(namespaces, registryNamespace{
			Namespace: ns,
			Label:     h.registry.Label(ns),
			Actions:   actions,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, registryResponse{Namespaces: namespaces})
}

func (h *Handler) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.versions.ListVersions(r.Context(), chi.URLParam(r, "policyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]versionResponse, 0, len(versions))
	for _, v := range versions {
		out = append(out, toVersionResponse(v))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetDefault(w http.ResponseWriter, r *http.Request) {
	v, err := h.versions.GetDefault(r.Context(), chi.URLParam(r, "policyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVersionResponse(v))
}

func (h *Handler) handleGetMatrix(w http.ResponseWriter, r *http.Request) {
	matrix, err := h.versions.GetMatrix(r.Context(), chi.URLParam(r, "policyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, matrixResponse{Matrix: matrix})
}

func (h *Handler) handleImpact(w http.ResponseWriter, r *http.Request) {
	impact, err := h.versions.Impact(r.Context(), chi.URLParam(r, "policyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, impactResponse{Roles: impact.Roles, Users: impact.Users})
}

func (h *Handler) handleSeal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	ctx = requestcontext.WithActorID(ctx, middleware.GetUserID(ctx))

	req, ok := httputil.DecodeAndPrepare[sealRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	v, err := h.versions.Seal(ctx, chi.URLParam(r, "policyID"), req.Matrix, req.ConfirmImpact)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			h.logger.WarnContext(ctx, "seal rejected",
				"policy_id", chi.URLParam(r, "policyID"),
				"request_id", requestID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toVersionResponse(v))
}

func (h *Handler) handleRollback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	ctx = requestcontext.WithActorID(ctx, middleware.GetUserID(ctx))

	req, ok := httputil.DecodeAndPrepare[rollbackRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	v, err := h.versions.Rollback(ctx, chi.URLParam(r, "policyID"), req.VersionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVersionResponse(v))
}

// handleTestEvaluate runs a dry-run evaluation for any principal. It answers
// "what would happen if user X tried this" without X being present.
func (h *Handler) handleTestEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[testEvaluateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	decision, err := h.versions.TestEvaluate(ctx, policy.AccessRequest{
		UserID:    req.UserID,
		Namespace: req.Namespace,
		Action:    req.Action,
		Resource:  req.Resource,
		Context:   req.Context,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, testEvaluateResponse{
		Allowed:           decision.Allowed,
		Reason:            string(decision.Reason),
		MatchedStatements: decision.MatchedStatements,
		AppliedPolicies:   decision.AppliedPolicies,
	})
}

func toPolicyResponse(p models.Policy) policyResponse {
	return policyResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
	}
}

func toVersionResponse(v models.Version) versionResponse {
	return versionResponse{
		VersionID:     v.VersionID,
		PolicyID:      v.PolicyID,
		VersionNumber: v.VersionNumber,
		IsDefault:     v.IsDefault,
		DocumentJSON:  v.DocumentJSON,
		CreatedAt:     v.CreatedAt,
		CreatedBy:     v.CreatedBy,
	}
}

type policyResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type versionResponse struct {
	VersionID     string    `json:"version_id"`
	PolicyID      string    `json:"policy_id"`
	VersionNumber int       `json:"version_number"`
	IsDefault     bool      `json:"is_default"`
	DocumentJSON  string    `json:"document_json"`
	CreatedAt     time.Time `json:"created_at"`
	CreatedBy     string    `json:"created_by,omitempty"`
}

type registryResponse struct {
	Namespaces []registryNamespace `json:"namespaces"`
}

type registryNamespace struct {
	Namespace string   `json:"namespace"`
	Label     string   `json:"label"`
	Actions   []string `json:"actions"`
}

type matrixResponse struct {
	Matrix policy.Matrix `json:"matrix"`
}

type impactResponse struct {
	Roles int `json:"roles"`
	Users int `json:"users"`
}

type sealRequest struct {
	Matrix        policy.Matrix `json:"matrix"`
	ConfirmImpact bool          `json:"confirm_impact"`
}

func (r sealRequest) Validate() error {
	if len(r.Matrix) == 0 {
		return dErrors.New(dErrors.CodeValidation, "matrix is required")
	}
	return nil
}

type rollbackRequest struct {
	VersionID string `json:"version_id"`
}

func (r rollbackRequest) Validate() error {
	if r.VersionID == "" {
		return dErrors.New(dErrors.CodeValidation, "version_id is required")
	}
	return nil
}

type testEvaluateRequest struct {
	UserID    string            `json:"user_id"`
	Namespace string            `json:"namespace"`
	Action    string            `json:"action"`
	Resource  string            `json:"resource,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
}

func (r testEvaluateRequest) Validate() error {
	if r.UserID == "" || r.Namespace == "" || r.Action == "" {
		return dErrors.New(dErrors.CodeValidation, "user_id, namespace and action are required")
	}
	return nil
}

type testEvaluateResponse struct {
	Allowed           bool     `json:"allowed"`
	Reason            string   `json:"reason"`
	MatchedStatements []string `json:"matched_statements,omitempty"`
	AppliedPolicies   []string `json:"applied_policies,omitempty"`
}
