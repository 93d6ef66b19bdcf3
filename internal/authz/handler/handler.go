// Package handler exposes the authorization evaluation endpoint.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"aegis/internal/authz"
	"aegis/internal/platform/middleware"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/httputil"
)

// Handler handles authorization endpoints.
type Handler struct {
	logger       *slog.Logger
	authz        *authz.Service
	jwtValidator middleware.JWTValidator
}

// New creates a new authorization Handler.
func New(svc *authz.Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		authz:        svc,
		jwtValidator: jwtValidator,
	}
}

// Register registers the authorization routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Post("/authz/evaluate", h.handleEvaluate)
	})
}

type evaluateRequest struct {
	Namespace  string `json:"namespace"`
	Action     string `json:"action"`
	CategoryID string `json:"category_id,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
}

func (r evaluateRequest) Validate() error {
	if r.Namespace == "" || r.Action == "" {
		return dErrors.New(dErrors.CodeValidation, "namespace and action are required")
	}
	return nil
}

type evaluateResponse struct {
	Allowed       bool   `json:"allowed"`
	Reason        string `json:"reason"`
	Source        string `json:"source"`
	Namespace     string `json:"namespace"`
	Action        string `json:"action"`
	CategoryID    string `json:"category_id,omitempty"`
	ResourceID    string `json:"resource_id,omitempty"`
	MatchedPolicy string `json:"matched_policy,omitempty"`
	MatchedRole   string `json:"matched_role,omitempty"`
}

// handleEvaluate answers an authorization question for the authenticated
// user. The decision is returned to the caller even when denied; gating is
// the caller's job.
func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		h.logger.ErrorContext(ctx, "userID missing from context despite auth middleware",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[evaluateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	decision := h.authz.Evaluate(ctx, authz.Request{
		UserID:     userID,
		Namespace:  req.Namespace,
		Action:     req.Action,
		CategoryID: req.CategoryID,
		ResourceID: req.ResourceID,
	}, middleware.GetClaims(ctx))

	httputil.WriteJSON(w, http.StatusOK, evaluateResponse{
		Allowed:       decision.Allowed,
		Reason:        string(decision.Reason),
		Source:        string(decision.Source),
		Namespace:     decision.Namespace,
		Action:        decision.Action,
		CategoryID:    decision.CategoryID,
		ResourceID:    decision.ResourceID,
		MatchedPolicy: decision.MatchedPolicy,
		MatchedRole:   decision.MatchedRole,
	})
}
