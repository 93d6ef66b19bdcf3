package middleware

import (
	"log/slog"
	"net/http"

	"aegis/internal/authz"
)

// Guard gates protected routes on an authorization decision. Must run after
// RequireAuth so token claims are available.
func Guard(svc *authz.Service, namespace, action string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			claims := GetClaims(ctx)

			decision := svc.Evaluate(ctx, authz.Request{
				UserID:     GetUserID(ctx),
				Namespace:  namespace,
				Action:     action,
				CategoryID: r.URL.Query().Get("category_id"),
			}, claims)

			if !decision.Allowed {
				logger.WarnContext(ctx, "request denied",
					"user_id", GetUserID(ctx),
					"namespace", namespace,
					"action", action,
					"reason", decision.Reason,
					"request_id", GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","reason":"` + string(decision.Reason) + `"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
