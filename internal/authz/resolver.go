package authz

import jwttoken "aegis/internal/jwt_token"

// Verdict is the three-state outcome of the token fast path. Inconclusive
// means the token said nothing definitive and the caller must consult the
// remote authority.
type Verdict int

const (
	VerdictInconclusive Verdict = iota
	VerdictAllowed
	VerdictDenied
)

// Resolver evaluates requests directly against token claims without any
// network call. It holds no state; concurrent use is safe.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve checks the token's claims in strict order: a category-scoped deny
// is final and overrides everything including global allows; then a
// category-scoped allow; then the global permission list. Anything else is
// inconclusive.
func (r *Resolver) Resolve(req Request, claims *jwttoken.Claims) (Verdict, PermissionDecision) {
	if claims == nil {
		return VerdictInconclusive, PermissionDecision{}
	}
	pair := req.ActionString()

	if req.CategoryID != "" {
		if scope, ok := categoryScope(claims, req.CategoryID); ok {
			if claimsMatch(scope.Deny, req.Namespace, pair) {
				return VerdictDenied, decisionFor(req, false, ReasonDeniedCategoryScope, SourceToken)
			}
			if claimsMatch(scope.Allow, req.Namespace, pair) {
				return VerdictAllowed, decisionFor(req, true, ReasonAllowedByToken, SourceToken)
			}
		}
	}

	if claimsMatch(claims.Permissions, req.Namespace, pair) {
		return VerdictAllowed, decisionFor(req, true, ReasonAllowedByToken, SourceToken)
	}

	return VerdictInconclusive, PermissionDecision{}
}

func categoryScope(claims *jwttoken.Claims, categoryID string) (jwttoken.CategoryScope, bool) {
	for _, scope := range claims.CategoryScopes {
		if scope.CategoryID == categoryID {
			return scope, true
		}
	}
	return jwttoken.CategoryScope{}, false
}

// claimsMatch reports whether any claim covers the requested pair. Claims
// are matched literally, as "*:*", or as "namespace:*"; no general glob
// matching happens on the fast path.
func claimsMatch(claims []string, namespace, pair string) bool {
	nsWildcard := namespace + ":*"
	for _, claim := range claims {
		if claim == pair || claim == "*:*" || claim == nsWildcard {
			return true
		}
	}
	return false
}
