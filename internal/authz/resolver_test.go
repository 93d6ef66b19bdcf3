package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	jwttoken "aegis/internal/jwt_token"
)

func TestResolve_GlobalClaims(t *testing.T) {
	r := NewResolver()

	tests := []struct {
		name        string
		permissions []string
		req         Request
		verdict     Verdict
	}{
		{
			name:        "exact pair allows",
			permissions: []string{"articles:read"},
			req:         Request{Namespace: "articles", Action: "read"},
			verdict:     VerdictAllowed,
		},
		{
			name:        "namespace wildcard allows",
			permissions: []string{"articles:*"},
			req:         Request{Namespace: "articles", Action: "delete"},
			verdict:     VerdictAllowed,
		},
		{
			name:        "global wildcard allows",
			permissions: []string{"*:*"},
			req:         Request{Namespace: "media", Action: "upload"},
			verdict:     VerdictAllowed,
		},
		{
			name:        "no claim is inconclusive not denied",
			permissions: []string{"articles:read"},
			req:         Request{Namespace: "articles", Action: "publish"},
			verdict:     VerdictInconclusive,
		},
		{
			name:        "empty permissions inconclusive",
			permissions: nil,
			req:         Request{Namespace: "articles", Action: "read"},
			verdict:     VerdictInconclusive,
		},
		{
			name:        "action wildcard form is not a global grant",
			permissions: []string{"*:read"},
			req:         Request{Namespace: "articles", Action: "read"},
			verdict:     VerdictInconclusive,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			claims := &jwttoken.Claims{Permissions: tc.permissions}
			verdict, decision := r.Resolve(tc.req, claims)
			assert.Equal(t, tc.verdict, verdict)
			if verdict == VerdictAllowed {
				assert.True(t, decision.Allowed)
				assert.Equal(t, ReasonAllowedByToken, decision.Reason)
				assert.Equal(t, SourceToken, decision.Source)
			}
		})
	}
}

func TestResolve_CategoryDenyOverridesGlobalAllow(t *testing.T) {
	r := NewResolver()
	claims := &jwttoken.Claims{
		Permissions: []string{"articles:publish"},
		CategoryScopes: []jwttoken.CategoryScope{
			{CategoryID: "cat-politics", Deny: []string{"articles:publish"}},
		},
	}

	verdict, decision := r.Resolve(Request{
		UserID: "user-1", Namespace: "articles", Action: "publish", CategoryID: "cat-politics",
	}, claims)
	assert.Equal(t, VerdictDenied, verdict)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonDeniedCategoryScope, decision.Reason)
	assert.Equal(t, "cat-politics", decision.CategoryID)

	// Same request without the category falls back to the global allow.
	verdict, decision = r.Resolve(Request{
		UserID: "user-1", Namespace: "articles", Action: "publish",
	}, claims)
	assert.Equal(t, VerdictAllowed, verdict)
	assert.True(t, decision.Allowed)
}

func TestResolve_CategoryAllowBeforeGlobal(t *testing.T) {
	r := NewResolver()
	claims := &jwttoken.Claims{
		CategoryScopes: []jwttoken.CategoryScope{
			{CategoryID: "cat-sports", Allow: []string{"articles:*"}},
		},
	}

	verdict, decision := r.Resolve(Request{
		Namespace: "articles", Action: "publish", CategoryID: "cat-sports",
	}, claims)
	assert.Equal(t, VerdictAllowed, verdict)
	assert.Equal(t, ReasonAllowedByToken, decision.Reason)

	// Outside the scoped category nothing matches.
	verdict, _ = r.Resolve(Request{
		Namespace: "articles", Action: "publish", CategoryID: "cat-other",
	}, claims)
	assert.Equal(t, VerdictInconclusive, verdict)
}

func TestResolve_CategoryDenyWildcards(t *testing.T) {
	r := NewResolver()
	claims := &jwttoken.Claims{
		Permissions: []string{"*:*"},
		CategoryScopes: []jwttoken.CategoryScope{
			{CategoryID: "cat-locked", Deny: []string{"*:*"}},
		},
	}

	verdict, decision := r.Resolve(Request{
		Namespace: "media", Action: "upload", CategoryID: "cat-locked",
	}, claims)
	assert.Equal(t, VerdictDenied, verdict)
	assert.Equal(t, ReasonDeniedCategoryScope, decision.Reason)
}

func TestResolve_NilClaims(t *testing.T) {
	verdict, _ := NewResolver().Resolve(Request{Namespace: "articles", Action: "read"}, nil)
	assert.Equal(t, VerdictInconclusive, verdict)
}
