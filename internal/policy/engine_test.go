package policy

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return NewEngine(slog.Default())
}

func TestEngine_AllowViaNamespaceWildcard(t *testing.T) {
	engine := newTestEngine()
	docs := []Document{{
		Name: "P",
		Statements: []Statement{
			{SID: "AllowOrders", Effect: EffectAllow, Action: []string{"orders:*"}},
		},
	}}

	decision := engine.Evaluate(AccessRequest{Namespace: "orders", Action: "read"}, docs)
	assert.True(t, decision.Allowed)
	assert.Equal(t, ReasonAllowedByPolicy, decision.Reason)
	assert.Equal(t, []string{"P:AllowOrders"}, decision.MatchedStatements)
	assert.Equal(t, []string{"P"}, decision.AppliedPolicies)
}

// Deny-wins invariant: if any matching statement denies, the decision is
// denied no matter how many allows also match.
func TestEngine_ExplicitDenyWins(t *testing.T) {
	engine := newTestEngine()
	docs := []Document{
		{Name: "grants", Statements: []Statement{
			{SID: "AllowOrders", Effect: EffectAllow, Action: []string{"orders:*"}},
		}},
		{Name: "guards", Statements: []Statement{
			{SID: "DenyDelete", Effect: EffectDeny, Action: []string{"orders:delete"}},
		}},
	}

	denied := engine.Evaluate(AccessRequest{Namespace: "orders", Action: "delete"}, docs)
	assert.False(t, denied.Allowed)
	assert.Equal(t, ReasonExplicitDeny, denied.Reason)
	assert.Contains(t, denied.MatchedStatements, "grants:AllowOrders")
	assert.Contains(t, denied.MatchedStatements, "guards:DenyDelete")

	allowed := engine.Evaluate(AccessRequest{Namespace: "orders", Action: "read"}, docs)
	assert.True(t, allowed.Allowed)
}

// Default-deny invariant: no matching statement at all means denied with the
// "no match" reason.
func TestEngine_DefaultDeny(t *testing.T) {
	engine := newTestEngine()
	docs := []Document{{
		Name: "P",
		Statements: []Statement{
			{Effect: EffectAllow, Action: []string{"articles:read"}},
		},
	}}

	decision := engine.Evaluate(AccessRequest{Namespace: "media", Action: "upload"}, docs)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonDefaultDeny, decision.Reason)
	assert.Empty(t, decision.MatchedStatements)
}

// Zero resolvable documents is misconfiguration, reported distinctly from a
// legitimate default deny.
func TestEngine_NoPoliciesIsDistinctReason(t *testing.T) {
	engine := newTestEngine()
	decision := engine.Evaluate(AccessRequest{Namespace: "orders", Action: "read"}, nil)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonNoPolicies, decision.Reason)
}

func TestEngine_NotAction(t *testing.T) {
	engine := newTestEngine()
	docs := []Document{{
		Name: "P",
		Statements: []Statement{
			{SID: "AllowAllButDelete", Effect: EffectAllow, NotAction: []string{"*:delete"}},
		},
	}}

	read := engine.Evaluate(AccessRequest{Namespace: "orders", Action: "read"}, docs)
	assert.True(t, read.Allowed)

	del := engine.Evaluate(AccessRequest{Namespace: "orders", Action: "delete"}, docs)
	assert.False(t, del.Allowed)
	assert.Equal(t, ReasonDefaultDeny, del.Reason)
}

func TestEngine_ResourceMatching(t *testing.T) {
	engine := newTestEngine()
	docs := []Document{{
		Name: "P",
		Statements: []Statement{
			{SID: "AllowDrafts", Effect: EffectAllow, Action: []string{"articles:edit"}, Resource: []string{"draft/*"}},
		},
	}}

	t.Run("matching resource", func(t *testing.T) {
		decision := engine.Evaluate(AccessRequest{
			Namespace: "articles", Action: "edit", Resource: "draft/42",
		}, docs)
		assert.True(t, decision.Allowed)
	})

	t.Run("non-matching resource", func(t *testing.T) {
		decision := engine.Evaluate(AccessRequest{
			Namespace: "articles", Action: "edit", Resource: "published/42",
		}, docs)
		assert.False(t, decision.Allowed)
	})

	t.Run("absent resource defaults to star", func(t *testing.T) {
		// "draft/*" does not match the default "*" resource.
		decision := engine.Evaluate(AccessRequest{Namespace: "articles", Action: "edit"}, docs)
		assert.False(t, decision.Allowed)
	})
}

func TestEngine_NotResource(t *testing.T) {
	engine := newTestEngine()
	docs := []Document{{
		Name: "P",
		Statements: []Statement{
			{Effect: EffectAllow, Action: []string{"articles:edit"}, NotResource: []string{"published/*"}},
		},
	}}

	assert.True(t, engine.Evaluate(AccessRequest{
		Namespace: "articles", Action: "edit", Resource: "draft/1",
	}, docs).Allowed)
	assert.False(t, engine.Evaluate(AccessRequest{
		Namespace: "articles", Action: "edit", Resource: "published/1",
	}, docs).Allowed)
}

func TestEngine_Conditions(t *testing.T) {
	engine := newTestEngine()
	docs := []Document{{
		Name: "P",
		Statements: []Statement{{
			SID:    "AllowWithMFA",
			Effect: EffectAllow,
			Action: []string{"articles:publish"},
			Condition: map[string]map[string]string{
				"Bool":      {"mfa": "true"},
				"IpAddress": {"sourceIp": "10.0.0.0/8"},
			},
		}},
	}}

	t.Run("all conditions hold", func(t *testing.T) {
		decision := engine.Evaluate(AccessRequest{
			Namespace: "articles", Action: "publish",
			Context: map[string]string{"mfa": "true", "sourceIp": "10.1.2.3"},
		}, docs)
		assert.True(t, decision.Allowed)
	})

	t.Run("one condition fails", func(t *testing.T) {
		decision := engine.Evaluate(AccessRequest{
			Namespace: "articles", Action: "publish",
			Context: map[string]string{"mfa": "true", "sourceIp": "8.8.8.8"},
		}, docs)
		assert.False(t, decision.Allowed)
	})

	t.Run("missing context key fails", func(t *testing.T) {
		decision := engine.Evaluate(AccessRequest{
			Namespace: "articles", Action: "publish",
			Context: map[string]string{"mfa": "true"},
		}, docs)
		assert.False(t, decision.Allowed)
	})
}

// The upstream behavior of treating unknown operators as satisfied is not
// reproduced: an unknown operator makes the statement unmatched.
func TestEngine_UnknownOperatorNeverSatisfies(t *testing.T) {
	engine := newTestEngine()
	docs := []Document{{
		Name: "P",
		Statements: []Statement{{
			Effect: EffectAllow,
			Action: []string{"articles:read"},
			Condition: map[string]map[string]string{
				"DateGreaterThan": {"currentTime": "2020-01-01T00:00:00Z"},
			},
		}},
	}}

	decision := engine.Evaluate(AccessRequest{
		Namespace: "articles", Action: "read",
		Context: map[string]string{"currentTime": "2024-06-01T00:00:00Z"},
	}, docs)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonDefaultDeny, decision.Reason)
}

func TestEngine_StatementWithoutActionsMatchesNothing(t *testing.T) {
	engine := newTestEngine()
	docs := []Document{{
		Name:       "P",
		Statements: []Statement{{Effect: EffectAllow, Resource: []string{"*"}}},
	}}

	decision := engine.Evaluate(AccessRequest{Namespace: "orders", Action: "read"}, docs)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonDefaultDeny, decision.Reason)
}

func TestEngine_UnnamedStatementsGetPositionalLabels(t *testing.T) {
	engine := newTestEngine()
	docs := []Document{{
		Name: "P",
		Statements: []Statement{
			{Effect: EffectAllow, Action: []string{"orders:read"}},
		},
	}}

	decision := engine.Evaluate(AccessRequest{Namespace: "orders", Action: "read"}, docs)
	require.True(t, decision.Allowed)
	assert.Equal(t, []string{"P:statement-0"}, decision.MatchedStatements)
}
