package policy

import (
	"fmt"
	"log/slog"
)

// AccessRequest is one authorization question posed to the engine. Context
// carries runtime attributes (source IP, MFA state) consumed only by
// condition evaluation.
type AccessRequest struct {
	UserID    string
	Namespace string
	Action    string
	Resource  string
	Context   map[string]string
}

// ActionString returns the "namespace:action" form statements match against.
func (r AccessRequest) ActionString() string {
	return r.Namespace + ":" + r.Action
}

// DecisionReason is the closed set of engine outcomes.
type DecisionReason string

const (
	ReasonAllowedByPolicy DecisionReason = "ALLOWED_BY_POLICY"
	ReasonExplicitDeny    DecisionReason = "DENIED_EXPLICIT"
	ReasonDefaultDeny     DecisionReason = "DENIED_BY_DEFAULT"
	ReasonNoPolicies      DecisionReason = "DENIED_NO_POLICIES"
)

// AccessDecision is an immutable evaluation result. Each Evaluate call
// produces a fresh value; nothing mutates a decision after creation.
type AccessDecision struct {
	Allowed           bool
	Reason            DecisionReason
	MatchedStatements []string
	AppliedPolicies   []string
}

// Engine evaluates access requests against policy documents with
// explicit-deny-wins semantics. It holds no mutable state; concurrent use is
// safe.
type Engine struct {
	logger *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Evaluate runs the request against every statement of every document:
// any matching Deny statement denies regardless of Allows; otherwise any
// matching Allow allows; otherwise the default is deny. An empty document
// set is reported distinctly so misconfiguration (no policies resolved) is
// distinguishable from a legitimate denial.
func (e *Engine) Evaluate(req AccessRequest, docs []Document) AccessDecision {
	if req.Resource == "" {
		req.Resource = "*"
	}

	if len(docs) == 0 {
		return AccessDecision{Allowed: false, Reason: ReasonNoPolicies}
	}

	var (
		matched  []string
		applied  []string
		anyAllow bool
		anyDeny  bool
	)

	for _, doc := range docs {
		applied = append(applied, doc.Name)
		for i, stmt := range doc.Statements {
			if !e.statementMatches(stmt, req, doc.Name) {
				continue
			}
			matched = append(matched, doc.Name+":"+statementLabel(stmt, i))
			switch stmt.Effect {
			case EffectDeny:
				anyDeny = true
			default:
				anyAllow = true
			}
		}
	}

	decision := AccessDecision{
		MatchedStatements: matched,
		AppliedPolicies:   applied,
	}
	switch {
	case anyDeny:
		decision.Reason = ReasonExplicitDeny
	case anyAllow:
		decision.Allowed = true
		decision.Reason = ReasonAllowedByPolicy
	default:
		decision.Reason = ReasonDefaultDeny
	}
	return decision
}

// statementMatches applies the three match gates in order: action, resource,
// conditions.
func (e *Engine) statementMatches(stmt Statement, req AccessRequest, policyName string) bool {
	action := req.ActionString()
	switch {
	case len(stmt.Action) > 0:
		if !MatchAny(stmt.Action, action) {
			return false
		}
	case len(stmt.NotAction) > 0:
		if MatchAny(stmt.NotAction, action) {
			return false
		}
	default:
		// Neither action nor notAction: matches nothing.
		return false
	}

	switch {
	case len(stmt.Resource) > 0:
		if !MatchAny(stmt.Resource, req.Resource) {
			return false
		}
	case len(stmt.NotResource) > 0:
		if MatchAny(stmt.NotResource, req.Resource) {
			return false
		}
	}

	for op, pairs := range stmt.Condition {
		if !KnownOperator(op) {
			e.logger.Warn("unknown condition operator treated as unsatisfied",
				"operator", op,
				"policy", policyName,
				"sid", stmt.SID,
			)
			return false
		}
		if !evalCondition(Operator(op), pairs, req.Context) {
			return false
		}
	}
	return true
}

func statementLabel(stmt Statement, i int) string {
	if stmt.SID != "" {
		return stmt.SID
	}
	return fmt.Sprintf("statement-%d", i)
}
