// Package authz answers "may this user perform this action" by layering a
// token fast path over a remote policy authority.
package authz

// Request is one authorization question. CategoryID and ResourceID are
// optional; an empty CategoryID means the request is not scoped to a
// category.
type Request struct {
	UserID     string
	Namespace  string
	Action     string
	CategoryID string
	ResourceID string
}

// ActionString returns the "namespace:action" form claims and policies match
// against.
func (r Request) ActionString() string {
	return r.Namespace + ":" + r.Action
}

// Source identifies which layer produced a decision.
type Source string

const (
	SourceToken           Source = "TOKEN"
	SourceRemoteAuthority Source = "REMOTE_AUTHORITY"
)

// Reason is the closed set of decision reason codes.
type Reason string

const (
	ReasonAllowedByToken       Reason = "ALLOWED_BY_TOKEN"
	ReasonAllowedByPolicy      Reason = "ALLOWED_BY_POLICY"
	ReasonDeniedCategoryScope  Reason = "DENIED_CATEGORY_SCOPE"
	ReasonDeniedExplicit       Reason = "DENIED_EXPLICIT"
	ReasonDeniedByDefault      Reason = "DENIED_BY_DEFAULT"
	ReasonDeniedNoPolicies     Reason = "DENIED_NO_POLICIES"
	ReasonErrorRemoteAuthority Reason = "ERROR_REMOTE_AUTHORITY"
	ReasonRemoteUnavailable    Reason = "REMOTE_AUTHORITY_UNAVAILABLE"
)

// PermissionDecision is an immutable authorization outcome. Every evaluation
// produces a fresh value; nothing mutates a decision after creation.
type PermissionDecision struct {
	Allowed       bool
	Reason        Reason
	Source        Source
	Namespace     string
	Action        string
	CategoryID    string
	ResourceID    string
	MatchedPolicy string
	MatchedRole   string
}

func decisionFor(req Request, allowed bool, reason Reason, source Source) PermissionDecision {
	return PermissionDecision{
		Allowed:    allowed,
		Reason:     reason,
		Source:     source,
		Namespace:  req.Namespace,
		Action:     req.Action,
		CategoryID: req.CategoryID,
		ResourceID: req.ResourceID,
	}
}
