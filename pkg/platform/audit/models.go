package audit

import "time"

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and storage routing.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: every
	// authorization decision and every policy lifecycle change. These need
	// durable storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring:
	// authority outages, breaker trips, explicit denials.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	UserID    string
	Action    string
	// Namespace and Verb identify what was being authorized
	// (e.g. "articles", "publish") for decision events.
	Namespace  string
	Verb       string
	CategoryID string
	ResourceID string
	Decision   string
	Reason     string
	// Source records which layer produced a decision (token or authority).
	Source string
	// PolicyID and version fields describe policy lifecycle events.
	PolicyID    string
	FromVersion string
	ToVersion   string
	// Detail carries event-specific payload such as old/new documents and
	// affected role/user counts for seal events.
	Detail    string
	RequestID string
	// ActorID tracks who performed the action when different from UserID.
	// Used for admin operations on policies.
	ActorID string
}

type AuditEvent string

const (
	// Decision events
	EventDecisionMade AuditEvent = "decision_made"

	// Policy lifecycle events
	EventPolicySealed     AuditEvent = "policy_sealed"
	EventPolicyRolledBack AuditEvent = "policy_rolled_back"

	// Dependency events
	EventAuthorityUnreachable AuditEvent = "authority_unreachable"
	EventBreakerOpened        AuditEvent = "breaker_opened"
	EventBreakerClosed        AuditEvent = "breaker_closed"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventDecisionMade:     CategoryCompliance,
	EventPolicySealed:     CategoryCompliance,
	EventPolicyRolledBack: CategoryCompliance,

	EventAuthorityUnreachable: CategorySecurity,
	EventBreakerOpened:        CategorySecurity,
	EventBreakerClosed:        CategorySecurity,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
