// Package service orchestrates the policy version lifecycle: sealing matrix
// edits into immutable versions, rolling the default back to prior versions,
// and dry-run evaluation against a principal's effective policies.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"aegis/internal/policy"
	policymetrics "aegis/internal/policy/metrics"
	"aegis/internal/policy/models"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/audit"
	"aegis/pkg/platform/sentinel"
	"aegis/pkg/requestcontext"
)

// VersionStore persists policies and their version history.
type VersionStore interface {
	ListPolicies(ctx context.Context) ([]models.Policy, error)
	GetPolicy(ctx context.Context, policyID string) (models.Policy, error)
	Insert(ctx context.Context, v models.Version) error
	Get(ctx context.Context, versionID string) (models.Version, error)
	ListByPolicy(ctx context.Context, policyID string) ([]models.Version, error)
	GetDefault(ctx context.Context, policyID string) (models.Version, error)
	NextVersionNumber(ctx context.Context, policyID string) (int, error)
	ClearDefault(ctx context.Context, policyID string) error
	SetDefault(ctx context.Context, policyID, versionID string) error
}

// AssignmentStore resolves role/user bindings for impact analysis and
// principal policy resolution.
type AssignmentStore interface {
	CountImpact(ctx context.Context, policyID string) (models.Impact, error)
	PoliciesForPrincipal(ctx context.Context, userID string) ([]models.PrincipalPolicy, error)
}

// StoreTx runs the given function against a transactional view of the
// version store. All writes inside fn commit or roll back together; fn must
// use the context it receives, which carries the transaction.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store VersionStore) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// VersionService exposes the admin-facing policy lifecycle operations.
type VersionService struct {
	versions    VersionStore
	assignments AssignmentStore
	tx          StoreTx
	compiler    *policy.Compiler
	engine      *policy.Engine
	logger      *slog.Logger
	audit       AuditPublisher
	metrics     *policymetrics.Metrics
}

type Option func(*VersionService)

func WithLogger(logger *slog.Logger) Option {
	return func(s *VersionService) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *VersionService) {
		s.audit = publisher
	}
}

func WithMetrics(m *policymetrics.Metrics) Option {
	return func(s *VersionService) {
		s.metrics = m
	}
}

// NewVersionService constructs a VersionService.
func NewVersionService(versions VersionStore, assignments AssignmentStore, tx StoreTx, compiler *policy.Compiler, engine *policy.Engine, opts ...Option) *VersionService {
	s := &VersionService{
		versions:    versions,
		assignments: assignments,
		tx:          tx,
		compiler:    compiler,
		engine:      engine,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// sealDetail is the audit payload for seal and rollback events.
type sealDetail struct {
	OldDocument   json.RawMessage `json:"old_document,omitempty"`
	NewDocument   json.RawMessage `json:"new_document,omitempty"`
	AffectedRoles int             `json:"affected_roles"`
	AffectedUsers int             `json:"affected_users"`
}

// Seal compiles the matrix into a document and appends it as the new default
// version. When the policy is bound to one or more roles the caller must set
// confirmImpact; otherwise the seal is rejected before anything is written.
// The previous default is cleared and the new version inserted in a single
// transaction, preserving the one-default-per-policy invariant.
func (s *VersionService) Seal(ctx context.Context, policyID string, matrix policy.Matrix, confirmImpact bool) (models.Version, error) {
	pol, err := s.versions.GetPolicy(ctx, policyID)
	if err != nil {
		return models.Version{}, wrapStoreErr(err, "policy")
	}

	impact, err := s.assignments.CountImpact(ctx, policyID)
	if err != nil {
		return models.Version{}, dErrors.Wrap(err, dErrors.CodeInternal, "count policy impact")
	}
	if impact.Roles > 0 && !confirmImpact {
		s.metrics.IncrementSeal("rejected_impact")
		return models.Version{}, dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("policy is bound to %d role(s) affecting %d user(s); impact confirmation required", impact.Roles, impact.Users))
	}

	doc := s.compiler.MatrixToDocument(pol.Name, pol.ID, matrix)
	docJSON, err := doc.Marshal()
	if err != nil {
		return models.Version{}, dErrors.Wrap(err, dErrors.CodeInternal, "marshal policy document")
	}

	var oldDoc string
	now := requestcontext.Now(ctx)
	version := models.Version{
		VersionID:    uuid.NewString(),
		PolicyID:     policyID,
		IsDefault:    true,
		DocumentJSON: string(docJSON),
		CreatedAt:    now,
		CreatedBy:    requestcontext.ActorID(ctx),
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context, store VersionStore) error {
		prev, err := store.GetDefault(ctx, policyID)
		switch {
		case err == nil:
			oldDoc = prev.DocumentJSON
		case errors.Is(err, sentinel.ErrNotFound):
			// First seal for this policy.
		default:
			return wrapStoreErr(err, "version")
		}

		number, err := store.NextVersionNumber(ctx, policyID)
		if err != nil {
			return wrapStoreErr(err, "version")
		}
		version.VersionNumber = number

		if err := store.ClearDefault(ctx, policyID); err != nil {
			return wrapStoreErr(err, "version")
		}
		return wrapStoreErr(store.Insert(ctx, version), "version")
	})
	if err != nil {
		return models.Version{}, err
	}

	s.logger.Info("policy version sealed",
		"policy_id", policyID,
		"version", version.VersionNumber,
		"affected_roles", impact.Roles,
		"affected_users", impact.Users,
	)
	s.emitSealed(ctx, version, oldDoc, impact)
	s.metrics.IncrementSeal("sealed")

	return version, nil
}

// Rollback flips the default to an existing version of the same policy. The
// target version's document is reused verbatim; no new version is created.
func (s *VersionService) Rollback(ctx context.Context, policyID, versionID string) (models.Version, error) {
	target, err := s.versions.Get(ctx, versionID)
	if err != nil {
		return models.Version{}, wrapStoreErr(err, "version")
	}
	if target.PolicyID != policyID {
		return models.Version{}, dErrors.New(dErrors.CodeInvariantViolation, "version does not belong to the given policy")
	}

	var fromVersion string
	err = s.tx.RunInTx(ctx, func(ctx context.Context, store VersionStore) error {
		current, err := store.GetDefault(ctx, policyID)
		if err == nil {
			fromVersion = current.VersionID
		}
		if err := store.ClearDefault(ctx, policyID); err != nil {
			return wrapStoreErr(err, "version")
		}
		return wrapStoreErr(store.SetDefault(ctx, policyID, versionID), "version")
	})
	if err != nil {
		return models.Version{}, err
	}
	target.IsDefault = true

	s.logger.Info("policy rolled back",
		"policy_id", policyID,
		"version", target.VersionNumber,
	)
	s.emitRolledBack(ctx, target, fromVersion)
	s.metrics.IncrementRollback()

	return target, nil
}

// ListPolicies returns all policies ordered by name.
func (s *VersionService) ListPolicies(ctx context.Context) ([]models.Policy, error) {
	policies, err := s.versions.ListPolicies(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list policies")
	}
	return policies, nil
}

// ListVersions returns the full version history for a policy, oldest first.
func (s *VersionService) ListVersions(ctx context.Context, policyID string) ([]models.Version, error) {
	if _, err := s.versions.GetPolicy(ctx, policyID); err != nil {
		return nil, wrapStoreErr(err, "policy")
	}
	versions, err := s.versions.ListByPolicy(ctx, policyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list policy versions")
	}
	return versions, nil
}

// GetDefault returns the policy's current default version.
func (s *VersionService) GetDefault(ctx context.Context, policyID string) (models.Version, error) {
	v, err := s.versions.GetDefault(ctx, policyID)
	if err != nil {
		return models.Version{}, wrapStoreErr(err, "default version")
	}
	return v, nil
}

// GetMatrix projects the current default version back into matrix form for
// the editing surface. Policies with no sealed version yet yield an all-false
// matrix over the registry.
func (s *VersionService) GetMatrix(ctx context.Context, policyID string) (policy.Matrix, error) {
	if _, err := s.versions.GetPolicy(ctx, policyID); err != nil {
		return nil, wrapStoreErr(err, "policy")
	}
	v, err := s.versions.GetDefault(ctx, policyID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, wrapStoreErr(err, "default version")
		}
		return s.compiler.DocumentToMatrix(policy.Document{}), nil
	}
	doc, err := policy.ParseDocument([]byte(v.DocumentJSON))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "parse sealed document")
	}
	return s.compiler.DocumentToMatrix(doc), nil
}

// Impact reports how many roles and users a change to this policy would
// affect.
func (s *VersionService) Impact(ctx context.Context, policyID string) (models.Impact, error) {
	if _, err := s.versions.GetPolicy(ctx, policyID); err != nil {
		return models.Impact{}, wrapStoreErr(err, "policy")
	}
	impact, err := s.assignments.CountImpact(ctx, policyID)
	if err != nil {
		return models.Impact{}, dErrors.Wrap(err, dErrors.CodeInternal, "count policy impact")
	}
	return impact, nil
}

// TestEvaluate runs a dry-run evaluation against the principal's effective
// policies. Documents that fail to parse are skipped with a warning so one
// corrupt policy cannot take the whole evaluation down.
func (s *VersionService) TestEvaluate(ctx context.Context, req policy.AccessRequest) (policy.AccessDecision, error) {
	bound, err := s.assignments.PoliciesForPrincipal(ctx, req.UserID)
	if err != nil {
		return policy.AccessDecision{}, dErrors.Wrap(err, dErrors.CodeInternal, "resolve principal policies")
	}

	docs := make([]policy.Document, 0, len(bound))
	for _, pp := range bound {
		if pp.DocumentJSON == "" {
			continue
		}
		doc, err := policy.ParseDocument([]byte(pp.DocumentJSON))
		if err != nil {
			s.logger.Warn("skipping unparsable policy document",
				"policy_id", pp.PolicyID,
				"policy", pp.Name,
				"error", err,
			)
			continue
		}
		docs = append(docs, doc)
	}

	s.metrics.IncrementTestEvaluation()
	return s.engine.Evaluate(req, docs), nil
}

func (s *VersionService) emitSealed(ctx context.Context, v models.Version, oldDoc string, impact models.Impact) {
	if s.audit == nil {
		return
	}
	detail, _ := json.Marshal(sealDetail{
		OldDocument:   rawOrNil(oldDoc),
		NewDocument:   rawOrNil(v.DocumentJSON),
		AffectedRoles: impact.Roles,
		AffectedUsers: impact.Users,
	})
	s.emit(ctx, audit.Event{
		Action:    string(audit.EventPolicySealed),
		PolicyID:  v.PolicyID,
		ToVersion: v.VersionID,
		Detail:    string(detail),
	})
}

func (s *VersionService) emitRolledBack(ctx context.Context, v models.Version, fromVersion string) {
	if s.audit == nil {
		return
	}
	s.emit(ctx, audit.Event{
		Action:      string(audit.EventPolicyRolledBack),
		PolicyID:    v.PolicyID,
		FromVersion: fromVersion,
		ToVersion:   v.VersionID,
	})
}

func (s *VersionService) emit(ctx context.Context, event audit.Event) {
	event.ActorID = requestcontext.ActorID(ctx)
	event.UserID = requestcontext.UserID(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.Error("audit emit failed", "action", event.Action, "error", err)
	}
}

func rawOrNil(doc string) json.RawMessage {
	if doc == "" {
		return nil
	}
	return json.RawMessage(doc)
}
