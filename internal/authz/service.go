package authz

import (
	"context"
	"log/slog"
	"time"

	"aegis/internal/authz/metrics"
	"aegis/internal/authz/remote"
	jwttoken "aegis/internal/jwt_token"
	"aegis/pkg/platform/audit"
	"aegis/pkg/requestcontext"
)

// RemoteEvaluator is the fallback layer consulted when the token fast path
// is inconclusive. remote.Resilient satisfies it.
type RemoteEvaluator interface {
	Evaluate(ctx context.Context, req remote.EvaluateRequest) (remote.EvaluateResponse, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service layers the token fast path over the remote authority. Stateless;
// one instance serves all requests.
type Service struct {
	resolver *Resolver
	remote   RemoteEvaluator
	logger   *slog.Logger
	audit    AuditPublisher
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService constructs a Service.
func NewService(resolver *Resolver, remoteEval RemoteEvaluator, opts ...Option) *Service {
	s := &Service{
		resolver: resolver,
		remote:   remoteEval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate answers the authorization question. Token claims are consulted
// first; a definitive token answer never touches the network. Inconclusive
// requests fall through to the remote authority, which fails closed. Every
// decision is audited.
func (s *Service) Evaluate(ctx context.Context, req Request, claims *jwttoken.Claims) PermissionDecision {
	start := time.Now()

	verdict, decision := s.resolver.Resolve(req, claims)
	if verdict == VerdictInconclusive {
		decision = s.evaluateRemote(ctx, req)
	}

	s.metrics.IncrementDecision(string(decision.Source), string(decision.Reason))
	s.metrics.ObserveEvaluateLatency(time.Since(start))
	s.auditDecision(ctx, req, decision)

	return decision
}

func (s *Service) evaluateRemote(ctx context.Context, req Request) PermissionDecision {
	start := time.Now()
	resp, err := s.remote.Evaluate(ctx, remote.EvaluateRequest{
		UserID:     req.UserID,
		Namespace:  req.Namespace,
		Action:     req.Action,
		CategoryID: req.CategoryID,
		ResourceID: req.ResourceID,
	})
	s.metrics.ObserveRemoteLatency(time.Since(start))
	if err != nil {
		s.logger.Error("remote evaluation failed, failing closed",
			"user_id", req.UserID,
			"action", req.ActionString(),
			"error", err,
		)
		return decisionFor(req, false, ReasonErrorRemoteAuthority, SourceRemoteAuthority)
	}

	decision := decisionFor(req, resp.Allowed, Reason(resp.Reason), SourceRemoteAuthority)
	decision.MatchedPolicy = resp.MatchedPolicy
	decision.MatchedRole = resp.MatchedRole
	return decision
}

// auditDecision records the outcome. Emission is best-effort: an unavailable
// audit sink never blocks or fails the caller's request.
func (s *Service) auditDecision(ctx context.Context, req Request, decision PermissionDecision) {
	if s.audit == nil {
		return
	}
	outcome := "denied"
	if decision.Allowed {
		outcome = "allowed"
	}
	userID := req.UserID
	if userID == "" {
		userID = requestcontext.UserID(ctx)
	}
	err := s.audit.Emit(ctx, audit.Event{
		Action:     string(audit.EventDecisionMade),
		UserID:     userID,
		Namespace:  decision.Namespace,
		Verb:       decision.Action,
		CategoryID: decision.CategoryID,
		ResourceID: decision.ResourceID,
		Decision:   outcome,
		Reason:     string(decision.Reason),
		Source:     string(decision.Source),
		RequestID:  requestcontext.RequestID(ctx),
	})
	if err != nil {
		s.logger.Error("decision audit failed", "error", err)
	}
}
