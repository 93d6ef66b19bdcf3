package remote

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	authzmetrics "aegis/internal/authz/metrics"
	"aegis/pkg/platform/audit"
	"aegis/pkg/platform/circuit"
)

// Fallback reasons returned when the authority cannot answer. The decorator
// never fails open: no reachable authority means no access.
const (
	ReasonError       = "ERROR_REMOTE_AUTHORITY"
	ReasonUnavailable = "REMOTE_AUTHORITY_UNAVAILABLE"
)

const (
	defaultAllowTTL     = 5 * time.Minute
	defaultDenyTTL      = 30 * time.Second
	defaultMaxAttempts  = 3
	defaultBaseInterval = 100 * time.Millisecond
	defaultMaxInterval  = 1 * time.Second
)

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Resilient decorates a Client with a decision cache, retry with backoff, a
// circuit breaker, and a fail-closed fallback. Evaluate never returns an
// error; an unreachable authority yields a deny with a fallback reason.
type Resilient struct {
	client  Client
	cache   Cache
	breaker *circuit.Breaker
	group   singleflight.Group
	logger  *slog.Logger
	audit   AuditPublisher
	metrics *authzmetrics.Metrics

	allowTTL     time.Duration
	denyTTL      time.Duration
	maxAttempts  int
	baseInterval time.Duration
	maxInterval  time.Duration
}

type ResilientOption func(*Resilient)

func WithLogger(logger *slog.Logger) ResilientOption {
	return func(r *Resilient) {
		r.logger = logger
	}
}

func WithMetrics(m *authzmetrics.Metrics) ResilientOption {
	return func(r *Resilient) {
		r.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) ResilientOption {
	return func(r *Resilient) {
		r.audit = publisher
	}
}

func WithTTLs(allow, deny time.Duration) ResilientOption {
	return func(r *Resilient) {
		r.allowTTL = allow
		r.denyTTL = deny
	}
}

func WithMaxAttempts(n int) ResilientOption {
	return func(r *Resilient) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func WithBackoff(base, max time.Duration) ResilientOption {
	return func(r *Resilient) {
		r.baseInterval = base
		r.maxInterval = max
	}
}

// NewResilient wraps client. cache and breaker are required; the breaker is
// shared across all callers so one instance guards the authority
// process-wide.
func NewResilient(client Client, cache Cache, breaker *circuit.Breaker, opts ...ResilientOption) *Resilient {
	r := &Resilient{
		client:       client,
		cache:        cache,
		breaker:      breaker,
		logger:       slog.Default(),
		allowTTL:     defaultAllowTTL,
		denyTTL:      defaultDenyTTL,
		maxAttempts:  defaultMaxAttempts,
		baseInterval: defaultBaseInterval,
		maxInterval:  defaultMaxInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Evaluate answers from the cache when possible and otherwise calls the
// authority, deduplicating concurrent misses for the same key. Allowed
// results are cached for the full TTL; denials only briefly, so a transient
// deny cannot stick.
func (r *Resilient) Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateResponse, error) {
	key := CacheKey(req.UserID, req.Namespace, req.Action, req.CategoryID)

	if cached, ok := r.cache.Get(ctx, key); ok {
		r.metrics.IncrementCacheLookup("hit")
		return EvaluateResponse{
			Allowed:       cached.Allowed,
			Reason:        cached.Reason,
			MatchedPolicy: cached.MatchedPolicy,
			MatchedRole:   cached.MatchedRole,
		}, nil
	}

	r.metrics.IncrementCacheLookup("miss")
	resp, err, _ := r.group.Do(key, func() (any, error) {
		return r.evaluateUncached(ctx, key, req), nil
	})
	if err != nil {
		// Unreachable; evaluateUncached never returns an error.
		return r.failClosed(ReasonError), nil
	}
	return resp.(EvaluateResponse), nil
}

func (r *Resilient) evaluateUncached(ctx context.Context, key string, req EvaluateRequest) EvaluateResponse {
	if !r.breaker.Allow() {
		r.logger.Warn("authority circuit open, failing closed",
			"user_id", req.UserID,
			"action", req.Namespace+":"+req.Action,
		)
		return r.failClosed(ReasonUnavailable)
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		resp, err := r.client.Evaluate(ctx, req)
		if err == nil {
			if _, change := r.breaker.RecordSuccess(); change.Closed {
				r.logger.Info("authority circuit closed", "breaker", r.breaker.Name())
				r.metrics.IncrementBreakerTransition("closed")
				r.emit(ctx, audit.Event{Action: string(audit.EventBreakerClosed), UserID: req.UserID})
			}
			r.store(ctx, key, resp)
			return resp
		}

		lastErr = err
		if attempt == r.maxAttempts || ctx.Err() != nil {
			break
		}
		if err := sleep(ctx, backoff(r.baseInterval, r.maxInterval, attempt)); err != nil {
			break
		}
	}

	r.logger.Error("authority unreachable after retries",
		"attempts", r.maxAttempts,
		"error", lastErr,
	)
	r.emit(ctx, audit.Event{
		Action:    string(audit.EventAuthorityUnreachable),
		UserID:    req.UserID,
		Namespace: req.Namespace,
		Verb:      req.Action,
	})
	if _, change := r.breaker.RecordFailure(); change.Opened {
		r.logger.Error("authority circuit opened", "breaker", r.breaker.Name())
		r.metrics.IncrementBreakerTransition("open")
		r.emit(ctx, audit.Event{Action: string(audit.EventBreakerOpened), UserID: req.UserID})
	}
	return r.failClosed(ReasonError)
}

func (r *Resilient) store(ctx context.Context, key string, resp EvaluateResponse) {
	ttl := r.allowTTL
	if !resp.Allowed {
		ttl = r.denyTTL
	}
	r.cache.Set(ctx, key, CachedDecision{
		Allowed:       resp.Allowed,
		Reason:        resp.Reason,
		MatchedPolicy: resp.MatchedPolicy,
		MatchedRole:   resp.MatchedRole,
	}, ttl)
}

func (r *Resilient) failClosed(reason string) EvaluateResponse {
	return EvaluateResponse{Allowed: false, Reason: reason}
}

func (r *Resilient) emit(ctx context.Context, event audit.Event) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Emit(ctx, event); err != nil {
		r.logger.Error("audit emit failed", "action", event.Action, "error", err)
	}
}
