// Package remote talks to the external policy authority and wraps it in the
// resilience layers (cache, retry, circuit breaker) every caller needs.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"aegis/pkg/requestcontext"
)

// EvaluateRequest is the wire request to the policy authority.
type EvaluateRequest struct {
	UserID     string `json:"user_id"`
	Namespace  string `json:"namespace"`
	Action     string `json:"action"`
	CategoryID string `json:"category_id,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
}

// EvaluateResponse is the authority's answer.
type EvaluateResponse struct {
	Allowed       bool   `json:"allowed"`
	Reason        string `json:"reason"`
	MatchedPolicy string `json:"matched_policy,omitempty"`
	MatchedRole   string `json:"matched_role,omitempty"`
}

// Client evaluates a request against the policy authority.
type Client interface {
	Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateResponse, error)
}

const (
	headerCorrelationID = "X-Correlation-ID"
	headerServiceName   = "X-Service-Name"
	headerServiceToken  = "X-Service-Token"

	defaultHTTPTimeout = 3 * time.Second
)

// HTTPClient is the plain transport-level client. It carries no resilience;
// wrap it in Resilient for production use.
type HTTPClient struct {
	baseURL      string
	serviceName  string
	serviceToken string
	http         *http.Client
	logger       *slog.Logger
}

type HTTPOption func(*HTTPClient)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		h.http = c
	}
}

func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(h *HTTPClient) {
		h.logger = logger
	}
}

// NewHTTPClient builds a client for the authority at baseURL. serviceName
// and serviceToken identify this service to the authority; the authority
// echoes them back together with the correlation id.
func NewHTTPClient(baseURL, serviceName, serviceToken string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:      baseURL,
		serviceName:  serviceName,
		serviceToken: serviceToken,
		http:         &http.Client{Timeout: defaultHTTPTimeout},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return EvaluateResponse{}, fmt.Errorf("marshal evaluate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/evaluate", bytes.NewReader(body))
	if err != nil {
		return EvaluateResponse{}, fmt.Errorf("build evaluate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(headerCorrelationID, correlationID(ctx))
	httpReq.Header.Set(headerServiceName, c.serviceName)
	httpReq.Header.Set(headerServiceToken, c.serviceToken)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return EvaluateResponse{}, fmt.Errorf("call policy authority: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return EvaluateResponse{}, fmt.Errorf("policy authority returned status %d", resp.StatusCode)
	}

	var out EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return EvaluateResponse{}, fmt.Errorf("decode evaluate response: %w", err)
	}
	return out, nil
}

// correlationID prefers the active trace, then the inbound request id, and
// generates a fresh id as a last resort so every authority call is
// traceable.
func correlationID(ctx context.Context) string {
	if span := trace.SpanFromContext(ctx); span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	if id := requestcontext.RequestID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
