// Package publisher emits audit events to a Store, optionally through an
// async buffer so emitting never blocks the request path.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	audit "aegis/pkg/platform/audit"
)

// Publisher writes audit events to a store. In sync mode Emit appends
// directly; with an async buffer Emit enqueues and a background goroutine
// drains. A full buffer drops the event rather than blocking the caller —
// audit failures must never affect the authorization result.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	inbox  chan audit.Event
	wg     sync.WaitGroup
	closed chan struct{}
	once   sync.Once
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous emission with the given buffer size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan audit.Event, size)
		}
	}
}

// WithLogger sets the logger used for dropped-event warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPublisher constructs a Publisher over the given store.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an audit event. Never returns an error from the async path;
// sync mode surfaces store errors to the caller.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}

	select {
	case p.inbox <- event:
	default:
		p.logger.Warn("audit buffer full, dropping event",
			"action", event.Action,
			"user_id", event.UserID,
		)
	}
	return nil
}

// List returns events for a user, delegating to the store.
func (p *Publisher) List(ctx context.Context, userID string) ([]audit.Event, error) {
	return p.store.ListByUser(ctx, userID)
}

// Close stops the async drain after flushing buffered events. Safe to call
// multiple times and in sync mode.
func (p *Publisher) Close() {
	p.once.Do(func() {
		close(p.closed)
		if p.inbox != nil {
			p.wg.Wait()
		}
	})
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for {
		select {
		case event := <-p.inbox:
			p.append(event)
		case <-p.closed:
			// Flush whatever is left, then exit.
			for {
				select {
				case event := <-p.inbox:
					p.append(event)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) append(event audit.Event) {
	// Detached context: the originating request may be long gone.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.store.Append(ctx, event); err != nil {
		p.logger.Error("failed to persist audit event",
			"action", event.Action,
			"error", err,
		)
	}
}
