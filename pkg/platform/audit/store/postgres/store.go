package postgres

import (
	"context"
	"database/sql"
	"fmt"

	audit "aegis/pkg/platform/audit"
	txcontext "aegis/pkg/platform/tx"

	"github.com/google/uuid"
)

// Store implements audit.Store on PostgreSQL. Events are append-only; the
// table carries no update path at all.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) execer(ctx context.Context) txcontext.Querier {
	return txcontext.QuerierFrom(ctx, s.db)
}

// Append inserts an audit event. When the context carries a transaction
// (policy seal/rollback), the event commits atomically with the mutation.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, category, timestamp, user_id, action,
			namespace, verb, category_id, resource_id,
			decision, reason, source,
			policy_id, from_version, to_version,
			detail, request_id, actor_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		string(event.Category),
		event.Timestamp,
		event.UserID,
		event.Action,
		event.Namespace,
		event.Verb,
		event.CategoryID,
		event.ResourceID,
		event.Decision,
		event.Reason,
		event.Source,
		event.PolicyID,
		event.FromVersion,
		event.ToVersion,
		event.Detail,
		event.RequestID,
		event.ActorID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByUser returns events for a specific user, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]audit.Event, error) {
	query := selectColumns + `
		WHERE user_id = $1
		ORDER BY timestamp DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := selectColumns + `
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

const selectColumns = `
	SELECT category, timestamp, user_id, action,
		   namespace, verb, category_id, resource_id,
		   decision, reason, source,
		   policy_id, from_version, to_version,
		   detail, request_id, actor_id
	FROM audit_events
`

func (s *Store) scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			category string
			event    audit.Event
		)
		err := rows.Scan(
			&category,
			&event.Timestamp,
			&event.UserID,
			&event.Action,
			&event.Namespace,
			&event.Verb,
			&event.CategoryID,
			&event.ResourceID,
			&event.Decision,
			&event.Reason,
			&event.Source,
			&event.PolicyID,
			&event.FromVersion,
			&event.ToVersion,
			&event.Detail,
			&event.RequestID,
			&event.ActorID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
