package audit

import "context"

// Store persists audit events. Implementations must tolerate concurrent
// Append calls; ordering guarantees are per-store.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
