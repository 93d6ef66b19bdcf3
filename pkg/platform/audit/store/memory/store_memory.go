package memory

import (
	"context"
	"sync"

	audit "aegis/pkg/platform/audit"
)

// InMemoryStore keeps audit events in process memory. Used by unit tests and
// local runs without a database.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string][]audit.Event)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.UserID] = append(s.events[event.UserID], event)
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[userID]...), nil
}

// ListRecent returns the most recent N events across all users.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var allEvents []audit.Event
	for _, userEvents := range s.events {
		allEvents = append(allEvents, userEvents...)
	}

	start := len(allEvents) - limit
	if start < 0 {
		start = 0
	}
	return allEvents[start:], nil
}

// BlockedStore is an InMemoryStore whose Append blocks until Unblock is
// called. Used to test that emitters never block on a stalled sink.
type BlockedStore struct {
	InMemoryStore
	release chan struct{}
	once    sync.Once
}

func NewBlockedStore() *BlockedStore {
	return &BlockedStore{
		InMemoryStore: InMemoryStore{events: make(map[string][]audit.Event)},
		release:       make(chan struct{}),
	}
}

func (s *BlockedStore) Append(ctx context.Context, event audit.Event) error {
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.InMemoryStore.Append(ctx, event)
}

func (s *BlockedStore) Unblock() {
	s.once.Do(func() { close(s.release) })
}
