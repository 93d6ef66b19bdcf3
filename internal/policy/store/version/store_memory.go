// Package version persists the append-only policy version history.
package version

import (
	"context"
	"sort"
	"sync"

	"aegis/internal/policy/models"
	"aegis/pkg/platform/sentinel"
)

// InMemoryStore keeps versions in process memory. Used by unit tests and
// local runs; the postgres store is the production implementation.
type InMemoryStore struct {
	mu       sync.RWMutex
	versions map[string]models.Version   // by version id
	byPolicy map[string][]string         // policy id -> version ids
	policies map[string]models.Policy    // by policy id
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		versions: make(map[string]models.Version),
		byPolicy: make(map[string][]string),
		policies: make(map[string]models.Policy),
	}
}

// SeedPolicy registers a policy record. Test and bootstrap helper.
func (s *InMemoryStore) SeedPolicy(p models.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.ID] = p
}

func (s *InMemoryStore) ListPolicies(_ context.Context) ([]models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemoryStore) GetPolicy(_ context.Context, policyID string) (models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[policyID]
	if !ok {
		return models.Policy{}, sentinel.ErrNotFound
	}
	return p, nil
}

func (s *InMemoryStore) Insert(_ context.Context, v models.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.versions[v.VersionID]; exists {
		return sentinel.ErrConflict
	}
	s.versions[v.VersionID] = v
	s.byPolicy[v.PolicyID] = append(s.byPolicy[v.PolicyID], v.VersionID)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, versionID string) (models.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[versionID]
	if !ok {
		return models.Version{}, sentinel.ErrNotFound
	}
	return v, nil
}

func (s *InMemoryStore) ListByPolicy(_ context.Context, policyID string) ([]models.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byPolicy[policyID]
	out := make([]models.Version, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.versions[id])
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].VersionNumber < out[j].VersionNumber
	})
	return out, nil
}

func (s *InMemoryStore) GetDefault(_ context.Context, policyID string) (models.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.byPolicy[policyID] {
		if v := s.versions[id]; v.IsDefault {
			return v, nil
		}
	}
	return models.Version{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) NextVersionNumber(_ context.Context, policyID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	next := 1
	for _, id := range s.byPolicy[policyID] {
		if n := s.versions[id].VersionNumber; n >= next {
			next = n + 1
		}
	}
	return next, nil
}

func (s *InMemoryStore) ClearDefault(_ context.Context, policyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.byPolicy[policyID] {
		if v := s.versions[id]; v.IsDefault {
			v.IsDefault = false
			s.versions[id] = v
		}
	}
	return nil
}

func (s *InMemoryStore) SetDefault(_ context.Context, policyID, versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[versionID]
	if !ok || v.PolicyID != policyID {
		return sentinel.ErrNotFound
	}
	v.IsDefault = true
	s.versions[versionID] = v
	return nil
}
