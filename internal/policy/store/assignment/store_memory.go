// Package assignment resolves which policies reach a principal through its
// roles, and how many roles/users a policy change would affect.
package assignment

import (
	"context"
	"sync"

	"aegis/internal/policy/models"
)

// InMemoryStore models the role graph in memory: role -> policies,
// user -> roles. Used by unit tests and local runs.
type InMemoryStore struct {
	mu           sync.RWMutex
	rolePolicies map[string][]string // role name -> policy ids
	userRoles    map[string][]string // user id -> role names
	defaultDocs  func(ctx context.Context, policyID string) (models.Version, error)
	policyNames  map[string]string
}

// NewInMemoryStore builds an assignment store. defaultDocs resolves the
// current default version for a policy (typically the version store's
// GetDefault) so principal resolution always sees the active document.
func NewInMemoryStore(defaultDocs func(ctx context.Context, policyID string) (models.Version, error)) *InMemoryStore {
	return &InMemoryStore{
		rolePolicies: make(map[string][]string),
		userRoles:    make(map[string][]string),
		defaultDocs:  defaultDocs,
		policyNames:  make(map[string]string),
	}
}

// BindPolicy attaches a policy to a role.
func (s *InMemoryStore) BindPolicy(role, policyID, policyName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolePolicies[role] = append(s.rolePolicies[role], policyID)
	s.policyNames[policyID] = policyName
}

// AssignRole attaches a role to a user.
func (s *InMemoryStore) AssignRole(userID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userRoles[userID] = append(s.userRoles[userID], role)
}

// CountImpact returns how many roles and users are bound to a policy.
func (s *InMemoryStore) CountImpact(_ context.Context, policyID string) (models.Impact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var impact models.Impact
	bound := make(map[string]bool)
	for role, policies := range s.rolePolicies {
		for _, id := range policies {
			if id == policyID {
				impact.Roles++
				bound[role] = true
				break
			}
		}
	}
	for _, roles := range s.userRoles {
		for _, role := range roles {
			if bound[role] {
				impact.Users++
				break
			}
		}
	}
	return impact, nil
}

// PoliciesForPrincipal returns the union of policies attached to all of the
// user's roles, each carrying its current default document. Policies without
// a default version are returned with an empty document; the caller decides
// how to degrade.
func (s *InMemoryStore) PoliciesForPrincipal(ctx context.Context, userID string) ([]models.PrincipalPolicy, error) {
	s.mu.RLock()
	roles := append([]string(nil), s.userRoles[userID]...)
	type binding struct{ role, policyID string }
	var bindings []binding
	seen := make(map[string]bool)
	for _, role := range roles {
		for _, policyID := range s.rolePolicies[role] {
			if seen[policyID] {
				continue
			}
			seen[policyID] = true
			bindings = append(bindings, binding{role: role, policyID: policyID})
		}
	}
	names := make(map[string]string, len(bindings))
	for _, b := range bindings {
		names[b.policyID] = s.policyNames[b.policyID]
	}
	s.mu.RUnlock()

	out := make([]models.PrincipalPolicy, 0, len(bindings))
	for _, b := range bindings {
		pp := models.PrincipalPolicy{
			PolicyID: b.policyID,
			Name:     names[b.policyID],
			RoleName: b.role,
		}
		if s.defaultDocs != nil {
			if v, err := s.defaultDocs(ctx, b.policyID); err == nil {
				pp.DocumentJSON = v.DocumentJSON
			}
		}
		out = append(out, pp)
	}
	return out, nil
}
