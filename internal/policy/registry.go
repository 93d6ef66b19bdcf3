package policy

import (
	"sort"
)

// NamespaceSpec declares one namespace the platform knows about and the
// actions defined under it.
type NamespaceSpec struct {
	Label            string
	SupportedActions []string
}

// WildcardPolicy controls which wildcard collapses the matrix compiler may
// emit and expand.
type WildcardPolicy struct {
	AllowNamespaceWildcard bool
	AllowGlobalWildcard    bool
}

// Registry is the process-wide namespace/action catalogue. It is built once
// at startup and never mutated afterwards, so it may be shared freely across
// goroutines. Changing the action set means redeploying, not patching at
// runtime.
type Registry struct {
	namespaces    map[string]NamespaceSpec
	wildcard      WildcardPolicy
	defaultScopes map[string][]string
}

// RegistryOption configures optional registry behavior.
type RegistryOption func(*Registry)

// WithDefaultScope sets the resource scope the matrix compiler emits for a
// namespace instead of ["*"].
func WithDefaultScope(namespace string, resources []string) RegistryOption {
	return func(r *Registry) {
		r.defaultScopes[namespace] = append([]string(nil), resources...)
	}
}

// NewRegistry builds an immutable registry. The input map is copied; later
// mutation of the caller's map has no effect.
func NewRegistry(namespaces map[string]NamespaceSpec, wildcard WildcardPolicy, opts ...RegistryOption) *Registry {
	copied := make(map[string]NamespaceSpec, len(namespaces))
	for key, spec := range namespaces {
		copied[key] = NamespaceSpec{
			Label:            spec.Label,
			SupportedActions: append([]string(nil), spec.SupportedActions...),
		}
	}
	r := &Registry{
		namespaces:    copied,
		wildcard:      wildcard,
		defaultScopes: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Namespaces returns all known namespace keys, sorted for deterministic
// iteration.
func (r *Registry) Namespaces() []string {
	keys := make([]string, 0, len(r.namespaces))
	for key := range r.namespaces {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Knows reports whether the namespace is registered.
func (r *Registry) Knows(namespace string) bool {
	_, ok := r.namespaces[namespace]
	return ok
}

// Actions returns the declared actions for a namespace.
func (r *Registry) Actions(namespace string) ([]string, bool) {
	spec, ok := r.namespaces[namespace]
	if !ok {
		return nil, false
	}
	return append([]string(nil), spec.SupportedActions...), true
}

// Label returns the human-readable label for a namespace.
func (r *Registry) Label(namespace string) string {
	return r.namespaces[namespace].Label
}

// Wildcard returns the wildcard policy.
func (r *Registry) Wildcard() WildcardPolicy {
	return r.wildcard
}

// DefaultScope returns the resource scope for a namespace, defaulting to
// ["*"].
func (r *Registry) DefaultScope(namespace string) []string {
	if scope, ok := r.defaultScopes[namespace]; ok {
		return append([]string(nil), scope...)
	}
	return []string{"*"}
}
