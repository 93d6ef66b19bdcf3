package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contentRegistry(wildcard WildcardPolicy, opts ...RegistryOption) *Registry {
	return NewRegistry(map[string]NamespaceSpec{
		"articles":   {Label: "Articles", SupportedActions: []string{"read", "write", "publish", "delete"}},
		"categories": {Label: "Categories", SupportedActions: []string{"read", "write"}},
		"media":      {Label: "Media Library", SupportedActions: []string{"read", "upload"}},
	}, wildcard, opts...)
}

func TestRegistry_Lookup(t *testing.T) {
	reg := contentRegistry(WildcardPolicy{})

	assert.Equal(t, []string{"articles", "categories", "media"}, reg.Namespaces())
	assert.True(t, reg.Knows("articles"))
	assert.False(t, reg.Knows("royalties"))

	actions, ok := reg.Actions("categories")
	require.True(t, ok)
	assert.Equal(t, []string{"read", "write"}, actions)

	_, ok = reg.Actions("royalties")
	assert.False(t, ok)

	assert.Equal(t, "Media Library", reg.Label("media"))
}

func TestRegistry_IsImmutable(t *testing.T) {
	source := map[string]NamespaceSpec{
		"articles": {Label: "Articles", SupportedActions: []string{"read"}},
	}
	reg := NewRegistry(source, WildcardPolicy{})

	// Mutating the caller's map after construction must not leak in.
	source["injected"] = NamespaceSpec{Label: "Injected"}
	source["articles"].SupportedActions[0] = "write"

	assert.False(t, reg.Knows("injected"))
	actions, _ := reg.Actions("articles")
	assert.Equal(t, []string{"read"}, actions)

	// Mutating a returned slice must not affect the registry either.
	actions[0] = "delete"
	fresh, _ := reg.Actions("articles")
	assert.Equal(t, []string{"read"}, fresh)
}

func TestRegistry_DefaultScope(t *testing.T) {
	reg := contentRegistry(WildcardPolicy{},
		WithDefaultScope("media", []string{"library/*"}))

	assert.Equal(t, []string{"library/*"}, reg.DefaultScope("media"))
	assert.Equal(t, []string{"*"}, reg.DefaultScope("articles"))
}
