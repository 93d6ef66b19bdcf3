package policy

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCompiler(wildcard WildcardPolicy, opts ...RegistryOption) *Compiler {
	return NewCompiler(contentRegistry(wildcard, opts...), slog.Default())
}

func TestMatrixToDocument_ExplicitActions(t *testing.T) {
	c := newTestCompiler(WildcardPolicy{})
	matrix := Matrix{
		"articles":   {"read": true, "write": true, "publish": false, "delete": false},
		"categories": {"read": true, "write": false},
		"media":      {"read": false, "upload": false},
	}

	doc := c.MatrixToDocument("editor", "pol-1", matrix)
	assert.Equal(t, "editor", doc.Name)
	assert.Equal(t, "pol-1", doc.ID)
	assert.Equal(t, SchemaVersion, doc.Version)
	require.Len(t, doc.Statements, 2)

	// Namespaces are emitted sorted, one Allow statement each.
	assert.Equal(t, "AllowArticles", doc.Statements[0].SID)
	assert.Equal(t, EffectAllow, doc.Statements[0].Effect)
	assert.Equal(t, []string{"articles:read", "articles:write"}, doc.Statements[0].Action)
	assert.Equal(t, []string{"*"}, doc.Statements[0].Resource)

	assert.Equal(t, "AllowCategories", doc.Statements[1].SID)
	assert.Equal(t, []string{"categories:read"}, doc.Statements[1].Action)
}

func TestMatrixToDocument_CollapsesToNamespaceWildcard(t *testing.T) {
	t.Run("collapses when permitted and fully enabled", func(t *testing.T) {
		c := newTestCompiler(WildcardPolicy{AllowNamespaceWildcard: true})
		matrix := Matrix{
			"categories": {"read": true, "write": true},
		}
		doc := c.MatrixToDocument("cats", "pol-2", matrix)
		require.Len(t, doc.Statements, 1)
		assert.Equal(t, []string{"categories:*"}, doc.Statements[0].Action)
	})

	t.Run("no collapse when registry forbids wildcard", func(t *testing.T) {
		c := newTestCompiler(WildcardPolicy{})
		matrix := Matrix{
			"categories": {"read": true, "write": true},
		}
		doc := c.MatrixToDocument("cats", "pol-2", matrix)
		require.Len(t, doc.Statements, 1)
		assert.Equal(t, []string{"categories:read", "categories:write"}, doc.Statements[0].Action)
	})

	t.Run("no collapse when partially enabled", func(t *testing.T) {
		c := newTestCompiler(WildcardPolicy{AllowNamespaceWildcard: true})
		matrix := Matrix{
			"articles": {"read": true, "write": true, "publish": true, "delete": false},
		}
		doc := c.MatrixToDocument("writer", "pol-3", matrix)
		require.Len(t, doc.Statements, 1)
		assert.Equal(t,
			[]string{"articles:read", "articles:write", "articles:publish"},
			doc.Statements[0].Action)
	})
}

func TestMatrixToDocument_SkipsUnknownNamespace(t *testing.T) {
	c := newTestCompiler(WildcardPolicy{})
	matrix := Matrix{
		"royalties": {"read": true},
		"articles":  {"read": true},
	}
	doc := c.MatrixToDocument("mixed", "pol-4", matrix)
	require.Len(t, doc.Statements, 1)
	assert.Equal(t, "AllowArticles", doc.Statements[0].SID)
}

func TestMatrixToDocument_NamespaceDefaultScope(t *testing.T) {
	c := newTestCompiler(WildcardPolicy{},
		WithDefaultScope("media", []string{"library/*"}))
	matrix := Matrix{"media": {"read": true}}

	doc := c.MatrixToDocument("librarian", "pol-5", matrix)
	require.Len(t, doc.Statements, 1)
	assert.Equal(t, []string{"library/*"}, doc.Statements[0].Resource)
}

func TestDocumentToMatrix_AllowsThenDenies(t *testing.T) {
	c := newTestCompiler(WildcardPolicy{AllowNamespaceWildcard: true})
	doc := Document{
		Name: "editor",
		Statements: []Statement{
			{Effect: EffectAllow, Action: []string{"articles:*"}},
			{Effect: EffectDeny, Action: []string{"articles:delete"}},
		},
	}

	matrix := c.DocumentToMatrix(doc)
	assert.True(t, matrix["articles"]["read"])
	assert.True(t, matrix["articles"]["publish"])
	// Deny overrides allow in the projection, mirroring evaluation.
	assert.False(t, matrix["articles"]["delete"])
	// Untouched namespaces stay all-false.
	assert.False(t, matrix["media"]["upload"])
}

func TestDocumentToMatrix_WildcardGating(t *testing.T) {
	doc := Document{
		Name: "root",
		Statements: []Statement{
			{Effect: EffectAllow, Action: []string{"*:*"}},
		},
	}

	t.Run("global wildcard expands when permitted", func(t *testing.T) {
		c := newTestCompiler(WildcardPolicy{AllowGlobalWildcard: true})
		matrix := c.DocumentToMatrix(doc)
		assert.True(t, matrix["articles"]["delete"])
		assert.True(t, matrix["media"]["upload"])
	})

	t.Run("global wildcard ignored when forbidden", func(t *testing.T) {
		c := newTestCompiler(WildcardPolicy{AllowNamespaceWildcard: true})
		matrix := c.DocumentToMatrix(doc)
		assert.False(t, matrix["articles"]["delete"])
		assert.False(t, matrix["media"]["upload"])
	})

	t.Run("namespace wildcard ignored when forbidden", func(t *testing.T) {
		c := newTestCompiler(WildcardPolicy{})
		matrix := c.DocumentToMatrix(Document{
			Name: "P",
			Statements: []Statement{
				{Effect: EffectAllow, Action: []string{"articles:*"}},
			},
		})
		assert.False(t, matrix["articles"]["read"])
	})
}

func TestDocumentToMatrix_SkipsConditionalAndComplementStatements(t *testing.T) {
	c := newTestCompiler(WildcardPolicy{})
	matrix := c.DocumentToMatrix(Document{
		Name: "P",
		Statements: []Statement{
			{Effect: EffectAllow, Action: []string{"articles:read"},
				Condition: map[string]map[string]string{"Bool": {"mfa": "true"}}},
			{Effect: EffectAllow, NotAction: []string{"articles:delete"}},
			{Effect: EffectAllow, Action: []string{"categories:read"}},
		},
	})

	// Conditional grants are not part of the unconditional matrix view.
	assert.False(t, matrix["articles"]["read"])
	// notAction complements are not projectable.
	assert.False(t, matrix["media"]["read"])
	// Plain grants still apply.
	assert.True(t, matrix["categories"]["read"])
}

// Matrix round-trip: for a matrix with no wildcard-eligible namespace,
// documentToMatrix(matrixToDocument(m)) == m.
func TestMatrixRoundTrip(t *testing.T) {
	c := newTestCompiler(WildcardPolicy{})
	original := Matrix{
		"articles":   {"read": true, "write": false, "publish": true, "delete": false},
		"categories": {"read": false, "write": true},
		"media":      {"read": true, "upload": false},
	}

	doc := c.MatrixToDocument("roundtrip", "pol-9", original)
	projected := c.DocumentToMatrix(doc)
	assert.Equal(t, original, projected)
}

func TestMatrix_Clone(t *testing.T) {
	m := Matrix{"articles": {"read": true}}
	clone := m.Clone()
	clone["articles"]["read"] = false
	assert.True(t, m["articles"]["read"])
}

func TestExportName(t *testing.T) {
	assert.Equal(t, "Articles", exportName("articles"))
	assert.Equal(t, "CrawlerJobs", exportName("crawler-jobs"))
	assert.Equal(t, "RoyaltyLedger", exportName("royalty_ledger"))
}
