package policy

import (
	"log/slog"
	"sort"
	"strings"
)

// Matrix is the edit-friendly projection of a policy document:
// namespace → action → enabled.
type Matrix map[string]map[string]bool

// Clone returns a deep copy.
func (m Matrix) Clone() Matrix {
	out := make(Matrix, len(m))
	for ns, actions := range m {
		row := make(map[string]bool, len(actions))
		for action, enabled := range actions {
			row[action] = enabled
		}
		out[ns] = row
	}
	return out
}

// Compiler converts between permission matrices and policy documents using
// the registry as the source of truth for which namespaces and actions
// exist.
type Compiler struct {
	registry *Registry
	logger   *slog.Logger
}

func NewCompiler(registry *Registry, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{registry: registry, logger: logger}
}

// MatrixToDocument emits one Allow statement per namespace that has at least
// one enabled action. When every registry-declared action of a namespace is
// enabled and the registry permits namespace wildcards, the action list
// collapses to "namespace:*". Cells for namespaces or actions the registry
// does not declare are skipped; they cannot grant anything.
func (c *Compiler) MatrixToDocument(name, id string, matrix Matrix) Document {
	doc := Document{
		Version: SchemaVersion,
		ID:      id,
		Name:    name,
	}

	namespaces := make([]string, 0, len(matrix))
	for ns := range matrix {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	for _, ns := range namespaces {
		declared, ok := c.registry.Actions(ns)
		if !ok {
			c.logger.Warn("matrix references unknown namespace, skipping",
				"namespace", ns,
				"policy", name,
			)
			continue
		}

		var enabled []string
		for _, action := range declared {
			if matrix[ns][action] {
				enabled = append(enabled, action)
			}
		}
		if len(enabled) == 0 {
			continue
		}

		actions := make([]string, 0, len(enabled))
		if len(enabled) == len(declared) && c.registry.Wildcard().AllowNamespaceWildcard {
			actions = append(actions, ns+":*")
		} else {
			for _, action := range enabled {
				actions = append(actions, ns+":"+action)
			}
		}

		doc.Statements = append(doc.Statements, Statement{
			SID:      "Allow" + exportName(ns),
			Effect:   EffectAllow,
			Action:   actions,
			Resource: c.registry.DefaultScope(ns),
		})
	}
	return doc
}

// DocumentToMatrix projects a document onto the registry's namespace/action
// grid: every known cell starts false, Allow statements set matched cells,
// then Deny statements clear them — deny overrides allow in the projection
// exactly as it does in evaluation.
//
// Wildcard entries expand only when the registry permits them: "*:*" needs
// AllowGlobalWildcard, "namespace:*" needs AllowNamespaceWildcard. Entries
// that are not permitted, reference unknown namespaces, or appear in
// notAction statements are skipped. Conditional statements are skipped too:
// the matrix is the unconditional view of a policy.
func (c *Compiler) DocumentToMatrix(doc Document) Matrix {
	matrix := make(Matrix)
	for _, ns := range c.registry.Namespaces() {
		actions, _ := c.registry.Actions(ns)
		row := make(map[string]bool, len(actions))
		for _, action := range actions {
			row[action] = false
		}
		matrix[ns] = row
	}

	c.applyStatements(matrix, doc, EffectAllow, true)
	c.applyStatements(matrix, doc, EffectDeny, false)
	return matrix
}

func (c *Compiler) applyStatements(matrix Matrix, doc Document, effect Effect, value bool) {
	for _, stmt := range doc.Statements {
		if stmt.Effect != effect {
			continue
		}
		if len(stmt.Action) == 0 {
			// notAction complements are not projectable onto a finite grid.
			continue
		}
		if len(stmt.Condition) > 0 {
			continue
		}
		for _, pattern := range stmt.Action {
			c.applyPattern(matrix, pattern, value, doc.Name)
		}
	}
}

func (c *Compiler) applyPattern(matrix Matrix, pattern string, value bool, policyName string) {
	ns, action, ok := strings.Cut(pattern, ":")
	if !ok {
		if pattern == "*" {
			ns, action = "*", "*"
		} else {
			return
		}
	}

	switch {
	case ns == "*" && action == "*":
		if !c.registry.Wildcard().AllowGlobalWildcard {
			c.logger.Warn("global wildcard not permitted by registry, skipping",
				"policy", policyName,
			)
			return
		}
		for _, row := range matrix {
			for a := range row {
				row[a] = value
			}
		}
	case action == "*":
		if !c.registry.Wildcard().AllowNamespaceWildcard {
			c.logger.Warn("namespace wildcard not permitted by registry, skipping",
				"namespace", ns,
				"policy", policyName,
			)
			return
		}
		for a := range matrix[ns] {
			matrix[ns][a] = value
		}
	default:
		if row, known := matrix[ns]; known {
			if _, declared := row[action]; declared {
				row[action] = value
			}
		}
	}
}

// exportName turns a namespace key like "crawler-jobs" into "CrawlerJobs"
// for statement SIDs.
func exportName(ns string) string {
	parts := strings.FieldsFunc(ns, func(r rune) bool {
		return r == '-' || r == '_' || r == '.'
	})
	var b strings.Builder
	for _, part := range parts {
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}
