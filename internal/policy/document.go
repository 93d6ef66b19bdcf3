// Package policy implements the declarative policy document model and its
// evaluation: IAM-style statements with wildcard action/resource matching,
// condition operators, and explicit-deny-wins semantics.
package policy

import (
	"encoding/json"
	"fmt"

	dErrors "aegis/pkg/domain-errors"
)

// Effect is the outcome a statement contributes when it matches.
type Effect string

const (
	EffectAllow Effect = "Allow"
	EffectDeny  Effect = "Deny"
)

// Statement is one allow/deny rule within a policy document.
//
// Exactly one of Action/NotAction must be populated. Resource/NotResource are
// optional; absence means the statement applies to all resources. Condition
// maps an operator name to context-key/expected-value pairs that must all
// hold for the statement to match.
type Statement struct {
	SID         string                       `json:"sid,omitempty"`
	Effect      Effect                       `json:"effect,omitempty"`
	Action      []string                     `json:"action,omitempty"`
	NotAction   []string                     `json:"notAction,omitempty"`
	Resource    []string                     `json:"resource,omitempty"`
	NotResource []string                     `json:"notResource,omitempty"`
	Condition   map[string]map[string]string `json:"condition,omitempty"`
}

// Document is a named, versioned set of statements. Statement order is
// irrelevant to evaluation; it only affects the order in which matched
// statements are reported.
type Document struct {
	Version     string            `json:"version,omitempty"`
	ID          string            `json:"id,omitempty"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Statements  []Statement       `json:"statement"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// SchemaVersion tags documents produced by this service.
const SchemaVersion = "2024-01"

// ParseDocument decodes and validates a JSON policy document.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, dErrors.Wrap(err, dErrors.CodeValidation, "malformed policy document")
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Validate checks structural invariants. It normalizes an unspecified effect
// to Allow so callers can rely on Effect being one of the two known values.
func (d *Document) Validate() error {
	for i := range d.Statements {
		stmt := &d.Statements[i]
		if stmt.Effect == "" {
			stmt.Effect = EffectAllow
		}
		if stmt.Effect != EffectAllow && stmt.Effect != EffectDeny {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("statement %s: unknown effect %q", d.statementLabel(i), stmt.Effect))
		}
		if len(stmt.Action) > 0 && len(stmt.NotAction) > 0 {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("statement %s: action and notAction are mutually exclusive", d.statementLabel(i)))
		}
		if len(stmt.Resource) > 0 && len(stmt.NotResource) > 0 {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("statement %s: resource and notResource are mutually exclusive", d.statementLabel(i)))
		}
	}
	return nil
}

// Marshal serializes the document to JSON.
func (d Document) Marshal() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "serialize policy document")
	}
	return data, nil
}

// statementLabel returns the SID when set, otherwise a positional label for
// error messages.
func (d Document) statementLabel(i int) string {
	if d.Statements[i].SID != "" {
		return d.Statements[i].SID
	}
	return fmt.Sprintf("#%d", i)
}
