package assignment

import (
	"context"
	"database/sql"
	"fmt"

	"aegis/internal/policy/models"
)

// PostgresStore resolves role bindings from the relational schema:
// role_policies (role_id, policy_id) and user_roles (user_id, role_id).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CountImpact(ctx context.Context, policyID string) (models.Impact, error) {
	var impact models.Impact
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT rp.role_id),
		       COUNT(DISTINCT ur.user_id)
		FROM role_policies rp
		LEFT JOIN user_roles ur ON ur.role_id = rp.role_id
		WHERE rp.policy_id = $1
	`, policyID).Scan(&impact.Roles, &impact.Users)
	if err != nil {
		return models.Impact{}, fmt.Errorf("count policy impact: %w", err)
	}
	return impact, nil
}

// PoliciesForPrincipal joins the user's roles to their policies and each
// policy's current default version. A policy with no default version yields
// an empty document and degrades at evaluation time.
func (s *PostgresStore) PoliciesForPrincipal(ctx context.Context, userID string) ([]models.PrincipalPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (p.id)
		       p.id, p.name, r.name, COALESCE(pv.document_json, '')
		FROM user_roles ur
		JOIN roles r          ON r.id = ur.role_id
		JOIN role_policies rp ON rp.role_id = r.id
		JOIN policies p       ON p.id = rp.policy_id
		LEFT JOIN policy_versions pv
		       ON pv.policy_id = p.id AND pv.is_default
		WHERE ur.user_id = $1
		ORDER BY p.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query principal policies: %w", err)
	}
	defer rows.Close()

	var policies []models.PrincipalPolicy
	for rows.Next() {
		var pp models.PrincipalPolicy
		if err := rows.Scan(&pp.PolicyID, &pp.Name, &pp.RoleName, &pp.DocumentJSON); err != nil {
			return nil, fmt.Errorf("scan principal policy: %w", err)
		}
		policies = append(policies, pp)
	}
	return policies, rows.Err()
}
