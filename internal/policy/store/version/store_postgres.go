package version

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"aegis/internal/policy/models"
	"aegis/pkg/platform/sentinel"
	txcontext "aegis/pkg/platform/tx"
)

// PostgresStore is the production version store. Seal and rollback run their
// writes inside the transaction carried by the context (pkg/platform/tx) so
// clearing the old default and establishing the new one commit atomically.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) querier(ctx context.Context) txcontext.Querier {
	return txcontext.QuerierFrom(ctx, s.db)
}

func (s *PostgresStore) ListPolicies(ctx context.Context) ([]models.Policy, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT id, name, description, created_at
		FROM policies
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("query policies: %w", err)
	}
	defer rows.Close()

	var policies []models.Policy
	for rows.Next() {
		var p models.Policy
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func (s *PostgresStore) GetPolicy(ctx context.Context, policyID string) (models.Policy, error) {
	var p models.Policy
	err := s.querier(ctx).QueryRowContext(ctx, `
		SELECT id, name, description, created_at
		FROM policies
		WHERE id = $1
	`, policyID).Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Policy{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Policy{}, fmt.Errorf("query policy: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Insert(ctx context.Context, v models.Version) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO policy_versions (
			version_id, policy_id, version_number, is_default,
			document_json, created_at, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, v.VersionID, v.PolicyID, v.VersionNumber, v.IsDefault,
		v.DocumentJSON, v.CreatedAt, v.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert policy version: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, versionID string) (models.Version, error) {
	var v models.Version
	err := s.querier(ctx).QueryRowContext(ctx, selectVersion+`
		WHERE version_id = $1
	`, versionID).Scan(
		&v.VersionID, &v.PolicyID, &v.VersionNumber, &v.IsDefault,
		&v.DocumentJSON, &v.CreatedAt, &v.CreatedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Version{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Version{}, fmt.Errorf("query policy version: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) ListByPolicy(ctx context.Context, policyID string) ([]models.Version, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, selectVersion+`
		WHERE policy_id = $1
		ORDER BY version_number
	`, policyID)
	if err != nil {
		return nil, fmt.Errorf("query policy versions: %w", err)
	}
	defer rows.Close()

	var versions []models.Version
	for rows.Next() {
		var v models.Version
		if err := rows.Scan(
			&v.VersionID, &v.PolicyID, &v.VersionNumber, &v.IsDefault,
			&v.DocumentJSON, &v.CreatedAt, &v.CreatedBy,
		); err != nil {
			return nil, fmt.Errorf("scan policy version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *PostgresStore) GetDefault(ctx context.Context, policyID string) (models.Version, error) {
	var v models.Version
	err := s.querier(ctx).QueryRowContext(ctx, selectVersion+`
		WHERE policy_id = $1 AND is_default
	`, policyID).Scan(
		&v.VersionID, &v.PolicyID, &v.VersionNumber, &v.IsDefault,
		&v.DocumentJSON, &v.CreatedAt, &v.CreatedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Version{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Version{}, fmt.Errorf("query default version: %w", err)
	}
	return v, nil
}

// NextVersionNumber must be called inside the seal transaction; the row lock
// taken by ClearDefault serializes concurrent seals of the same policy.
func (s *PostgresStore) NextVersionNumber(ctx context.Context, policyID string) (int, error) {
	var next int
	err := s.querier(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version_number), 0) + 1
		FROM policy_versions
		WHERE policy_id = $1
	`, policyID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next version number: %w", err)
	}
	return next, nil
}

func (s *PostgresStore) ClearDefault(ctx context.Context, policyID string) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE policy_versions
		SET is_default = FALSE
		WHERE policy_id = $1 AND is_default
	`, policyID)
	if err != nil {
		return fmt.Errorf("clear default version: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetDefault(ctx context.Context, policyID, versionID string) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE policy_versions
		SET is_default = TRUE
		WHERE version_id = $1 AND policy_id = $2
	`, versionID, policyID)
	if err != nil {
		return fmt.Errorf("set default version: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set default version: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const selectVersion = `
	SELECT version_id, policy_id, version_number, is_default,
		   document_json, created_at, created_by
	FROM policy_versions
`
