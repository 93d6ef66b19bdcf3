//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers Postgres instance with the schema
// applied.
type PostgresContainer struct {
	Container testcontainers.Container
	URL       string
	DB        *sql.DB
}

// NewPostgresContainer starts a Postgres container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("aegis_test"),
		tcpostgres.WithUsername("aegis"),
		tcpostgres.WithPassword("aegis"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres connection: %v", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}

	pc := &PostgresContainer{Container: container, URL: url, DB: db}
	if err := pc.applySchema(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}
	return pc
}

// Exec runs a statement against the test database.
func (p *PostgresContainer) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return p.DB.ExecContext(ctx, query, args...)
}

// TruncateTables empties the given tables between tests.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	_, err := p.DB.ExecContext(ctx,
		fmt.Sprintf("TRUNCATE TABLE %s CASCADE", strings.Join(tables, ", ")))
	return err
}

func (p *PostgresContainer) applySchema(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS policies (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS policy_versions (
	version_id     TEXT PRIMARY KEY,
	policy_id      TEXT NOT NULL REFERENCES policies(id),
	version_number INT  NOT NULL,
	is_default     BOOLEAN NOT NULL DEFAULT FALSE,
	document_json  TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	created_by     TEXT NOT NULL DEFAULT '',
	UNIQUE (policy_id, version_number)
);

CREATE UNIQUE INDEX IF NOT EXISTS policy_versions_one_default
	ON policy_versions (policy_id) WHERE is_default;

CREATE TABLE IF NOT EXISTS roles (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS role_policies (
	role_id   TEXT NOT NULL REFERENCES roles(id),
	policy_id TEXT NOT NULL REFERENCES policies(id),
	PRIMARY KEY (role_id, policy_id)
);

CREATE TABLE IF NOT EXISTS user_roles (
	user_id TEXT NOT NULL,
	role_id TEXT NOT NULL REFERENCES roles(id),
	PRIMARY KEY (user_id, role_id)
);

CREATE TABLE IF NOT EXISTS audit_events (
	id           UUID PRIMARY KEY,
	category     TEXT NOT NULL,
	timestamp    TIMESTAMPTZ NOT NULL,
	user_id      TEXT NOT NULL DEFAULT '',
	action       TEXT NOT NULL,
	namespace    TEXT NOT NULL DEFAULT '',
	verb         TEXT NOT NULL DEFAULT '',
	category_id  TEXT NOT NULL DEFAULT '',
	resource_id  TEXT NOT NULL DEFAULT '',
	decision     TEXT NOT NULL DEFAULT '',
	reason       TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL DEFAULT '',
	policy_id    TEXT NOT NULL DEFAULT '',
	from_version TEXT NOT NULL DEFAULT '',
	to_version   TEXT NOT NULL DEFAULT '',
	detail       TEXT NOT NULL DEFAULT '',
	request_id   TEXT NOT NULL DEFAULT '',
	actor_id     TEXT NOT NULL DEFAULT ''
);
`
