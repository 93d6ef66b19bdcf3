package main

import (
	"context"
	"database/sql"
	"time"

	policyservice "aegis/internal/policy/service"
	dErrors "aegis/pkg/domain-errors"
	txcontext "aegis/pkg/platform/tx"
)

const defaultPolicyTxTimeout = 5 * time.Second

// policyPostgresTx runs seal and rollback mutations inside one database
// transaction so a reader can never observe zero or two default versions.
// The transaction rides the context; the postgres store picks it up for
// every call inside fn.
type policyPostgresTx struct {
	db      *sql.DB
	store   policyservice.VersionStore
	timeout time.Duration
}

func newPolicyPostgresTx(db *sql.DB, store policyservice.VersionStore) *policyPostgresTx {
	return &policyPostgresTx{db: db, store: store}
}

func (t *policyPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store policyservice.VersionStore) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultPolicyTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx), t.store); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}

// policyMemoryTx stands in for a database transaction in dev mode.
type policyMemoryTx struct {
	store policyservice.VersionStore
}

func newPolicyMemoryTx(store policyservice.VersionStore) *policyMemoryTx {
	return &policyMemoryTx{store: store}
}

func (t *policyMemoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store policyservice.VersionStore) error) error {
	return fn(ctx, t.store)
}
