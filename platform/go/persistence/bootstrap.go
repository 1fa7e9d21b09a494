package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/queuex-cloud/queuex/database"
)

// Bootstrap applies the tenant-local table set inside a freshly created (or
// reconnected) tenant database. Every statement is CREATE TABLE IF NOT EXISTS,
// so re-running against an already bootstrapped database is a no-op.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	return applyStatements(ctx, pool, sqlassets.TenantTablesSQL)
}

// BootstrapBranch applies the branch-local table set for the branch-level
// database variant.
func BootstrapBranch(ctx context.Context, pool *pgxpool.Pool) error {
	return applyStatements(ctx, pool, sqlassets.BranchTablesSQL)
}

// EnsureControlPlane creates the shared companies registry table. Idempotent;
// invoked at startup and by tests.
func EnsureControlPlane(ctx context.Context, pool *pgxpool.Pool) error {
	return applyStatements(ctx, pool, sqlassets.CompaniesSQL)
}

// applyStatements splits an embedded DDL asset on ";" and executes each
// statement in order. pgx's extended protocol rejects multi-statement strings,
// hence the split. Any failure aborts and propagates.
func applyStatements(ctx context.Context, pool *pgxpool.Pool, ddl string) error {
	for _, raw := range strings.Split(ddl, ";") {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema ddl: %w", err)
		}
	}
	return nil
}
