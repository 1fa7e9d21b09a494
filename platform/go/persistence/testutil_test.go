package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/queuex-cloud/queuex/platform/go/tenant"
)

// startTestPostgres launches a disposable server for integration tests and
// returns its connection string plus the matching tenant defaults. The
// provisioner needs a real server: CREATE DATABASE cannot be faked.
func startTestPostgres(t *testing.T, ctx context.Context) (string, tenant.Defaults) {
	t.Helper()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("postgres"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	defaults := tenant.Defaults{
		Host:     host,
		Port:     port.Int(),
		User:     "postgres",
		Password: "postgres",
	}
	return connString, defaults
}

// databaseExists checks pg_database through the maintenance connection.
func databaseExists(t *testing.T, ctx context.Context, defaults tenant.Defaults, name string) bool {
	t.Helper()

	adminCfg := tenant.DeriveConfig("placeholder", defaults).WithDatabase("postgres")
	pool, err := NewPool(ctx, PoolConfig{ConnString: adminCfg.ConnString()})
	require.NoError(t, err)
	defer ClosePool(pool)

	var exists bool
	err = pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`, name,
	).Scan(&exists)
	require.NoError(t, err)
	return exists
}
