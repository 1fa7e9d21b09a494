package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/queuex-cloud/queuex/platform/go/tenant"
)

func TestProvisionerLifecycleIntegration(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping provisioner integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	_, defaults := startTestPostgres(t, ctx)

	cache := NewConnCache(defaults, nil)
	t.Cleanup(cache.EvictAll)

	prov := NewProvisioner(ProvisionerConfig{
		Defaults: defaults,
		Cache:    cache,
	})

	cfg, err := prov.CreateTenantDatabase(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "queuex_acme", cfg.Database)
	require.True(t, databaseExists(t, ctx, defaults, "queuex_acme"))

	// Provisioning seeded the cache with a working, bootstrapped handle.
	pool, ok := cache.Get("acme")
	require.True(t, ok)
	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM "queues"`).Scan(&count))
	require.Zero(t, count)

	// A second create fails without tearing down the existing database.
	_, err = prov.CreateTenantDatabase(ctx, "acme")
	require.Error(t, err)
	require.True(t, databaseExists(t, ctx, defaults, "queuex_acme"))
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM "queues"`).Scan(&count))

	branchCfg, err := prov.CreateBranchDatabase(ctx, "acme", "downtown")
	require.NoError(t, err)
	require.Equal(t, "queuex_acme_downtown", branchCfg.Database)
	require.True(t, databaseExists(t, ctx, defaults, "queuex_acme_downtown"))

	branchPool, ok := cache.Get(tenant.BranchKey("acme", "downtown"))
	require.True(t, ok)
	require.NoError(t, branchPool.QueryRow(ctx, `SELECT COUNT(*) FROM "customers"`).Scan(&count))

	// Derived names outside the identifier allow-list never reach the server.
	_, err = prov.CreateTenantDatabase(ctx, "bad.slug")
	require.Error(t, err)
	require.False(t, databaseExists(t, ctx, defaults, "queuex_bad.slug"))

	require.NoError(t, prov.DeleteBranchDatabase(ctx, "acme", "downtown"))
	require.False(t, databaseExists(t, ctx, defaults, "queuex_acme_downtown"))

	require.NoError(t, prov.DeleteTenantDatabase(ctx, "acme"))
	require.False(t, databaseExists(t, ctx, defaults, "queuex_acme"))
	require.Equal(t, 0, cache.Len())

	// Dropping an already absent database is not an error.
	require.NoError(t, prov.DeleteTenantDatabase(ctx, "acme"))
}

func TestProvisionerCompensatesFailedBootstrapIntegration(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping provisioner integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	_, defaults := startTestPostgres(t, ctx)

	cache := NewConnCache(defaults, nil)
	t.Cleanup(cache.EvictAll)

	prov := NewProvisioner(ProvisionerConfig{Defaults: defaults, Cache: cache})

	bootErr := errors.New("bootstrap exploded")
	failingBootstrap := func(context.Context, *pgxpool.Pool) error { return bootErr }

	cfg := tenant.DeriveConfig("acme", defaults)
	err := prov.create(ctx, "acme", cfg, failingBootstrap)

	var provErr *tenant.ProvisioningError
	require.ErrorAs(t, err, &provErr)
	require.ErrorIs(t, err, bootErr)

	// The database created earlier in the same call was rolled back, nothing
	// was cached, and the slug is immediately reusable.
	require.False(t, databaseExists(t, ctx, defaults, "queuex_acme"))
	require.Equal(t, 0, cache.Len())

	_, err = prov.CreateTenantDatabase(ctx, "acme")
	require.NoError(t, err)
	require.True(t, databaseExists(t, ctx, defaults, "queuex_acme"))
}

func TestProvisionerBootstrapIdempotentIntegration(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping provisioner integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	_, defaults := startTestPostgres(t, ctx)

	cache := NewConnCache(defaults, nil)
	t.Cleanup(cache.EvictAll)

	prov := NewProvisioner(ProvisionerConfig{Defaults: defaults, Cache: cache})

	cfg, err := prov.CreateTenantDatabase(ctx, "clinic-1")
	require.NoError(t, err)
	require.Equal(t, "queuex_clinic_1", cfg.Database)

	// Re-running the bootstrap DDL against a populated database is a no-op.
	pool, ok := cache.Get("clinic-1")
	require.True(t, ok)

	_, err = pool.Exec(ctx, `
        INSERT INTO "queues" ("id", "number", "serviceId", "branchId")
        VALUES ('t-1', 1, 'svc-1', 'br-1')
    `)
	require.NoError(t, err)

	require.NoError(t, Bootstrap(ctx, pool))

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM "queues"`).Scan(&count))
	require.Equal(t, 1, count)
}
