package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/queuex-cloud/queuex/platform/go/metrics"
	"github.com/queuex-cloud/queuex/platform/go/tenant"
)

// DefaultAdminDatabase is the server maintenance database used for DDL.
const DefaultAdminDatabase = "postgres"

const defaultDDLTimeout = 30 * time.Second

// Provisioner creates and destroys physical tenant databases. It is invoked
// once per tenant lifecycle from the company-management flow; request-time
// code never provisions.
type Provisioner struct {
	defaults      tenant.Defaults
	adminDatabase string
	cache         *ConnCache
	logger        *zap.Logger
	ddlTimeout    time.Duration
}

// ProvisionerConfig wires the provisioner's collaborators.
type ProvisionerConfig struct {
	Defaults      tenant.Defaults
	AdminDatabase string // maintenance database; defaults to "postgres"
	Cache         *ConnCache
	Logger        *zap.Logger
	DDLTimeout    time.Duration // bound on admin connections and DDL; defaults to 30s
}

// NewProvisioner constructs a Provisioner.
func NewProvisioner(cfg ProvisionerConfig) *Provisioner {
	if cfg.Cache == nil {
		panic("provisioner requires connection cache")
	}
	if cfg.AdminDatabase == "" {
		cfg.AdminDatabase = DefaultAdminDatabase
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.DDLTimeout <= 0 {
		cfg.DDLTimeout = defaultDDLTimeout
	}
	return &Provisioner{
		defaults:      cfg.Defaults,
		adminDatabase: cfg.AdminDatabase,
		cache:         cfg.Cache,
		logger:        cfg.Logger,
		ddlTimeout:    cfg.DDLTimeout,
	}
}

// CreateTenantDatabase creates the company's physical database, bootstraps the
// tenant tables, seeds the connection cache, and returns the derived config.
// Any failure after CREATE DATABASE succeeded triggers a compensating drop
// before the original error is surfaced.
func (p *Provisioner) CreateTenantDatabase(ctx context.Context, slug string) (tenant.DatabaseConfig, error) {
	cfg := tenant.DeriveConfig(slug, p.defaults)
	if err := p.create(ctx, slug, cfg, Bootstrap); err != nil {
		return tenant.DatabaseConfig{}, err
	}
	return cfg, nil
}

// CreateBranchDatabase is the branch-level variant; the handle is cached under
// the composite company_branch key.
func (p *Provisioner) CreateBranchDatabase(ctx context.Context, companySlug, branchSlug string) (tenant.DatabaseConfig, error) {
	cfg := tenant.DeriveBranchConfig(companySlug, branchSlug, p.defaults)
	if err := p.create(ctx, tenant.BranchKey(companySlug, branchSlug), cfg, BootstrapBranch); err != nil {
		return tenant.DatabaseConfig{}, err
	}
	return cfg, nil
}

// DeleteTenantDatabase evicts the cached handle and drops the database.
// Idempotent: dropping a non-existent database is not an error.
func (p *Provisioner) DeleteTenantDatabase(ctx context.Context, slug string) error {
	return p.delete(ctx, slug, tenant.DeriveConfig(slug, p.defaults))
}

// DeleteBranchDatabase is the branch-level variant of DeleteTenantDatabase.
func (p *Provisioner) DeleteBranchDatabase(ctx context.Context, companySlug, branchSlug string) error {
	return p.delete(ctx, tenant.BranchKey(companySlug, branchSlug),
		tenant.DeriveBranchConfig(companySlug, branchSlug, p.defaults))
}

func (p *Provisioner) create(ctx context.Context, key string, cfg tenant.DatabaseConfig, bootstrap func(context.Context, *pgxpool.Pool) error) error {
	if err := tenant.ValidateIdentifier(cfg.Database); err != nil {
		metrics.RecordProvision("create", "rejected")
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.ddlTimeout)
	defer cancel()

	if err := p.execAdmin(ctx, cfg, fmt.Sprintf("CREATE DATABASE %s", pgx.Identifier{cfg.Database}.Sanitize())); err != nil {
		// Nothing to compensate: the database was never created.
		metrics.RecordProvision("create", "error")
		return fmt.Errorf("create database %s: %w", cfg.Database, err)
	}

	pool, err := NewPool(ctx, PoolConfig{ConnString: cfg.ConnString()})
	if err != nil {
		p.compensate(ctx, key, cfg)
		metrics.RecordProvision("create", "error")
		return &tenant.ProvisioningError{Slug: key, Err: fmt.Errorf("connect tenant database: %w", err)}
	}

	if err := bootstrap(ctx, pool); err != nil {
		pool.Close()
		p.compensate(ctx, key, cfg)
		metrics.RecordProvision("create", "error")
		return &tenant.ProvisioningError{Slug: key, Err: fmt.Errorf("bootstrap schema: %w", err)}
	}

	p.cache.Insert(key, pool)
	p.logger.Info("tenant database provisioned",
		zap.String("tenant", key),
		zap.String("database", cfg.Database),
	)
	metrics.RecordProvision("create", "ok")
	return nil
}

func (p *Provisioner) delete(ctx context.Context, key string, cfg tenant.DatabaseConfig) error {
	if err := tenant.ValidateIdentifier(cfg.Database); err != nil {
		metrics.RecordProvision("delete", "rejected")
		return err
	}

	// A database cannot be dropped while connections are attached.
	p.cache.Evict(key)

	ctx, cancel := context.WithTimeout(ctx, p.ddlTimeout)
	defer cancel()

	if err := p.execAdmin(ctx, cfg, fmt.Sprintf("DROP DATABASE IF EXISTS %s", pgx.Identifier{cfg.Database}.Sanitize())); err != nil {
		metrics.RecordProvision("delete", "error")
		return &tenant.TeardownError{Slug: key, Err: err}
	}

	p.logger.Info("tenant database dropped",
		zap.String("tenant", key),
		zap.String("database", cfg.Database),
	)
	metrics.RecordProvision("delete", "ok")
	return nil
}

// compensate drops the just-created database after a later provisioning step
// failed, preserving the registry/database one-to-one invariant. Best-effort,
// attempted exactly once, logged regardless of outcome.
func (p *Provisioner) compensate(ctx context.Context, key string, cfg tenant.DatabaseConfig) {
	// The original context may already be cancelled or expired.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.ddlTimeout)
	defer cancel()

	if err := p.execAdmin(ctx, cfg, fmt.Sprintf("DROP DATABASE IF EXISTS %s", pgx.Identifier{cfg.Database}.Sanitize())); err != nil {
		p.logger.Error("compensating teardown failed",
			zap.String("tenant", key),
			zap.String("database", cfg.Database),
			zap.Error(err),
		)
		return
	}

	p.logger.Warn("provisioning rolled back",
		zap.String("tenant", key),
		zap.String("database", cfg.Database),
	)
}

// execAdmin runs one DDL statement over a short-lived administrative
// connection to the maintenance database. The connection is released in all
// cases: success, failure, timeout.
func (p *Provisioner) execAdmin(ctx context.Context, cfg tenant.DatabaseConfig, stmt string) error {
	conn, err := pgx.Connect(ctx, cfg.WithDatabase(p.adminDatabase).ConnString())
	if err != nil {
		return fmt.Errorf("connect admin database: %w", err)
	}
	defer func() { _ = conn.Close(context.WithoutCancel(ctx)) }()

	if _, err := conn.Exec(ctx, stmt); err != nil {
		return err
	}
	return nil
}
