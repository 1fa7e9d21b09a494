package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/queuex-cloud/queuex/platform/go/tenant"
)

// ErrInvalidInput is returned for malformed company or branch slugs.
var ErrInvalidInput = errors.New("invalid branch input")

// Provisioner is the branch-level database lifecycle dependency.
type Provisioner interface {
	CreateBranchDatabase(ctx context.Context, companySlug, branchSlug string) (tenant.DatabaseConfig, error)
	DeleteBranchDatabase(ctx context.Context, companySlug, branchSlug string) error
}

// HandleSource yields tenant database handles from the shared connection cache.
type HandleSource interface {
	GetOrCreate(ctx context.Context, key string) (*pgxpool.Pool, error)
}

// CompanyDirectory resolves an active company by slug. Implemented by the
// companies service; returns tenant.ErrNotFound for absent or inactive ones.
type CompanyDirectory interface {
	ResolveActiveTenant(ctx context.Context, slug string) (tenant.Info, error)
}

// Service manages enterprise branch databases: the same provisioning pattern
// as companies, one level down, with composite company_branch cache keys.
// Every operation resolves the owning company first, so no branch database can
// exist under a slug the registry does not know.
type Service struct {
	provisioner Provisioner
	handles     HandleSource
	companies   CompanyDirectory
	logger      *zap.Logger
}

// New constructs a branch Service.
func New(provisioner Provisioner, handles HandleSource, companies CompanyDirectory, logger *zap.Logger) *Service {
	if provisioner == nil {
		panic("branches provisioner is required")
	}
	if handles == nil {
		panic("branches handle source is required")
	}
	if companies == nil {
		panic("branches company directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{provisioner: provisioner, handles: handles, companies: companies, logger: logger}
}

// Provision creates the branch's physical database and registers the branch in
// the company's branches table. The branch slug doubles as the row id, keeping
// the registry row addressable for Remove. If registration fails, the
// just-created database is dropped again.
func (s *Service) Provision(ctx context.Context, companySlug, branchSlug, name, address string) (tenant.DatabaseConfig, error) {
	companySlug, branchSlug, err := s.resolve(ctx, companySlug, branchSlug)
	if err != nil {
		return tenant.DatabaseConfig{}, err
	}

	cfg, err := s.provisioner.CreateBranchDatabase(ctx, companySlug, branchSlug)
	if err != nil {
		return tenant.DatabaseConfig{}, err
	}

	if err := s.register(ctx, companySlug, branchSlug, name, address); err != nil {
		if dropErr := s.provisioner.DeleteBranchDatabase(ctx, companySlug, branchSlug); dropErr != nil {
			s.logger.Error("drop branch database after registration failure",
				zap.String("company", companySlug), zap.String("branch", branchSlug), zap.Error(dropErr))
		}
		return tenant.DatabaseConfig{}, fmt.Errorf("register branch: %w", err)
	}

	s.logger.Info("branch database provisioned",
		zap.String("company", companySlug),
		zap.String("branch", branchSlug),
		zap.String("database", cfg.Database),
	)
	return cfg, nil
}

// Remove drops the branch database and deletes the registry row from the
// company's branches table. Dropping is idempotent, so Remove can be retried.
func (s *Service) Remove(ctx context.Context, companySlug, branchSlug string) error {
	companySlug, branchSlug, err := s.resolve(ctx, companySlug, branchSlug)
	if err != nil {
		return err
	}

	if err := s.provisioner.DeleteBranchDatabase(ctx, companySlug, branchSlug); err != nil {
		return err
	}

	pool, err := s.handles.GetOrCreate(ctx, companySlug)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, `DELETE FROM "branches" WHERE "id" = $1`, branchSlug); err != nil {
		return fmt.Errorf("delete branch registry row: %w", err)
	}

	s.logger.Info("branch removed",
		zap.String("company", companySlug), zap.String("branch", branchSlug))
	return nil
}

// DB returns the branch database handle, opening one on first access.
func (s *Service) DB(ctx context.Context, companySlug, branchSlug string) (*pgxpool.Pool, error) {
	companySlug, branchSlug, err := s.resolve(ctx, companySlug, branchSlug)
	if err != nil {
		return nil, err
	}
	return s.handles.GetOrCreate(ctx, tenant.BranchKey(companySlug, branchSlug))
}

// resolve normalizes both slugs and confirms the owning company exists in the
// registry. Normalized slugs keep the composite cache keys canonical: a
// request spelling the company as "Acme" shares the handle cached for "acme".
func (s *Service) resolve(ctx context.Context, companySlug, branchSlug string) (string, string, error) {
	company, err := tenant.NormalizeSlug(companySlug)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	branch, err := tenant.NormalizeSlug(branchSlug)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if _, err := s.companies.ResolveActiveTenant(ctx, company); err != nil {
		return "", "", err
	}
	return company, branch, nil
}

func (s *Service) register(ctx context.Context, companySlug, branchSlug, name, address string) error {
	pool, err := s.handles.GetOrCreate(ctx, companySlug)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = pool.Exec(ctx, `
        INSERT INTO "branches" ("id", "name", "address", "createdAt", "updatedAt")
        VALUES ($1, $2, $3, $4, $4)
        ON CONFLICT ("id") DO NOTHING
    `, branchSlug, name, address, now)
	return err
}
