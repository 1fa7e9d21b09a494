package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/queuex-cloud/queuex/platform/go/tenant"
)

// Errors returned by the service layer.
var (
	ErrNotFound      = errors.New("company not found")
	ErrConflictSlug  = errors.New("company slug already exists")
	ErrHasDependents = errors.New("company has dependent resources")
	ErrInvalidInput  = errors.New("invalid company input")
)

// Company represents the domain model for a registry entry.
type Company struct {
	ID        uuid.UUID
	Slug      string
	Name      string
	Address   *string
	Phone     *string
	Email     *string
	Website   *string
	IsActive  bool
	DBConfig  tenant.DatabaseConfig
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateInput represents the request to create a company.
type CreateInput struct {
	Slug    string
	Name    string
	Address *string
	Phone   *string
	Email   *string
	Website *string
}

// UpdateInput represents mutable fields for a company.
type UpdateInput struct {
	Name     *string
	Address  *string
	Phone    *string
	Email    *string
	Website  *string
	IsActive *bool
}

// ListOptions captures pagination.
type ListOptions struct {
	Page       int
	PageSize   int
	ActiveOnly bool
}

// ListResult wraps paginated companies.
type ListResult struct {
	Companies  []Company
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// Repository abstracts control-plane persistence. Create must surface
// ErrConflictSlug on a duplicate slug: the unique constraint on the registry
// is the sole arbiter for concurrent creations of the same slug.
type Repository interface {
	Create(ctx context.Context, c Company) (Company, error)
	Get(ctx context.Context, id uuid.UUID) (Company, error)
	FindBySlug(ctx context.Context, slug string) (Company, error)
	FindActiveBySlug(ctx context.Context, slug string) (Company, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	Update(ctx context.Context, c Company) (Company, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Provisioner is the database lifecycle dependency; the two methods are the
// only provisioning entry points the core exposes.
type Provisioner interface {
	CreateTenantDatabase(ctx context.Context, slug string) (tenant.DatabaseConfig, error)
	DeleteTenantDatabase(ctx context.Context, slug string) error
}

// HandleSource yields the tenant database handle used for dependency checks
// before teardown. Implemented by the connection cache.
type HandleSource interface {
	GetOrCreate(ctx context.Context, key string) (*pgxpool.Pool, error)
}

// Service provides company registry operations.
type Service struct {
	repo        Repository
	provisioner Provisioner
	handles     HandleSource
	logger      *zap.Logger
}

// New constructs a Service with required dependencies.
func New(repo Repository, provisioner Provisioner, handles HandleSource, logger *zap.Logger) *Service {
	if repo == nil {
		panic("companies repo is required")
	}
	if provisioner == nil {
		panic("companies provisioner is required")
	}
	if handles == nil {
		panic("companies handle source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, provisioner: provisioner, handles: handles, logger: logger}
}

// Create registers a company and provisions its database. The registry row is
// inserted first: a concurrent creation of the same slug loses on the unique
// constraint and never issues DDL. If provisioning fails afterwards, the row
// is removed again so the registry and the physical databases stay one-to-one.
func (s *Service) Create(ctx context.Context, input CreateInput) (Company, error) {
	slug, err := tenant.NormalizeSlug(input.Slug)
	if err != nil {
		return Company{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if input.Name == "" {
		return Company{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	c := Company{
		ID:        uuid.New(),
		Slug:      slug,
		Name:      input.Name,
		Address:   input.Address,
		Phone:     input.Phone,
		Email:     input.Email,
		Website:   input.Website,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.repo.Create(ctx, c)
	if err != nil {
		return Company{}, err
	}

	cfg, err := s.provisioner.CreateTenantDatabase(ctx, slug)
	if err != nil {
		if delErr := s.repo.Delete(ctx, created.ID); delErr != nil {
			s.logger.Error("remove registry row after provisioning failure",
				zap.String("slug", slug), zap.Error(delErr))
		}
		return Company{}, err
	}

	created.DBConfig = cfg
	updated, err := s.repo.Update(ctx, created)
	if err != nil {
		// Row update failed after the database exists; give it back rather
		// than tearing down a working tenant over a metadata write.
		s.logger.Error("persist database config", zap.String("slug", slug), zap.Error(err))
		return created, nil
	}

	s.logger.Info("company created", zap.String("slug", slug), zap.String("database", cfg.Database))
	return updated, nil
}

// Get returns a company by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Company, error) {
	return s.repo.Get(ctx, id)
}

// GetBySlug returns a company by slug regardless of active flag.
func (s *Service) GetBySlug(ctx context.Context, slug string) (Company, error) {
	return s.repo.FindBySlug(ctx, slug)
}

// List companies with pagination.
func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	return s.repo.List(ctx, opts)
}

// Update modifies mutable fields of a company. The slug is immutable once
// assigned: the database name is derived from it.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (Company, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Company{}, err
	}

	next := current
	if input.Name != nil {
		next.Name = *input.Name
	}
	if input.Address != nil {
		next.Address = input.Address
	}
	if input.Phone != nil {
		next.Phone = input.Phone
	}
	if input.Email != nil {
		next.Email = input.Email
	}
	if input.Website != nil {
		next.Website = input.Website
	}
	if input.IsActive != nil {
		next.IsActive = *input.IsActive
	}
	next.UpdatedAt = time.Now().UTC()

	return s.repo.Update(ctx, next)
}

// Delete tears down a company: dependent-resource check, physical database
// drop, then registry row removal. Refuses while tenant data still exists.
func (s *Service) Delete(ctx context.Context, slug string) error {
	c, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		return err
	}

	if err := s.checkDependents(ctx, c.Slug); err != nil {
		return err
	}

	if err := s.provisioner.DeleteTenantDatabase(ctx, c.Slug); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, c.ID); err != nil {
		return err
	}

	s.logger.Info("company deleted", zap.String("slug", c.Slug))
	return nil
}

// ResolveActiveTenant implements the resolver contract used by the tenant
// middleware: inactive companies are indistinguishable from absent ones.
func (s *Service) ResolveActiveTenant(ctx context.Context, slug string) (tenant.Info, error) {
	c, err := s.repo.FindActiveBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return tenant.Info{}, tenant.ErrNotFound
		}
		return tenant.Info{}, err
	}
	return tenant.Info{
		ID:       c.ID,
		Slug:     c.Slug,
		Name:     c.Name,
		DBName:   c.DBConfig.Database,
		IsActive: c.IsActive,
	}, nil
}

// dependentTables are the tenant-local tables that block deletion while
// populated.
var dependentTables = []string{"branches", "services", "queues", "customers"}

func (s *Service) checkDependents(ctx context.Context, slug string) error {
	pool, err := s.handles.GetOrCreate(ctx, slug)
	if err != nil {
		return err
	}

	for _, table := range dependentTables {
		var count int
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %q`, table)
		if err := pool.QueryRow(ctx, query).Scan(&count); err != nil {
			// The database may already be gone out-of-band; deletion then
			// reduces to dropping the registry row.
			s.logger.Warn("dependency check skipped", zap.String("slug", slug),
				zap.String("table", table), zap.Error(err))
			return nil
		}
		if count > 0 {
			return fmt.Errorf("%w: %s has %d rows", ErrHasDependents, table, count)
		}
	}
	return nil
}
