package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/queuex-cloud/queuex/domains/companies/be/service"
	"github.com/queuex-cloud/queuex/platform/go/persistence"
	"github.com/queuex-cloud/queuex/platform/go/tenant"
)

// PostgresRepository implements the company repository over the control-plane
// store.
type PostgresRepository struct {
	store *persistence.CompanyStore
}

// NewPostgresRepository constructs a repository backed by CompanyStore.
func NewPostgresRepository(store *persistence.CompanyStore) *PostgresRepository {
	if store == nil {
		panic("company store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) Create(ctx context.Context, c service.Company) (service.Company, error) {
	out, err := r.store.Insert(ctx, toRecord(c))
	if err != nil {
		return service.Company{}, mapConflict(err)
	}
	return toServiceCompany(out), nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.Company, error) {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return service.Company{}, mapNotFound(err)
	}
	return toServiceCompany(rec), nil
}

func (r *PostgresRepository) FindBySlug(ctx context.Context, slug string) (service.Company, error) {
	rec, err := r.store.GetBySlug(ctx, slug)
	if err != nil {
		return service.Company{}, mapNotFound(err)
	}
	return toServiceCompany(rec), nil
}

func (r *PostgresRepository) FindActiveBySlug(ctx context.Context, slug string) (service.Company, error) {
	rec, err := r.store.GetActiveBySlug(ctx, slug)
	if err != nil {
		return service.Company{}, mapNotFound(err)
	}
	return toServiceCompany(rec), nil
}

func (r *PostgresRepository) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	rows, total, err := r.store.List(ctx, opts.ActiveOnly, size, offset)
	if err != nil {
		return service.ListResult{}, err
	}

	companies := make([]service.Company, 0, len(rows))
	for _, rec := range rows {
		companies = append(companies, toServiceCompany(rec))
	}

	totalPages := (total + size - 1) / size
	return service.ListResult{
		Companies:  companies,
		Page:       page,
		PageSize:   size,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

func (r *PostgresRepository) Update(ctx context.Context, c service.Company) (service.Company, error) {
	out, err := r.store.Update(ctx, toRecord(c))
	if err != nil {
		return service.Company{}, mapNotFound(err)
	}
	return toServiceCompany(out), nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return mapNotFound(r.store.Delete(ctx, id))
}

func toRecord(c service.Company) persistence.CompanyRecord {
	return persistence.CompanyRecord{
		ID:         c.ID,
		Slug:       c.Slug,
		Name:       c.Name,
		Address:    c.Address,
		Phone:      c.Phone,
		Email:      c.Email,
		Website:    c.Website,
		IsActive:   c.IsActive,
		DBHost:     c.DBConfig.Host,
		DBName:     c.DBConfig.Database,
		DBUser:     c.DBConfig.User,
		DBPassword: c.DBConfig.Password,
		DBPort:     c.DBConfig.Port,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func toServiceCompany(rec persistence.CompanyRecord) service.Company {
	return service.Company{
		ID:       rec.ID,
		Slug:     rec.Slug,
		Name:     rec.Name,
		Address:  rec.Address,
		Phone:    rec.Phone,
		Email:    rec.Email,
		Website:  rec.Website,
		IsActive: rec.IsActive,
		DBConfig: tenant.DatabaseConfig{
			Host:     rec.DBHost,
			Port:     rec.DBPort,
			Database: rec.DBName,
			User:     rec.DBUser,
			Password: rec.DBPassword,
		},
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return service.ErrNotFound
	}
	return err
}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" && strings.EqualFold(pgErr.ConstraintName, "companies_slug_unique") {
			return service.ErrConflictSlug
		}
	}
	return err
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
