package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CompaniesTable is the control-plane tenant registry.
const CompaniesTable = "companies"

// ErrNotFound is returned when a company record is not found.
var ErrNotFound = errors.New("company not found")

// CompanyRecord is one row of the tenant registry. Every physical tenant
// database has exactly one corresponding row, and vice versa.
type CompanyRecord struct {
	ID         uuid.UUID `db:"id"`
	Slug       string    `db:"slug"`
	Name       string    `db:"name"`
	Address    *string   `db:"address"`
	Phone      *string   `db:"phone"`
	Email      *string   `db:"email"`
	Website    *string   `db:"website"`
	IsActive   bool      `db:"is_active"`
	DBHost     string    `db:"db_host"`
	DBName     string    `db:"db_name"`
	DBUser     string    `db:"db_user"`
	DBPassword string    `db:"db_password"`
	DBPort     int       `db:"db_port"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

const companyColumns = `id, slug, name, address, phone, email, website, is_active,
        db_host, db_name, db_user, db_password, db_port, created_at, updated_at`

// CompanyStore provides access to the companies table on the control-plane pool.
type CompanyStore struct {
	pool *pgxpool.Pool
}

// NewCompanyStore creates a store; assumes EnsureControlPlane already ran.
func NewCompanyStore(pool *pgxpool.Pool) (*CompanyStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &CompanyStore{pool: pool}, nil
}

// Insert writes a new company row. The slug unique constraint is the sole
// arbiter of slug uniqueness; callers map the violation to a conflict error.
func (s *CompanyStore) Insert(ctx context.Context, rec CompanyRecord) (CompanyRecord, error) {
	if rec.ID == uuid.Nil {
		return CompanyRecord{}, errors.New("company id is required")
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (
            id, slug, name, address, phone, email, website, is_active,
            db_host, db_name, db_user, db_password, db_port, created_at, updated_at
        ) VALUES (
            $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
        )
        RETURNING %s
    `, CompaniesTable, companyColumns)

	row := s.pool.QueryRow(ctx, query,
		rec.ID, rec.Slug, rec.Name, rec.Address, rec.Phone, rec.Email, rec.Website,
		rec.IsActive, rec.DBHost, rec.DBName, rec.DBUser, rec.DBPassword, rec.DBPort,
		rec.CreatedAt, rec.UpdatedAt,
	)

	return scanCompanyRecord(row)
}

// GetActiveBySlug returns the company by slug where is_active is true.
// Inactive companies are indistinguishable from absent ones.
func (s *CompanyStore) GetActiveBySlug(ctx context.Context, slug string) (CompanyRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE slug = $1 AND is_active = TRUE`,
		companyColumns, CompaniesTable)
	return scanCompanyRecord(s.pool.QueryRow(ctx, query, slug))
}

// GetBySlug returns the company regardless of active flag. Used by the
// management surface, never by the request-time resolver.
func (s *CompanyStore) GetBySlug(ctx context.Context, slug string) (CompanyRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE slug = $1`, companyColumns, CompaniesTable)
	return scanCompanyRecord(s.pool.QueryRow(ctx, query, slug))
}

// Get returns the company by id.
func (s *CompanyStore) Get(ctx context.Context, id uuid.UUID) (CompanyRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, companyColumns, CompaniesTable)
	return scanCompanyRecord(s.pool.QueryRow(ctx, query, id))
}

// List returns paginated companies, newest first.
func (s *CompanyStore) List(ctx context.Context, activeOnly bool, limit, offset int) ([]CompanyRecord, int, error) {
	where := ""
	if activeOnly {
		where = "WHERE is_active = TRUE"
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", CompaniesTable, where)
	if err := s.pool.QueryRow(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		companyColumns, CompaniesTable, where, limit, offset)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []CompanyRecord
	for rows.Next() {
		rec, err := scanCompanyRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// Update rewrites the mutable fields of a company row, including the database
// reference columns: company creation persists the derived config through this
// statement once provisioning succeeded.
func (s *CompanyStore) Update(ctx context.Context, rec CompanyRecord) (CompanyRecord, error) {
	query := fmt.Sprintf(`
        UPDATE %s SET
            name = $2, address = $3, phone = $4, email = $5, website = $6,
            is_active = $7, db_host = $8, db_name = $9, db_user = $10,
            db_password = $11, db_port = $12, updated_at = $13
        WHERE id = $1
        RETURNING %s
    `, CompaniesTable, companyColumns)

	row := s.pool.QueryRow(ctx, query,
		rec.ID, rec.Name, rec.Address, rec.Phone, rec.Email, rec.Website,
		rec.IsActive, rec.DBHost, rec.DBName, rec.DBUser, rec.DBPassword, rec.DBPort,
		rec.UpdatedAt,
	)

	return scanCompanyRecord(row)
}

// Delete removes the row. The caller is responsible for tearing down the
// physical database first so the one-to-one invariant holds afterwards.
func (s *CompanyStore) Delete(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", CompaniesTable)
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCompanyRecord(row pgx.Row) (CompanyRecord, error) {
	var rec CompanyRecord
	if err := row.Scan(
		&rec.ID, &rec.Slug, &rec.Name, &rec.Address, &rec.Phone, &rec.Email, &rec.Website,
		&rec.IsActive, &rec.DBHost, &rec.DBName, &rec.DBUser, &rec.DBPassword, &rec.DBPort,
		&rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CompanyRecord{}, ErrNotFound
		}
		return CompanyRecord{}, err
	}
	return rec, nil
}
