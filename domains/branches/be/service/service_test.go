package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/queuex-cloud/queuex/platform/go/tenant"
)

// stubProvisioner records branch lifecycle calls as company/branch pairs.
type stubProvisioner struct {
	mu      sync.Mutex
	created []string
	deleted []string
}

func (s *stubProvisioner) CreateBranchDatabase(_ context.Context, companySlug, branchSlug string) (tenant.DatabaseConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, tenant.BranchKey(companySlug, branchSlug))
	return tenant.DeriveBranchConfig(companySlug, branchSlug, tenant.Defaults{
		Host: "localhost", Port: 5432, User: "postgres", Password: "postgres",
	}), nil
}

func (s *stubProvisioner) DeleteBranchDatabase(_ context.Context, companySlug, branchSlug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, tenant.BranchKey(companySlug, branchSlug))
	return nil
}

// stubDirectory knows a fixed set of active companies.
type stubDirectory struct {
	companies map[string]tenant.Info
}

func (s *stubDirectory) ResolveActiveTenant(_ context.Context, slug string) (tenant.Info, error) {
	info, ok := s.companies[slug]
	if !ok {
		return tenant.Info{}, tenant.ErrNotFound
	}
	return info, nil
}

// failingHandles refuses every handle request, so branch registration fails
// after the database was created.
type failingHandles struct {
	err error
}

func (h *failingHandles) GetOrCreate(context.Context, string) (*pgxpool.Pool, error) {
	return nil, h.err
}

func newBranchService(t *testing.T) (*Service, *stubProvisioner, *failingHandles) {
	t.Helper()
	prov := &stubProvisioner{}
	handles := &failingHandles{err: errors.New("handle source down")}
	directory := &stubDirectory{companies: map[string]tenant.Info{
		"acme": {Slug: "acme", Name: "Acme Inc", DBName: "queuex_acme", IsActive: true},
	}}
	return New(prov, handles, directory, nil), prov, handles
}

func TestProvisionUnknownCompanyIssuesNoDDL(t *testing.T) {
	t.Parallel()

	svc, prov, _ := newBranchService(t)

	_, err := svc.Provision(context.Background(), "ghost", "downtown", "Downtown", "1 Main St")
	require.ErrorIs(t, err, tenant.ErrNotFound)
	require.Empty(t, prov.created)
}

func TestProvisionNormalizesSlugsBeforeProvisioning(t *testing.T) {
	t.Parallel()

	svc, prov, _ := newBranchService(t)

	// Registration fails (no handle source), so the call errors, but the
	// provisioner must have seen canonical slugs: "Acme"/"Downtown" map to the
	// same composite key as "acme"/"downtown".
	_, err := svc.Provision(context.Background(), "  Acme ", "Downtown", "Downtown", "1 Main St")
	require.Error(t, err)
	require.Equal(t, []string{"acme_downtown"}, prov.created)

	// The compensating drop used the same canonical key.
	require.Equal(t, []string{"acme_downtown"}, prov.deleted)
}

func TestProvisionInvalidSlugs(t *testing.T) {
	t.Parallel()

	svc, prov, _ := newBranchService(t)
	ctx := context.Background()

	_, err := svc.Provision(ctx, "acme", "bad slug!", "Branch", "1 Main St")
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Provision(ctx, "not a slug", "downtown", "Branch", "1 Main St")
	require.ErrorIs(t, err, ErrInvalidInput)

	require.Empty(t, prov.created)
}

func TestRemoveUnknownCompanyIssuesNoDDL(t *testing.T) {
	t.Parallel()

	svc, prov, _ := newBranchService(t)

	err := svc.Remove(context.Background(), "ghost", "downtown")
	require.ErrorIs(t, err, tenant.ErrNotFound)
	require.Empty(t, prov.deleted)
}

func TestDBUsesCanonicalCompositeKey(t *testing.T) {
	t.Parallel()

	svc, _, handles := newBranchService(t)

	// The handle source refuses, but its error proves the lookup got past
	// company resolution with canonical slugs.
	_, err := svc.DB(context.Background(), "Acme", "Downtown")
	require.ErrorIs(t, err, handles.err)

	_, err = svc.DB(context.Background(), "ghost", "downtown")
	require.ErrorIs(t, err, tenant.ErrNotFound)
}
