package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/queuex-cloud/queuex/platform/go/persistence"
	"github.com/queuex-cloud/queuex/platform/go/tenant"
)

type stubResolver struct {
	tenants map[string]tenant.Info
	err     error
	calls   atomic.Int64
}

func (s *stubResolver) ResolveActiveTenant(_ context.Context, slug string) (tenant.Info, error) {
	s.calls.Add(1)
	if s.err != nil {
		return tenant.Info{}, s.err
	}
	info, ok := s.tenants[slug]
	if !ok {
		return tenant.Info{}, tenant.ErrNotFound
	}
	return info, nil
}

func acmeResolver() *stubResolver {
	return &stubResolver{tenants: map[string]tenant.Info{
		"acme": {
			ID:       uuid.New(),
			Slug:     "acme",
			Name:     "Acme Inc",
			DBName:   "queuex_acme",
			IsActive: true,
		},
	}}
}

// capture records the tenant info seen by the downstream handler.
func capture(info *tenant.Info, found *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*info, *found = tenant.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestExtractTenantFromHeader(t *testing.T) {
	t.Parallel()

	var info tenant.Info
	var found bool
	handler := ExtractTenant(acmeResolver(), nil, Config{})(capture(&info, &found))

	req := httptest.NewRequest(http.MethodGet, "/queues", nil)
	req.Header.Set(SubdomainHeader, "acme")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, found)
	require.Equal(t, "acme", info.Slug)
	require.Equal(t, "queuex_acme", info.DBName)
}

func TestExtractTenantFromQueryParam(t *testing.T) {
	t.Parallel()

	var info tenant.Info
	var found bool
	handler := ExtractTenant(acmeResolver(), nil, Config{})(capture(&info, &found))

	req := httptest.NewRequest(http.MethodGet, "/queues?tenant=acme", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, found)
	require.Equal(t, "acme", info.Slug)
}

func TestExtractTenantHeaderWinsOverQuery(t *testing.T) {
	t.Parallel()

	resolver := acmeResolver()
	resolver.tenants["other"] = tenant.Info{Slug: "other", IsActive: true}

	var info tenant.Info
	var found bool
	handler := ExtractTenant(resolver, nil, Config{})(capture(&info, &found))

	req := httptest.NewRequest(http.MethodGet, "/queues?tenant=other", nil)
	req.Header.Set(SubdomainHeader, "acme")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.True(t, found)
	require.Equal(t, "acme", info.Slug)
}

func TestExtractTenantPassThroughWithoutSlug(t *testing.T) {
	t.Parallel()

	resolver := acmeResolver()

	var info tenant.Info
	var found bool
	handler := ExtractTenant(resolver, nil, Config{})(capture(&info, &found))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, found)
	require.Zero(t, resolver.calls.Load())
}

func TestExtractTenantUnknownSlug(t *testing.T) {
	t.Parallel()

	handler := ExtractTenant(acmeResolver(), nil, Config{})(capture(new(tenant.Info), new(bool)))

	req := httptest.NewRequest(http.MethodGet, "/queues", nil)
	req.Header.Set(SubdomainHeader, "ghost")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExtractTenantResolverFailure(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{err: errors.New("control plane down")}
	handler := ExtractTenant(resolver, nil, Config{})(capture(new(tenant.Info), new(bool)))

	req := httptest.NewRequest(http.MethodGet, "/queues", nil)
	req.Header.Set(SubdomainHeader, "acme")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestExtractTenantCachesLookups(t *testing.T) {
	t.Parallel()

	resolver := acmeResolver()
	handler := ExtractTenant(resolver, nil, Config{CacheTTL: time.Minute})(capture(new(tenant.Info), new(bool)))

	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/queues", nil)
		req.Header.Set(SubdomainHeader, "acme")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	require.Equal(t, int64(1), resolver.calls.Load())
}

func TestRequireTenant(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireTenant(next)

	req := httptest.NewRequest(http.MethodGet, "/queues", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	ctx := tenant.WithInfo(context.Background(), tenant.Info{Slug: "acme", IsActive: true})
	req = httptest.NewRequest(http.MethodGet, "/queues", nil).WithContext(ctx)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDBAccessor(t *testing.T) {
	t.Parallel()

	cache := persistence.NewConnCache(tenant.Defaults{
		Host: "localhost", Port: 5432, User: "postgres", Password: "postgres",
	}, nil)
	t.Cleanup(cache.EvictAll)

	accessor := NewDBAccessor(cache)

	req := httptest.NewRequest(http.MethodGet, "/queues", nil)
	_, err := accessor.DB(req)
	require.ErrorIs(t, err, tenant.ErrContextMissing)

	ctx := tenant.WithInfo(context.Background(), tenant.Info{Slug: "acme", IsActive: true})
	req = httptest.NewRequest(http.MethodGet, "/queues", nil).WithContext(ctx)

	pool, err := accessor.DB(req)
	require.NoError(t, err)
	require.NotNil(t, pool)

	again, err := accessor.DB(req)
	require.NoError(t, err)
	require.Same(t, pool, again)
}
