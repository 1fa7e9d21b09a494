package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/queuex-cloud/queuex/platform/go/metrics"
	"github.com/queuex-cloud/queuex/platform/go/persistence"
	"github.com/queuex-cloud/queuex/platform/go/tenant"
)

// SubdomainHeader carries the tenant slug on inbound requests. When both the
// header and the ?tenant query parameter are present, the header wins.
const SubdomainHeader = "X-Subdomain"

// TenantQueryParam is the fallback slug transport.
const TenantQueryParam = "tenant"

// Resolver is the minimal lookup capability required to populate tenant Info.
// Implemented by the companies service. Must return tenant.ErrNotFound for
// absent or inactive tenants.
type Resolver interface {
	ResolveActiveTenant(ctx context.Context, slug string) (tenant.Info, error)
}

// Config controls resolver middleware behavior.
type Config struct {
	// Optional small in-memory TTL cache to avoid a control-plane hit per
	// request; zero disables caching.
	CacheTTL time.Duration
}

// ExtractTenant resolves the tenant slug from the request and attaches tenant
// Info to the context. Requests without a slug pass through untouched;
// handlers that need a tenant fail independently via RequireTenant.
func ExtractTenant(resolver Resolver, logger *zap.Logger, cfg Config) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("tenant middleware: resolver is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var cache *gocache.Cache
	if cfg.CacheTTL > 0 {
		cache = gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slug := r.Header.Get(SubdomainHeader)
			if slug == "" {
				slug = r.URL.Query().Get(TenantQueryParam)
			}
			if slug == "" {
				next.ServeHTTP(w, r)
				return
			}

			if cache != nil {
				if v, ok := cache.Get(slug); ok {
					metrics.RecordResolverLookup("hit")
					ctx := tenant.WithInfo(r.Context(), v.(tenant.Info))
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			info, err := resolver.ResolveActiveTenant(r.Context(), slug)
			if err != nil {
				if errors.Is(err, tenant.ErrNotFound) {
					metrics.RecordResolverLookup("not_found")
					http.Error(w, "tenant not found or inactive", http.StatusNotFound)
					return
				}
				metrics.RecordResolverLookup("error")
				logger.Error("resolve tenant", zap.String("slug", slug), zap.Error(err))
				http.Error(w, "tenant resolution failed", http.StatusInternalServerError)
				return
			}

			metrics.RecordResolverLookup("miss")
			if cache != nil {
				cache.SetDefault(slug, info)
			}

			ctx := tenant.WithInfo(r.Context(), info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTenant guards handlers that must not proceed without a resolved
// tenant. Absence indicates a caller/routing bug, hence 400 rather than 404.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := tenant.FromContext(r.Context()); !ok {
			http.Error(w, tenant.ErrContextMissing.Error(), http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// DBAccessor hands request handlers the database handle for the resolved
// tenant. Handles are borrowed from the cache and never closed by callers.
type DBAccessor struct {
	cache *persistence.ConnCache
}

// NewDBAccessor builds an accessor over the shared connection cache.
func NewDBAccessor(cache *persistence.ConnCache) *DBAccessor {
	if cache == nil {
		panic("db accessor requires connection cache")
	}
	return &DBAccessor{cache: cache}
}

// DB returns the handle for the request's tenant, opening one on first access.
// Returns tenant.ErrContextMissing when no tenant was resolved.
func (a *DBAccessor) DB(r *http.Request) (*pgxpool.Pool, error) {
	info, ok := tenant.FromContext(r.Context())
	if !ok {
		return nil, tenant.ErrContextMissing
	}
	return a.cache.GetOrCreate(r.Context(), info.Slug)
}
