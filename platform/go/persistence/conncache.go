package persistence

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/queuex-cloud/queuex/platform/go/tenant"
)

// ConnCache owns the live database handles for all tenants within the process.
// Callers borrow handles for the duration of a request and never close them.
// Always an injected dependency, never a package singleton.
type ConnCache struct {
	mu       sync.RWMutex
	defaults tenant.Defaults
	pools    map[string]*pgxpool.Pool
	logger   *zap.Logger
}

// NewConnCache builds an empty cache. Keys are company slugs, or composite
// company_branch keys for the branch-level variant.
func NewConnCache(defaults tenant.Defaults, logger *zap.Logger) *ConnCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnCache{
		defaults: defaults,
		pools:    make(map[string]*pgxpool.Pool),
		logger:   logger,
	}
}

// Get returns the cached handle for the key, if present. No side effects.
func (c *ConnCache) Get(key string) (*pgxpool.Pool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pool, ok := c.pools[key]
	return pool, ok
}

// GetOrCreate returns the cached handle, opening one lazily on a miss. It does
// not provision: if the physical database does not exist, the open still
// succeeds and the first query fails with ErrDatabaseUnavailable.
func (c *ConnCache) GetOrCreate(ctx context.Context, key string) (*pgxpool.Pool, error) {
	if pool, ok := c.Get(key); ok {
		return pool, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Lost the race to another request for the same tenant.
	if pool, ok := c.pools[key]; ok {
		return pool, nil
	}

	cfg := tenant.DeriveConfig(key, c.defaults)
	pool, err := newLazyPool(ctx, PoolConfig{ConnString: cfg.ConnString()})
	if err != nil {
		return nil, fmt.Errorf("open tenant handle %s: %w", key, err)
	}

	c.pools[key] = pool
	c.logger.Debug("tenant handle opened", zap.String("tenant", key), zap.String("database", cfg.Database))
	return pool, nil
}

// Insert stores a handle under the key, closing any handle it replaces.
// Used by the provisioner to seed the cache right after bootstrap.
func (c *ConnCache) Insert(key string, pool *pgxpool.Pool) {
	c.mu.Lock()
	prev := c.pools[key]
	c.pools[key] = pool
	c.mu.Unlock()

	if prev != nil && prev != pool {
		prev.Close()
	}
}

// Evict closes the handle if present and removes the entry. Must be called
// before any DROP DATABASE on that tenant.
func (c *ConnCache) Evict(key string) {
	c.mu.Lock()
	pool, ok := c.pools[key]
	delete(c.pools, key)
	c.mu.Unlock()

	if ok {
		pool.Close()
		c.logger.Debug("tenant handle evicted", zap.String("tenant", key))
	}
}

// EvictAll closes every handle. Used at process shutdown.
func (c *ConnCache) EvictAll() {
	c.mu.Lock()
	pools := c.pools
	c.pools = make(map[string]*pgxpool.Pool)
	c.mu.Unlock()

	for key, pool := range pools {
		pool.Close()
		c.logger.Debug("tenant handle evicted", zap.String("tenant", key))
	}
}

// Len reports the number of live entries.
func (c *ConnCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pools)
}

// UnavailableError tags a query failure against a cached handle as the
// tenant-database-unavailable kind. The handle is not evicted: a later request
// may succeed if connectivity returns.
func UnavailableError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", tenant.ErrDatabaseUnavailable, err)
}
