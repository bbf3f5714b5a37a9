package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/lib/pq" // PostgreSQL driver
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/clinicq/pkg/observability"
)

// ErrPoolClosed is returned by a TenantPool after Close
var ErrPoolClosed = errors.New("tenant pool is closed")

// PoolConfig holds per-database connection pool settings
type PoolConfig struct {
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	// MaxTenants bounds how many tenant databases stay open at once
	MaxTenants int
}

// DefaultPoolConfig returns the settings used when none are configured
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:    10,
		MinConns:    2,
		Timeout:     5 * time.Second,
		MaxLifetime: time.Hour,
		MaxIdleTime: 10 * time.Minute,
		MaxTenants:  64,
	}
}

// Opener opens and verifies a database handle
type Opener func(ctx context.Context, dsn string, config PoolConfig) (*sql.DB, error)

// OpenDB opens a PostgreSQL handle, applies the pool settings and pings it
func OpenDB(ctx context.Context, dsn string, config PoolConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConns)
	db.SetMaxIdleConns(config.MinConns)
	db.SetConnMaxLifetime(config.MaxLifetime)
	db.SetConnMaxIdleTime(config.MaxIdleTime)

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// TenantPool hands out the shared database and one lazily opened database
// per tenant. Tenant handles live in an LRU; the least recently used handle
// is closed once MaxTenants is exceeded.
type TenantPool struct {
	shared    *sql.DB
	directory Directory
	config    PoolConfig
	cache     *lru.Cache[string, *sql.DB]
	group     singleflight.Group

	open    Opener
	onOpen  func(ctx context.Context, db *sql.DB) error
	metrics *observability.Metrics
	logger  *observability.Logger

	mu     sync.RWMutex
	closed bool
}

// PoolOption configures a TenantPool
type PoolOption func(*TenantPool)

// WithOpener replaces OpenDB, mainly for tests
func WithOpener(open Opener) PoolOption {
	return func(p *TenantPool) { p.open = open }
}

// WithOnOpen runs fn on every freshly opened tenant database before it is
// handed out. A failing fn closes the handle and fails the acquisition.
func WithOnOpen(fn func(ctx context.Context, db *sql.DB) error) PoolOption {
	return func(p *TenantPool) { p.onOpen = fn }
}

// WithPoolMetrics records opens and evictions
func WithPoolMetrics(metrics *observability.Metrics) PoolOption {
	return func(p *TenantPool) { p.metrics = metrics }
}

// WithPoolLogger sets the logger used for eviction and open failures
func WithPoolLogger(logger *observability.Logger) PoolOption {
	return func(p *TenantPool) { p.logger = logger }
}

// NewTenantPool creates a pool over an already opened shared database
func NewTenantPool(shared *sql.DB, directory Directory, config PoolConfig, opts ...PoolOption) (*TenantPool, error) {
	if shared == nil {
		return nil, fmt.Errorf("shared database is required")
	}
	if directory == nil {
		return nil, fmt.Errorf("tenant directory is required")
	}
	if config.MaxTenants <= 0 {
		config.MaxTenants = DefaultPoolConfig().MaxTenants
	}

	p := &TenantPool{
		shared:    shared,
		directory: directory,
		config:    config,
		open:      OpenDB,
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}

	cache, err := lru.NewWithEvict(config.MaxTenants, p.evicted)
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant cache: %w", err)
	}
	p.cache = cache

	return p, nil
}

func (p *TenantPool) evicted(tenant string, db *sql.DB) {
	if err := db.Close(); err != nil {
		p.logger.WithError(err).WithField("tenant", tenant).Warn("failed to close tenant database")
	}
	p.metrics.RecordTenantEviction()
	p.logger.WithField("tenant", tenant).Debug("tenant database closed")
}

// Shared returns the shared database handle
func (p *TenantPool) Shared(ctx context.Context) (*sql.DB, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	return p.shared, nil
}

// Tenant returns the database of one tenant, opening it on first use.
// Concurrent first uses of the same tenant share a single open.
func (p *TenantPool) Tenant(ctx context.Context, tenant string) (*sql.DB, error) {
	if tenant == "" {
		return nil, fmt.Errorf("tenant key is required")
	}

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrPoolClosed
	}

	if db, ok := p.cache.Get(tenant); ok {
		return db, nil
	}

	// the shared open must not die with the first caller's request
	openCtx := context.WithoutCancel(ctx)

	v, err, _ := p.group.Do(tenant, func() (interface{}, error) {
		if db, ok := p.cache.Get(tenant); ok {
			return db, nil
		}

		db, err := p.openTenant(openCtx, tenant)
		p.metrics.RecordTenantOpen(err)
		if err != nil {
			return nil, err
		}

		// Close may have purged the cache while the open was in flight
		p.mu.RLock()
		defer p.mu.RUnlock()
		if p.closed {
			db.Close()
			return nil, ErrPoolClosed
		}
		p.cache.Add(tenant, db)
		return db, nil
	})
	if err != nil {
		p.logger.WithError(err).WithField("tenant", tenant).Error("failed to open tenant database")
		return nil, err
	}

	return v.(*sql.DB), nil
}

func (p *TenantPool) openTenant(ctx context.Context, tenant string) (*sql.DB, error) {
	dsn, err := p.directory.DSN(ctx, tenant)
	if err != nil {
		return nil, err
	}

	db, err := p.open(ctx, dsn, p.config)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: %w", tenant, err)
	}

	if p.onOpen != nil {
		if err := p.onOpen(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("tenant %s: %w", tenant, err)
		}
	}

	return db, nil
}

// Len returns the number of open tenant databases
func (p *TenantPool) Len() int {
	return p.cache.Len()
}

// Close closes every tenant database and the shared database
func (p *TenantPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.cache.Purge()

	if err := p.shared.Close(); err != nil {
		return fmt.Errorf("failed to close shared database: %w", err)
	}
	return nil
}
