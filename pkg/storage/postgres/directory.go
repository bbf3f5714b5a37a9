package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrTenantNotFound is returned when a tenant key has no registered database
var ErrTenantNotFound = errors.New("tenant not found")

// Directory maps a tenant key to the connection string of its database
type Directory interface {
	DSN(ctx context.Context, tenant string) (string, error)
}

// DirectoryFunc adapts a function to the Directory interface
type DirectoryFunc func(ctx context.Context, tenant string) (string, error)

// DSN implements Directory
func (f DirectoryFunc) DSN(ctx context.Context, tenant string) (string, error) {
	return f(ctx, tenant)
}

// SQLDirectory looks tenants up in the shared database's tenants table
type SQLDirectory struct {
	db *sql.DB
}

// NewSQLDirectory creates a directory backed by the shared database
func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

// DSN returns the connection string registered for an active tenant
func (d *SQLDirectory) DSN(ctx context.Context, tenant string) (string, error) {
	var dsn string
	err := d.db.QueryRowContext(ctx,
		`SELECT database_url FROM tenants WHERE tenant_key = $1 AND active = TRUE`,
		tenant,
	).Scan(&dsn)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrTenantNotFound, tenant)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up tenant %s: %w", tenant, err)
	}
	return dsn, nil
}

// StaticDirectory is a fixed tenant table, usually loaded from a YAML file:
//
//	tenants:
//	  acme: postgres://acme@db-1/acme?sslmode=disable
//	  globex: postgres://globex@db-2/globex?sslmode=disable
type StaticDirectory struct {
	Tenants map[string]string `yaml:"tenants"`
}

// LoadStaticDirectory reads a StaticDirectory from a YAML file
func LoadStaticDirectory(path string) (*StaticDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant directory: %w", err)
	}
	return ParseStaticDirectory(data)
}

// ParseStaticDirectory decodes a StaticDirectory from YAML
func ParseStaticDirectory(data []byte) (*StaticDirectory, error) {
	var dir StaticDirectory
	if err := yaml.Unmarshal(data, &dir); err != nil {
		return nil, fmt.Errorf("failed to parse tenant directory: %w", err)
	}
	for key, dsn := range dir.Tenants {
		if strings.TrimSpace(key) == "" || strings.TrimSpace(dsn) == "" {
			return nil, fmt.Errorf("tenant directory entry %q has an empty key or url", key)
		}
	}
	return &dir, nil
}

// DSN implements Directory
func (d *StaticDirectory) DSN(ctx context.Context, tenant string) (string, error) {
	dsn, ok := d.Tenants[tenant]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTenantNotFound, tenant)
	}
	return dsn, nil
}
