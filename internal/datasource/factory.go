// Package datasource produces per-database connection pools derived from a base DSN and decides,
// scrape by scrape, which databases are visited.
package datasource

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/GreengageDB/greengage-exporter/internal/store"
)

const maxDatabaseNameLength = 63

// validDatabaseName is deliberately conservative: it is not a full SQL-identifier parser, just a
// guard against obviously hostile input rewritten into a connection string's database path.
var validDatabaseName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateDatabaseName rejects empty, whitespace, overlong, or otherwise suspicious names.
func ValidateDatabaseName(name string) error {
	if name == "" {
		return fmt.Errorf("datasource: database name must not be empty")
	}
	if len(name) > maxDatabaseNameLength {
		return fmt.Errorf("datasource: database name %q exceeds %d bytes", name, maxDatabaseNameLength)
	}
	if !validDatabaseName.MatchString(name) {
		return fmt.Errorf("datasource: database name %q contains disallowed characters", name)
	}
	return nil
}

// Factory produces single-connection pools scoped to a specific database, derived from a base DSN.
type Factory struct {
	baseDSN         string
	maxConnLifetime time.Duration
}

// NewFactory builds a Factory around the coordinator's base DSN.
func NewFactory(baseDSN string, maxConnLifetime time.Duration) (*Factory, error) {
	if _, err := pgxpool.ParseConfig(baseDSN); err != nil {
		return nil, fmt.Errorf("datasource: invalid base dsn: %w", err)
	}
	if maxConnLifetime <= 0 {
		maxConnLifetime = 2 * time.Minute
	}
	return &Factory{baseDSN: baseDSN, maxConnLifetime: maxConnLifetime}, nil
}

// Open creates a new single-connection pool targeting the named database.
func (f *Factory) Open(ctx context.Context, database string) (*store.DB, error) {
	if err := ValidateDatabaseName(database); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(f.baseDSN)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.Database = database

	return store.OpenWithConfig(ctx, cfg, store.PoolOptions{
		MaxConns:        1,
		MinConns:        1,
		MaxConnLifetime: f.maxConnLifetime,
	})
}
