// Package store wraps pgx connection pools used to talk to the coordinator and per-database
// targets.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgproto3/v2"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// DB wraps a pooled connection to a single database.
type DB struct {
	Pool     *pgxpool.Pool
	database string
}

// PoolOptions configures a pgxpool.Pool derived from a base DSN.
type PoolOptions struct {
	MaxConns           int32
	MinConns           int32
	InitConns          int32
	MaxConnLifetime    time.Duration
	AcquisitionTimeout time.Duration
}

// Open creates a new pooled connection using the passed DSN and options.
func Open(ctx context.Context, dsn string, opts PoolOptions) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	applyPoolOptions(cfg, opts)

	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	primePool(ctx, pool, opts.InitConns)

	return &DB{Pool: pool, database: cfg.ConnConfig.Database}, nil
}

// OpenWithConfig creates a new pooled connection using an already-parsed pgxpool.Config, used
// when the caller needs to rewrite the target database of a base DSN (see datasource.Factory).
func OpenWithConfig(ctx context.Context, cfg *pgxpool.Config, opts PoolOptions) (*DB, error) {
	applyPoolOptions(cfg, opts)

	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	primePool(ctx, pool, opts.InitConns)

	return &DB{Pool: pool, database: cfg.ConnConfig.Database}, nil
}

// primePool eagerly acquires and releases n connections right after pool creation, so the pool
// starts with n live connections instead of opening them lazily on first use.
func primePool(ctx context.Context, pool *pgxpool.Pool, n int32) {
	conns := make([]*pgxpool.Conn, 0, n)
	for i := int32(0); i < n; i++ {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			break
		}
		conns = append(conns, conn)
	}
	for _, conn := range conns {
		conn.Release()
	}
}

func applyPoolOptions(cfg *pgxpool.Config, opts PoolOptions) {
	// Compatibility with connection poolers (pgbouncer-style) that don't support the extended protocol.
	cfg.ConnConfig.PreferSimpleProtocol = true

	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.AcquisitionTimeout > 0 {
		cfg.HealthCheckPeriod = opts.AcquisitionTimeout
	}
}

// Database returns the name of the database this pool is bound to.
func (db *DB) Database() string { return db.database }

// Close closes all connections in the pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// QueryResult is the iterable store that contains the result of a query: data (values) and
// metadata (number of rows, columns and names).
type QueryResult struct {
	Nrows    int
	Ncols    int
	Colnames []pgproto3.FieldDescription
	Rows     [][]sql.NullString
}

// Query executes a query and wraps the result into a QueryResult, preserving column names next to
// the positional row values.
func (db *DB) Query(ctx context.Context, query string, args ...interface{}) (*QueryResult, error) {
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	colnames := rows.FieldDescriptions()
	ncols := len(colnames)

	rowsStore := make([][]sql.NullString, 0, 10)
	var nrows int

	for rows.Next() {
		pointers := make([]interface{}, ncols)
		values := make([]sql.NullString, ncols)
		for i := range pointers {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		rowsStore = append(rowsStore, values)
		nrows++
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &QueryResult{Nrows: nrows, Ncols: ncols, Colnames: colnames, Rows: rowsStore}, nil
}

// QueryRow executes the query and returns the pgx.Row for the caller to Scan.
func (db *DB) QueryRow(ctx context.Context, query string, args ...interface{}) pgx.Row {
	return db.Pool.QueryRow(ctx, query, args...)
}

// GetDatabases returns the names of databases that allow connections and are not templates.
func (db *DB) GetDatabases(ctx context.Context) ([]string, error) {
	rows, err := db.Pool.Query(ctx, "SELECT datname FROM pg_database WHERE datallowconn AND NOT datistemplate ORDER BY datname")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		list = append(list, name)
	}
	return list, rows.Err()
}
