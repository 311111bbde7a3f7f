package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Driver names registered with database/sql.
const (
	DriverSQLite     = "sqlite"
	DriverPostgres   = "postgres"
	DriverClickHouse = "clickhouse"
)

// PoolOption configures an opened *sql.DB.
type PoolOption func(*poolConfig)

type poolConfig struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	pingTimeout time.Duration
	init        []string
}

// WithPool sets connection pool limits.
func WithPool(maxOpen, maxIdle int, lifetime time.Duration) PoolOption {
	return func(c *poolConfig) {
		c.maxOpen = maxOpen
		c.maxIdle = maxIdle
		c.maxLifetime = lifetime
	}
}

// WithPingTimeout bounds the connectivity check done by Open.
func WithPingTimeout(d time.Duration) PoolOption {
	return func(c *poolConfig) {
		c.pingTimeout = d
	}
}

// WithInitStatements runs statements right after the connection is verified.
func WithInitStatements(stmts ...string) PoolOption {
	return func(c *poolConfig) {
		c.init = append(c.init, stmts...)
	}
}

// Open opens and pings a database.
func Open(ctx context.Context, driver, dsn string, opts ...PoolOption) (*sql.DB, error) {
	cfg := &poolConfig{
		maxOpen:     10,
		maxIdle:     5,
		maxLifetime: 5 * time.Minute,
		pingTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s open: %w", driver, err)
	}
	db.SetMaxOpenConns(cfg.maxOpen)
	db.SetMaxIdleConns(cfg.maxIdle)
	db.SetConnMaxLifetime(cfg.maxLifetime)

	pctx, cancel := context.WithTimeout(ctx, cfg.pingTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s ping: %w", driver, err)
	}

	for _, stmt := range cfg.init {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s init %q: %w", driver, stmt, err)
		}
	}
	return db, nil
}

// OpenSQLite opens a file-backed SQLite database tuned for a single writer.
// ":memory:" is accepted for tests.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	return Open(ctx, DriverSQLite, path,
		// One connection keeps an in-memory database alive and serializes writes.
		WithPool(1, 1, 0),
		WithInitStatements(
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA synchronous=NORMAL",
		),
	)
}

// OpenPostgres opens a PostgreSQL database from a lib/pq DSN.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	return Open(ctx, DriverPostgres, dsn, WithPool(10, 5, 30*time.Minute))
}
