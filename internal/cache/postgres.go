package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"

	"github.com/UnknownOlympus/waypoint/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Database is the subset of pgxpool.Pool used by the cache. It is satisfied by
// pgxmock pools in tests.
type Database interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresOptions holds the connection settings of the PostgreSQL backend.
type PostgresOptions struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN builds a connection URL from the options.
func (o PostgresOptions) DSN() string {
	port := o.Port
	if port == "" {
		port = "5432"
	}
	sslMode := o.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(o.User, o.Password),
		Host:     net.JoinHostPort(o.Host, port),
		Path:     "/" + o.Name,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return dsn.String()
}

// NewDatabase opens a connection pool limited to maxConns connections and
// verifies it with a ping.
func NewDatabase(ctx context.Context, opts PostgresOptions, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(opts.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// PostgresCache stores entries in the geocode_cache table of a shared
// PostgreSQL database.
type PostgresCache struct {
	db  Database
	log *slog.Logger
}

// NewPostgresCache creates a cache on top of an open database handle. The
// cache takes ownership of db.
func NewPostgresCache(db Database, log *slog.Logger) *PostgresCache {
	return &PostgresCache{db: db, log: log}
}

// Init creates the cache table. It is safe to call repeatedly.
func (c *PostgresCache) Init(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS geocode_cache (
			address TEXT PRIMARY KEY,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION
		);
	`

	if _, err := c.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create cache table: %w", err)
	}

	return nil
}

// Lookup returns the coordinates stored for address.
func (c *PostgresCache) Lookup(ctx context.Context, address string) (models.Coordinates, error) {
	if address == "" {
		return models.Coordinates{}, ErrEmptyAddress
	}

	query := `
		SELECT latitude, longitude
		FROM geocode_cache
		WHERE
			address = $1
			AND latitude IS NOT NULL
			AND longitude IS NOT NULL;
	`

	var coords models.Coordinates
	err := c.db.QueryRow(ctx, query, address).Scan(&coords.Latitude, &coords.Longitude)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Coordinates{}, ErrMiss
	}
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("failed to query cache: %w", err)
	}

	c.log.DebugContext(ctx, "Cache hit", "address", address)

	return coords, nil
}

// Store inserts the entry unless the address is already present.
func (c *PostgresCache) Store(ctx context.Context, address string, coords models.Coordinates) error {
	if address == "" {
		return ErrEmptyAddress
	}

	query := `
		INSERT INTO geocode_cache (address, latitude, longitude)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO NOTHING;
	`

	if _, err := c.db.Exec(ctx, query, address, coords.Latitude, coords.Longitude); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}

	return nil
}

// Len returns the number of cached addresses.
func (c *PostgresCache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRow(ctx, `SELECT COUNT(*) FROM geocode_cache;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}

// Close releases the database handle.
func (c *PostgresCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	c.db.Close()
	return nil
}
