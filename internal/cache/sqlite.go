package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/UnknownOlympus/waypoint/internal/models"
	_ "modernc.org/sqlite" // register sqlite driver
)

// DefaultPath is the cache file used when no path is configured.
const DefaultPath = "geocode_cache.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache (
	address TEXT PRIMARY KEY,
	latitude REAL,
	longitude REAL
);
`

// SQLiteCache stores entries in a local SQLite file. Several processes or
// goroutines may open the same file; each gets its own handle and conflicting
// inserts are resolved by the primary key.
type SQLiteCache struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenSQLite opens (creating if needed) the cache file at path and ensures the
// schema exists.
func OpenSQLite(ctx context.Context, path string, log *slog.Logger) (*SQLiteCache, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("cache path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err = sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite cache: %w", err)
	}

	c := &SQLiteCache{db: sqlDB, log: log}
	if err = c.Init(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return c, nil
}

// Init creates the cache table. It is safe to call repeatedly.
func (c *SQLiteCache) Init(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create cache table: %w", err)
	}
	return nil
}

// Lookup returns the coordinates stored for address.
func (c *SQLiteCache) Lookup(ctx context.Context, address string) (models.Coordinates, error) {
	if address == "" {
		return models.Coordinates{}, ErrEmptyAddress
	}

	var lat, lon sql.NullFloat64
	err := c.db.QueryRowContext(ctx,
		`SELECT latitude, longitude FROM cache WHERE address = ?`, address,
	).Scan(&lat, &lon)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Coordinates{}, ErrMiss
	}
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("failed to query cache: %w", err)
	}
	if !lat.Valid || !lon.Valid {
		return models.Coordinates{}, ErrMiss
	}

	c.log.DebugContext(ctx, "Cache hit", "address", address)

	return models.Coordinates{Latitude: lat.Float64, Longitude: lon.Float64}, nil
}

// Store inserts the entry unless the address is already present.
func (c *SQLiteCache) Store(ctx context.Context, address string, coords models.Coordinates) error {
	if address == "" {
		return ErrEmptyAddress
	}

	_, err := c.db.ExecContext(ctx, `
INSERT INTO cache (address, latitude, longitude) VALUES (?, ?, ?)
ON CONFLICT(address) DO NOTHING
`, address, coords.Latitude, coords.Longitude)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}

	return nil
}

// Len returns the number of cached addresses.
func (c *SQLiteCache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}

// Close releases the SQLite handle.
func (c *SQLiteCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
