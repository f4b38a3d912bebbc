package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Backend names a cache storage engine.
type Backend string

const (
	// BackendSQLite stores the cache in a local file.
	BackendSQLite Backend = "sqlite"
	// BackendPostgres stores the cache in a PostgreSQL table.
	BackendPostgres Backend = "postgres"
)

// Options selects and configures a cache backend.
type Options struct {
	Backend  Backend
	Path     string // SQLite file path
	Postgres PostgresOptions
}

// Opener opens a new, independently owned cache handle. Every worker calls it
// once and closes the handle when its chunk is done.
type Opener func(ctx context.Context) (Cache, error)

// NewOpener returns an Opener for the configured backend.
func NewOpener(opts Options, log *slog.Logger) (Opener, error) {
	switch opts.Backend {
	case BackendSQLite, "":
		path := opts.Path
		if path == "" {
			path = DefaultPath
		}
		return func(ctx context.Context) (Cache, error) {
			return OpenSQLite(ctx, path, log)
		}, nil
	case BackendPostgres:
		return newPostgresOpener(opts.Postgres, log), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, opts.Backend)
	}
}

// newPostgresOpener creates the table on the first successful open only, since
// concurrent CREATE TABLE IF NOT EXISTS statements can still collide in the
// PostgreSQL catalog.
func newPostgresOpener(opts PostgresOptions, log *slog.Logger) Opener {
	var (
		mu    sync.Mutex
		ready bool
	)

	return func(ctx context.Context) (Cache, error) {
		pool, err := NewDatabase(ctx, opts, 1)
		if err != nil {
			return nil, err
		}
		c := NewPostgresCache(pool, log)

		mu.Lock()
		defer mu.Unlock()
		if !ready {
			if err = c.Init(ctx); err != nil {
				_ = c.Close()
				return nil, err
			}
			ready = true
		}

		return c, nil
	}
}
