package cache_test

import (
	"database/sql"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Flaque/filet"
	"github.com/UnknownOlympus/waypoint/internal/cache"
	"github.com/UnknownOlympus/waypoint/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteCache(t *testing.T) (*cache.SQLiteCache, string) {
	t.Helper()
	dir := filet.TmpDir(t, "")
	t.Cleanup(func() { filet.CleanUp(t) })

	path := filepath.Join(dir, "geocode_cache.db")
	c, err := cache.OpenSQLite(t.Context(), path, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c, path
}

func TestSQLiteCache_LookupStore(t *testing.T) {
	ctx := t.Context()
	c, _ := newSQLiteCache(t)
	addr := "Main St, South Carolina, USA"

	t.Run("miss on empty cache", func(t *testing.T) {
		_, err := c.Lookup(ctx, addr)
		require.ErrorIs(t, err, cache.ErrMiss)
	})

	t.Run("hit after store", func(t *testing.T) {
		require.NoError(t, c.Store(ctx, addr, models.Coordinates{Latitude: 34.0, Longitude: -81.0}))

		coords, err := c.Lookup(ctx, addr)

		require.NoError(t, err)
		assert.InDelta(t, 34.0, coords.Latitude, 1e-9)
		assert.InDelta(t, -81.0, coords.Longitude, 1e-9)
	})

	t.Run("duplicate store keeps one entry", func(t *testing.T) {
		require.NoError(t, c.Store(ctx, addr, models.Coordinates{Latitude: 34.0, Longitude: -81.0}))
		require.NoError(t, c.Store(ctx, addr, models.Coordinates{Latitude: 34.0, Longitude: -81.0}))

		n, err := c.Len(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("first write wins", func(t *testing.T) {
		require.NoError(t, c.Store(ctx, addr, models.Coordinates{Latitude: 1, Longitude: 1}))

		coords, err := c.Lookup(ctx, addr)

		require.NoError(t, err)
		assert.InDelta(t, 34.0, coords.Latitude, 1e-9)
	})

	t.Run("empty address rejected", func(t *testing.T) {
		_, err := c.Lookup(ctx, "")
		require.ErrorIs(t, err, cache.ErrEmptyAddress)
		require.ErrorIs(t, c.Store(ctx, "", models.Coordinates{}), cache.ErrEmptyAddress)
	})
}

func TestSQLiteCache_NullCoordinatesAreMiss(t *testing.T) {
	ctx := t.Context()
	_, path := newSQLiteCache(t)

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.ExecContext(ctx, `INSERT INTO cache (address, latitude, longitude) VALUES ('Nowhere, South Carolina, USA', NULL, NULL)`)
	require.NoError(t, err)

	c, err := cache.OpenSQLite(ctx, path, slog.Default())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Lookup(ctx, "Nowhere, South Carolina, USA")
	require.ErrorIs(t, err, cache.ErrMiss)
}

func TestSQLiteCache_PersistsAcrossReopen(t *testing.T) {
	ctx := t.Context()
	c, path := newSQLiteCache(t)
	addr := "Elm St, South Carolina, USA"

	require.NoError(t, c.Store(ctx, addr, models.Coordinates{Latitude: 33.5, Longitude: -80.5}))
	require.NoError(t, c.Close())

	reopened, err := cache.OpenSQLite(ctx, path, slog.Default())
	require.NoError(t, err)
	defer reopened.Close()

	coords, err := reopened.Lookup(ctx, addr)
	require.NoError(t, err)
	assert.InDelta(t, 33.5, coords.Latitude, 1e-9)
}

func TestSQLiteCache_InitIsIdempotent(t *testing.T) {
	ctx := t.Context()
	c, _ := newSQLiteCache(t)

	require.NoError(t, c.Init(ctx))
	require.NoError(t, c.Init(ctx))
}

func TestSQLiteCache_ConcurrentHandles(t *testing.T) {
	ctx := t.Context()
	_, path := newSQLiteCache(t)
	const workers = 8

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := cache.OpenSQLite(ctx, path, slog.Default())
			if err != nil {
				errs <- err
				return
			}
			defer c.Close()
			errs <- c.Store(ctx, "Main St, South Carolina, USA", models.Coordinates{Latitude: 34, Longitude: -81})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	c, err := cache.OpenSQLite(ctx, path, slog.Default())
	require.NoError(t, err)
	defer c.Close()
	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	c, err := cache.OpenSQLite(t.Context(), " ", slog.Default())

	require.Error(t, err)
	assert.Nil(t, c)
}
