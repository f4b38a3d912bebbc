package cache_test

import (
	"log/slog"
	"regexp"
	"testing"

	"github.com/UnknownOlympus/waypoint/internal/cache"
	"github.com/UnknownOlympus/waypoint/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lookupQuery = `
		SELECT latitude, longitude
		FROM geocode_cache
		WHERE
			address = $1
			AND latitude IS NOT NULL
			AND longitude IS NOT NULL;
	`

const storeQuery = `
		INSERT INTO geocode_cache (address, latitude, longitude)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO NOTHING;
	`

func TestPostgresCache_Lookup(t *testing.T) {
	t.Parallel()
	logger := slog.Default()
	ctx := t.Context()
	addr := "Main St, South Carolina, USA"

	t.Run("error - query", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		c := cache.NewPostgresCache(mock, logger)

		mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).WithArgs(addr).WillReturnError(assert.AnError)

		_, err = c.Lookup(ctx, addr)

		require.Error(t, err)
		require.ErrorContains(t, err, "failed to query cache")
		require.ErrorIs(t, err, assert.AnError)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss - no rows", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		c := cache.NewPostgresCache(mock, logger)

		mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).WithArgs(addr).WillReturnError(pgx.ErrNoRows)

		_, err = c.Lookup(ctx, addr)

		require.ErrorIs(t, err, cache.ErrMiss)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success - hit", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		c := cache.NewPostgresCache(mock, logger)

		mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).WithArgs(addr).
			WillReturnRows(pgxmock.NewRows([]string{"latitude", "longitude"}).AddRow(34.0, -81.0))

		coords, err := c.Lookup(ctx, addr)

		require.NoError(t, err)
		assert.Equal(t, models.Coordinates{Latitude: 34.0, Longitude: -81.0}, coords)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty address never queried", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		c := cache.NewPostgresCache(mock, logger)

		_, err = c.Lookup(ctx, "")

		require.ErrorIs(t, err, cache.ErrEmptyAddress)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresCache_Store(t *testing.T) {
	t.Parallel()
	logger := slog.Default()
	ctx := t.Context()
	addr := "Main St, South Carolina, USA"
	coords := models.Coordinates{Latitude: 34.0, Longitude: -81.0}

	t.Run("error - insert", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		c := cache.NewPostgresCache(mock, logger)

		mock.ExpectExec(regexp.QuoteMeta(storeQuery)).WithArgs(addr, coords.Latitude, coords.Longitude).
			WillReturnError(assert.AnError)

		err = c.Store(ctx, addr, coords)

		require.Error(t, err)
		require.ErrorContains(t, err, "failed to store cache entry")
		require.ErrorIs(t, err, assert.AnError)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success - conflict is ignored", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		c := cache.NewPostgresCache(mock, logger)

		mock.ExpectExec(regexp.QuoteMeta(storeQuery)).WithArgs(addr, coords.Latitude, coords.Longitude).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(regexp.QuoteMeta(storeQuery)).WithArgs(addr, coords.Latitude, coords.Longitude).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		require.NoError(t, c.Store(ctx, addr, coords))
		require.NoError(t, c.Store(ctx, addr, coords))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresCache_Init(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	t.Run("error - create table", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		c := cache.NewPostgresCache(mock, slog.Default())
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS geocode_cache").WillReturnError(assert.AnError)

		err = c.Init(ctx)

		require.ErrorContains(t, err, "failed to create cache table")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success - repeated init", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		c := cache.NewPostgresCache(mock, slog.Default())
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS geocode_cache").WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS geocode_cache").WillReturnResult(pgxmock.NewResult("CREATE", 0))

		require.NoError(t, c.Init(ctx))
		require.NoError(t, c.Init(ctx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresCache_Len(t *testing.T) {
	t.Parallel()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := cache.NewPostgresCache(mock, slog.Default())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM geocode_cache;`)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	n, err := c.Len(t.Context())

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOptions_DSN(t *testing.T) {
	t.Parallel()
	opts := cache.PostgresOptions{Host: "db", User: "admin", Password: "p@ss", Name: "geo"}

	assert.Equal(t, "postgres://admin:p%40ss@db:5432/geo?sslmode=disable", opts.DSN())
}
