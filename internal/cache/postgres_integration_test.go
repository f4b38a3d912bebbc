//go:build integration

package cache_test

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/UnknownOlympus/waypoint/internal/cache"
	"github.com/UnknownOlympus/waypoint/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgresCache_Integration(t *testing.T) {
	ctx := t.Context()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("waypoint"),
		postgres.WithUsername("waypoint"),
		postgres.WithPassword("waypoint"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	open, err := cache.NewOpener(cache.Options{
		Backend: cache.BackendPostgres,
		Postgres: cache.PostgresOptions{
			Host:     host,
			Port:     port.Port(),
			User:     "waypoint",
			Password: "waypoint",
			Name:     "waypoint",
		},
	}, slog.Default())
	require.NoError(t, err)

	const workers = 4
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, errOpen := open(ctx)
			if !assert.NoError(t, errOpen) {
				return
			}
			defer c.Close()
			assert.NoError(t, c.Store(ctx, "Main St, South Carolina, USA", models.Coordinates{Latitude: 34, Longitude: -81}))
		}()
	}
	wg.Wait()

	c, err := open(ctx)
	require.NoError(t, err)
	defer c.Close()

	coords, err := c.Lookup(ctx, "Main St, South Carolina, USA")
	require.NoError(t, err)
	assert.InDelta(t, 34.0, coords.Latitude, 1e-9)

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
