// Package resolver turns one input row into a coordinate result by combining
// address building, the durable cache and the geocoding client.
package resolver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/UnknownOlympus/waypoint/internal/address"
	"github.com/UnknownOlympus/waypoint/internal/cache"
	"github.com/UnknownOlympus/waypoint/internal/geocoding"
	"github.com/UnknownOlympus/waypoint/internal/metrics"
	"github.com/UnknownOlympus/waypoint/internal/models"
)

// Geocoder resolves a canonical address to coordinates. *geocoding.Client
// implements it.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (models.Coordinates, error)
}

// step is the position of a row in the resolution state machine.
type step int

const (
	stepFull step = iota
	stepTrimmed
	stepDone
)

// Resolver resolves rows one at a time. It owns a cache handle and therefore
// belongs to a single worker.
type Resolver struct {
	builder address.Builder
	cache   cache.Cache
	client  Geocoder
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Resolver.
func New(
	builder address.Builder,
	c cache.Cache,
	client Geocoder,
	log *slog.Logger,
	m *metrics.Metrics,
) *Resolver {
	return &Resolver{
		builder: builder,
		cache:   c,
		client:  client,
		log:     log,
		metrics: m,
	}
}

// ResolveRow produces the result for row. It never returns an error: every
// failure ends up as a result without coordinates.
//
// The full address is tried first. When the service finds nothing for an
// address built from both streets, the row is retried once with the primary
// street only. The trimmed address is never trimmed again.
func (r *Resolver) ResolveRow(ctx context.Context, row models.Row) models.Result {
	addr := r.builder.Build(row, false)
	if addr == "" {
		return models.Unresolved(row.Key, models.OutcomeEmptyAddress)
	}

	current := stepFull
	for current != stepDone {
		coords, err := r.resolveAddress(ctx, row.Key, addr)
		if err == nil {
			return r.success(row.Key, coords, current)
		}

		switch {
		case ctx.Err() != nil:
			return models.Unresolved(row.Key, models.OutcomeCancelled)
		case !geocoding.IsNotFound(err):
			return models.Unresolved(row.Key, models.OutcomeFailed)
		case current == stepFull && r.builder.HasBothStreets(addr):
			trimmed := r.builder.Build(row, true)
			if trimmed == "" || trimmed == addr {
				// a comma inside the primary street mimics a second street
				return models.Unresolved(row.Key, models.OutcomeNotFound)
			}
			r.log.DebugContext(ctx, "Retrying with primary street only",
				"row", row.Key, "address", addr, "trimmed", trimmed)
			addr = trimmed
			current = stepTrimmed
		default:
			current = stepDone
		}
	}

	return models.Unresolved(row.Key, models.OutcomeNotFound)
}

// resolveAddress looks addr up in the cache and falls back to the client,
// persisting every network resolution. Cache errors never fail the row.
func (r *Resolver) resolveAddress(ctx context.Context, key int, addr string) (resolution, error) {
	coords, err := r.cache.Lookup(ctx, addr)
	switch {
	case err == nil:
		r.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return resolution{coords: coords, cached: true}, nil
	case errors.Is(err, cache.ErrMiss):
		r.metrics.CacheLookups.WithLabelValues("miss").Inc()
	default:
		r.metrics.CacheErrors.WithLabelValues("lookup").Inc()
		r.log.WarnContext(ctx, "Cache lookup failed, treating as miss", "row", key, "address", addr, "error", err)
	}

	coords, err = r.client.Resolve(ctx, addr)
	if err != nil {
		return resolution{}, err
	}

	if err = r.cache.Store(ctx, addr, coords); err != nil {
		r.metrics.CacheErrors.WithLabelValues("store").Inc()
		r.log.ErrorContext(ctx, "Failed to store coordinates", "row", key, "address", addr, "error", err)
	}

	return resolution{coords: coords}, nil
}

type resolution struct {
	coords models.Coordinates
	cached bool
}

func (r *Resolver) success(key int, res resolution, at step) models.Result {
	switch {
	case at == stepTrimmed:
		return models.Resolved(key, res.coords, models.OutcomeResolvedTrimmed)
	case res.cached:
		return models.Resolved(key, res.coords, models.OutcomeCacheHit)
	default:
		return models.Resolved(key, res.coords, models.OutcomeResolved)
	}
}
