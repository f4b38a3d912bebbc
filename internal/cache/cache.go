// Package cache persists resolved addresses so that every distinct address is
// sent to the geocoding provider at most once across runs.
package cache

import (
	"context"
	"errors"

	"github.com/UnknownOlympus/waypoint/internal/models"
)

var (
	// ErrMiss is returned by Lookup when the address has no stored coordinates.
	ErrMiss = errors.New("address is not cached")
	// ErrEmptyAddress is returned when the empty-address sentinel reaches the cache.
	ErrEmptyAddress = errors.New("empty address cannot be cached")
	// ErrUnsupportedBackend is returned by NewOpener for unknown backends.
	ErrUnsupportedBackend = errors.New("unsupported cache backend")
)

// Cache is a durable address -> coordinates store. A Cache handle belongs to a
// single worker and is not shared.
type Cache interface {
	// Lookup returns the stored coordinates or ErrMiss.
	Lookup(ctx context.Context, address string) (models.Coordinates, error)
	// Store persists coordinates for the address. Storing an address that
	// already exists is a no-op.
	Store(ctx context.Context, address string, coords models.Coordinates) error
	// Len returns the number of stored entries.
	Len(ctx context.Context) (int, error)
	// Close releases the underlying connection.
	Close() error
}
