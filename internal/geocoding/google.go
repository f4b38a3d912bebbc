package geocoding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/UnknownOlympus/waypoint/internal/models"
	"googlemaps.github.io/maps"
)

// GoogleProvider is a struct that holds the client for Google Maps API
// and a logger for logging purposes. It is used to interact with the
// Google Maps geocoding services.
type GoogleProvider struct {
	client GoogleAPIClient // client is the Google Maps API client
	log    *slog.Logger    // log is the logger for logging operations
}

type GoogleAPIClient interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// googleTransientStatuses are API statuses that may succeed on a later attempt.
var googleTransientStatuses = []string{"OVER_QUERY_LIMIT", "UNKNOWN_ERROR"}

// NewGoogleProvider wraps a Google Maps client.
func NewGoogleProvider(client GoogleAPIClient, log *slog.Logger) *GoogleProvider {
	return &GoogleProvider{client: client, log: log}
}

// Geocode takes a context and an address string as input, and returns the geographical coordinates
// (longitude and latitude) of the provided address using the Google Maps Geocoding API.
// ZERO_RESULTS answers are reported as ErrNotFound, quota and internal errors as *ServiceError.
func (gp *GoogleProvider) Geocode(ctx context.Context, address string) (*models.Coordinates, error) {
	gp.log.DebugContext(ctx, "Geocoding using Google Maps", "address", address)

	if address == "" {
		return nil, ErrEmptyAddress
	}

	req := maps.GeocodingRequest{Address: address}
	geocodeResponse, err := gp.client.Geocode(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to geocode address: %w", gp.classify(err))
	}

	if len(geocodeResponse) == 0 {
		return nil, fmt.Errorf("google: %w", ErrNotFound)
	}
	coords := geocodeResponse[0].Geometry.Location

	return &models.Coordinates{Longitude: coords.Lng, Latitude: coords.Lat}, nil
}

func (gp *GoogleProvider) classify(err error) error {
	msg := err.Error()
	for _, status := range googleTransientStatuses {
		if strings.Contains(msg, status) {
			return &ServiceError{Provider: "google", Message: status, Err: err}
		}
	}
	if strings.Contains(msg, "REQUEST_DENIED") {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return transportError("google", err)
}
