package geocoding

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/UnknownOlympus/waypoint/internal/models"
)

// Provider is an interface that defines a method for geocoding an address.
// The Geocode method takes a context and an address string as input,
// and returns the corresponding coordinates and an error if any occurs.
//
// A provider that received a definitive "no match" answer returns an error
// wrapping ErrNotFound. Transient service conditions are reported as
// *ServiceError; everything else is treated as unexpected by the Client.
type Provider interface {
	Geocode(ctx context.Context, address string) (*models.Coordinates, error)
}

// HTTPClient defines the interface for making HTTP requests.
// This allows for easy mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

var (
	// ErrNotFound is returned when the service answered but found no match.
	ErrNotFound = errors.New("address not found")
	// ErrUnauthorized is returned when the service rejects the credentials.
	ErrUnauthorized = errors.New("geocoding provider rejected credentials")
	// ErrEmptyAddress is returned when the empty-address sentinel reaches a provider.
	ErrEmptyAddress = errors.New("empty address")
)

// ServiceError reports a transient failure of the geocoding service: rate
// limiting, 5xx answers or an unreachable endpoint.
type ServiceError struct {
	Provider   string
	StatusCode int    // HTTP status, 0 for transport failures
	Message    string // response body or provider status
	Err        error  // underlying transport error, if any
}

func (e *ServiceError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s service unavailable: %v", e.Provider, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s service error: %s", e.Provider, e.Message)
	}
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// isTransientStatus reports whether an HTTP status is worth retrying.
func isTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= http.StatusInternalServerError
}
