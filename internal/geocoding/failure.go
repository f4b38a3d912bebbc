package geocoding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// FailureKind classifies why an address could not be geocoded.
type FailureKind int

const (
	// FailureTimeout means the service did not answer within the call timeout.
	FailureTimeout FailureKind = iota + 1
	// FailureServiceError means the service reported a transient error.
	FailureServiceError
	// FailureNotFound means the service answered without a match.
	FailureNotFound
	// FailureUnexpected covers every other error. It is never retried.
	FailureUnexpected
)

func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureServiceError:
		return "service_error"
	case FailureNotFound:
		return "not_found"
	case FailureUnexpected:
		return "unexpected"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// Retryable reports whether the Client retries this kind of failure.
func (k FailureKind) Retryable() bool {
	return k == FailureTimeout || k == FailureServiceError
}

// Failure is returned by Client.Resolve when an address could not be geocoded.
type Failure struct {
	Kind     FailureKind
	Address  string
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("geocode %q failed (%s) after %d attempt(s): %v", f.Address, f.Kind, f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// IsNotFound reports whether err is a NotFound failure.
func IsNotFound(err error) bool {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Kind == FailureNotFound
	}
	return errors.Is(err, ErrNotFound)
}

// Classify maps a provider error to its failure kind.
func Classify(err error) FailureKind {
	if errors.Is(err, ErrNotFound) {
		return FailureNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return FailureServiceError
	}
	return FailureUnexpected
}

// transportError turns a non-timeout transport failure into a ServiceError so
// that connection problems are retried like 5xx answers.
func transportError(provider string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && !urlErr.Timeout() {
		return &ServiceError{Provider: provider, Err: err}
	}
	return err
}
