package geocoding

import (
	"context"
	"log/slog"
	"time"

	"github.com/UnknownOlympus/waypoint/internal/metrics"
	"github.com/UnknownOlympus/waypoint/internal/models"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Defaults for ClientOptions.
const (
	DefaultMaxAttempts = 5
	DefaultTimeout     = 10 * time.Second
	DefaultBackoffUnit = time.Second
)

// ClientOptions tunes the retry discipline of a Client.
type ClientOptions struct {
	ProviderName string        // label used in metrics and logs
	MaxAttempts  int           // provider calls per address, including the first
	Timeout      time.Duration // deadline of a single provider call
	BackoffUnit  time.Duration // wait after attempt n is BackoffUnit * 2^n
	RateLimit    float64       // requests per second across all callers, <= 0 disables
	Clock        clockwork.Clock
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.BackoffUnit <= 0 {
		o.BackoffUnit = DefaultBackoffUnit
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

// Client resolves addresses through a Provider with a per-call timeout,
// bounded retries and exponential backoff. A Client is safe for concurrent use
// and its rate limit is shared by all callers.
type Client struct {
	provider Provider
	log      *slog.Logger
	metrics  *metrics.Metrics
	limiter  *rate.Limiter
	opts     ClientOptions
}

// NewClient creates a Client around provider.
func NewClient(provider Provider, opts ClientOptions, log *slog.Logger, m *metrics.Metrics) *Client {
	opts = opts.withDefaults()

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	return &Client{
		provider: provider,
		log:      log,
		metrics:  m,
		limiter:  limiter,
		opts:     opts,
	}
}

// Backoff returns the wait that follows a failed attempt (0-based).
func Backoff(unit time.Duration, attempt int) time.Duration {
	return unit << attempt
}

// Resolve geocodes address. On failure the returned error is a *Failure.
//
// Timeouts and service errors are retried until MaxAttempts calls were made,
// waiting Backoff(unit, n) after failed attempt n. NotFound and unexpected
// errors end the loop immediately.
func (c *Client) Resolve(ctx context.Context, address string) (models.Coordinates, error) {
	if address == "" {
		return models.Coordinates{}, &Failure{Kind: FailureUnexpected, Address: address, Err: ErrEmptyAddress}
	}

	for attempt := range c.opts.MaxAttempts {
		attempts := attempt + 1

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return models.Coordinates{}, &Failure{
					Kind: FailureUnexpected, Address: address, Attempts: attempt, Err: err,
				}
			}
		}

		coords, err := c.call(ctx, address)
		if err == nil {
			return coords, nil
		}

		if ctx.Err() != nil {
			return models.Coordinates{}, &Failure{
				Kind: FailureUnexpected, Address: address, Attempts: attempts, Err: ctx.Err(),
			}
		}

		kind := Classify(err)
		c.metrics.ProviderFailures.WithLabelValues(kind.String()).Inc()
		failure := &Failure{Kind: kind, Address: address, Attempts: attempts, Err: err}

		switch {
		case kind == FailureNotFound:
			c.log.InfoContext(ctx, "No results found for address", "address", address)
			return models.Coordinates{}, failure
		case !kind.Retryable():
			c.log.ErrorContext(ctx, "Unexpected error geocoding address",
				"address", address,
				"provider", c.opts.ProviderName,
				"attempt", attempts,
				"error", err,
			)
			return models.Coordinates{}, failure
		case attempts == c.opts.MaxAttempts:
			c.log.WarnContext(ctx, "Max retries reached for address",
				"address", address, "attempts", attempts, "kind", kind.String(), "error", err)
			return models.Coordinates{}, failure
		}

		delay := Backoff(c.opts.BackoffUnit, attempt)
		c.log.WarnContext(ctx, "Error geocoding address, retrying",
			"address", address,
			"attempt", attempts,
			"kind", kind.String(),
			"retry_in", delay,
			"error", err,
		)
		c.metrics.ProviderRetries.Inc()

		select {
		case <-c.opts.Clock.After(delay):
		case <-ctx.Done():
			return models.Coordinates{}, &Failure{
				Kind: FailureUnexpected, Address: address, Attempts: attempts, Err: ctx.Err(),
			}
		}
	}

	// unreachable: the loop returns on its last attempt
	return models.Coordinates{}, &Failure{Kind: FailureUnexpected, Address: address, Attempts: c.opts.MaxAttempts}
}

// call performs one provider request bounded by the call timeout.
func (c *Client) call(ctx context.Context, address string) (models.Coordinates, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	startTime := time.Now()
	coords, err := c.provider.Geocode(callCtx, address)
	c.metrics.RequestSeconds.WithLabelValues(c.opts.ProviderName).Observe(time.Since(startTime).Seconds())

	if err != nil {
		return models.Coordinates{}, err
	}
	if coords == nil {
		return models.Coordinates{}, ErrNotFound
	}

	return *coords, nil
}
