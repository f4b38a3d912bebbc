package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RowsProcessed    *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	CacheErrors      *prometheus.CounterVec
	RequestSeconds   *prometheus.HistogramVec
	ProviderFailures *prometheus.CounterVec
	ProviderRetries  prometheus.Counter
	ActiveWorkers    prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RowsProcessed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "waypoint_rows_processed_total",
			Help: "Total number of input rows processed, by outcome.",
		}, []string{"outcome"}),
		CacheLookups: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "waypoint_cache_lookups_total",
			Help: "Geocode cache lookups by result (hit, miss).",
		}, []string{"result"}),
		CacheErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "waypoint_cache_errors_total",
			Help: "Geocode cache errors by operation (lookup, store, open).",
		}, []string{"op"}),
		RequestSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "waypoint_provider_request_duration_seconds",
			Help:    "Duration of requests to the geocoding provider API.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		ProviderFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "waypoint_provider_failures_total",
			Help: "Failed geocoding provider calls by failure kind.",
		}, []string{"kind"}),
		ProviderRetries: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "waypoint_provider_retries_total",
			Help: "Total number of retried geocoding provider calls.",
		}),
		ActiveWorkers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "waypoint_active_workers",
			Help: "Current number of workers resolving a chunk.",
		}),
	}
}
