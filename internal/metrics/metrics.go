// Package metrics provides Prometheus metrics collection for the melody predictor.
// It defines the regressor, forecast, selection and HTTP metrics exposed on the
// Prometheus metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the predictor and selection service.
type Metrics struct {
	// Regressor metrics
	MLPredictions     prometheus.Counter   // Total number of single-step predictions
	MLFailures        prometheus.Counter   // Total number of failed predictions
	MLModelAge        prometheus.Gauge     // Age of the loaded model in seconds
	MLLatency         prometheus.Histogram // Single-step prediction latency in seconds
	MLUncertainty     prometheus.Histogram // Distribution of predictive standard deviations
	MLTimeouts        prometheus.Counter   // Forecasts aborted by a request deadline
	TrainingBatches   prometheus.Counter   // Batch fits performed by training runs
	ForecastLatency   prometheus.Histogram // Full forecast latency in seconds
	ForecastCacheHits prometheus.Counter   // Forecasts served from cache
	ForecastCacheMiss prometheus.Counter   // Forecasts computed

	// Selection metrics
	Selections       *prometheus.CounterVec // Completed selections by strategy
	SelectionLatency prometheus.Histogram   // End-to-end selection latency in seconds

	// Transport metrics
	HTTPRequests *prometheus.CounterVec // Requests by route and status code
	WSSessions   prometheus.Gauge       // Open websocket sessions

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		MLPredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of single-step predictions made",
		}),
		MLFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of prediction failures",
		}),
		MLModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_age_seconds",
			Help: "Age of the loaded model in seconds",
		}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "Single-step prediction latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		MLUncertainty: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_predictive_std",
			Help:    "Distribution of predictive standard deviations in normalized pitch units",
			Buckets: prometheus.LinearBuckets(0, 0.05, 11),
		}),
		MLTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_timeouts_total",
			Help: "Total number of forecasts aborted by a deadline",
		}),
		TrainingBatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_batches_total",
			Help: "Total number of batch fits performed during training",
		}),
		ForecastLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "forecast_latency_seconds",
			Help:    "Autoregressive forecast latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		ForecastCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "forecast_cache_hits_total",
			Help: "Total number of forecasts served from cache",
		}),
		ForecastCacheMiss: factory.NewCounter(prometheus.CounterOpts{
			Name: "forecast_cache_misses_total",
			Help: "Total number of forecasts computed",
		}),
		Selections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "selections_total",
			Help: "Total number of completed selections",
		}, []string{"strategy"}),
		SelectionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "selection_latency_seconds",
			Help:    "End-to-end selection latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		}, []string{"route", "code"}),
		WSSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ws_sessions",
			Help: "Number of open websocket sessions",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

// CacheHitRate returns hits / (hits + misses) gathered from registry, or 0
// when no forecast has been requested yet.
func (m *Metrics) CacheHitRate(gatherer prometheus.Gatherer) float64 {
	var hits, misses float64

	metricFamilies, err := gatherer.Gather()
	if err != nil {
		return 0
	}

	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "forecast_cache_hits_total":
			for _, m := range mf.Metric {
				hits = m.GetCounter().GetValue()
			}
		case "forecast_cache_misses_total":
			for _, m := range mf.Metric {
				misses = m.GetCounter().GetValue()
			}
		}
	}

	if hits+misses == 0 {
		return 0
	}
	return hits / (hits + misses)
}
