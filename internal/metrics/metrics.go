// Package metrics defines Prometheus metrics for metalwatch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "metalwatch"

// Ingestion metrics.
var (
	PricesSavedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "prices_saved_total",
		Help:      "Total number of commodity price observations appended.",
	})

	FXRatesSavedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fx_rates_saved_total",
		Help:      "Total number of FX rate observations appended.",
	})

	ProviderErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_errors_total",
		Help:      "Total number of upstream provider failures.",
	}, []string{"provider"})

	IngestRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingest_run_duration_seconds",
		Help:      "Duration of ingestion runs in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"task"})
)

// Import metrics.
var (
	ImportRowsInsertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_rows_inserted_total",
		Help:      "Total number of observations inserted by CSV backfills.",
	})
)

// Alerting metrics.
var (
	AlertsFiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_fired_total",
		Help:      "Total number of window alerts fired.",
	})

	AlertDeliveryFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alert_delivery_failures_total",
		Help:      "Total number of failed alert message deliveries.",
	})

	AlertRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "alert_run_duration_seconds",
		Help:      "Duration of alert evaluation runs in seconds.",
		Buckets:   prometheus.DefBuckets,
	})
)
