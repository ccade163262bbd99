// Package metrics holds the Prometheus collectors shared by the store, the
// offline queue, the connectivity detector, the autosave controller and the
// HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "certkeeper"

var (
	// StoreOperations counts draft store mutations.
	// Labels: op (add, update, put, delete), result (ok, error)
	StoreOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Draft store operations by kind and result",
	}, []string{"op", "result"})

	// StoreRecords is the number of records held in the cache.
	StoreRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "records",
		Help:      "Records currently held by the draft store",
	})

	// AutosaveOutcomes counts finished save procedures.
	// Labels: outcome (created, saved, queued, finalized, failed)
	AutosaveOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "autosave",
		Name:      "outcomes_total",
		Help:      "Autosave procedure outcomes",
	}, []string{"outcome"})

	// AutosaveDuration measures store writes issued by autosave.
	AutosaveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "autosave",
		Name:      "write_duration_seconds",
		Help:      "Duration of autosave store writes",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	// QueueDepth is the number of saves waiting for connectivity.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "offline_queue",
		Name:      "depth",
		Help:      "Saves waiting in the offline queue",
	})

	// QueueFlushed counts flushed entries.
	// Labels: result (ok, error)
	QueueFlushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "offline_queue",
		Name:      "flushed_total",
		Help:      "Offline queue entries flushed by result",
	}, []string{"result"})

	// Online is 1 while the detector reports connectivity.
	Online = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "connectivity",
		Name:      "online",
		Help:      "1 when the store is reachable, 0 otherwise",
	})

	// ConnectivityTransitions counts edges reported to subscribers.
	// Labels: to (online, offline)
	ConnectivityTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "connectivity",
		Name:      "transitions_total",
		Help:      "Connectivity state changes",
	}, []string{"to"})

	// HTTPRequests measures API requests.
	// Labels: operation (huma operation id), code (status class, e.g. 2xx)
	HTTPRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "API request latency by operation and status class",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "code"})
)

// StatusClass turns an HTTP status code into its class label.
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Result maps an error onto the ok/error label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
