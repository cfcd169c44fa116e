// Package metrics exposes the service's Prometheus metrics and the server
// that serves them.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded for publish_total.
const (
	OutcomeSuccess    = "success"
	OutcomeReconciled = "reconciled"
)

var (
	publishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "publish_total",
		Help: "Publish requests by backend and outcome (success, reconciled or an error kind).",
	}, []string{"backend", "outcome"})

	ledgerRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_retries_total",
		Help: "Ledger calls retried after an unavailable error, by operation.",
	}, []string{"op"})

	uploadDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upload_duration_seconds",
		Help:    "Storage backend upload latency.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"backend", "success"})
)

// Collectors returns the service's collectors for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{publishTotal, ledgerRetriesTotal, uploadDuration}
}

// RecordPublish counts a finished publish.
func RecordPublish(backend, outcome string) {
	publishTotal.WithLabelValues(backend, outcome).Inc()
}

// RecordLedgerRetry counts one retry of a ledger operation.
func RecordLedgerRetry(op string) {
	ledgerRetriesTotal.WithLabelValues(op).Inc()
}

// ObserveUpload records the latency of one backend upload.
func ObserveUpload(backend string, success bool, d time.Duration) {
	uploadDuration.WithLabelValues(backend, strconv.FormatBool(success)).Observe(d.Seconds())
}
