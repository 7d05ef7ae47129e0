package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values of export_messages_processed_total
const (
	resultCompleted   = "completed"
	resultInvalid     = "invalid"
	resultUnknownType = "unknown_type"
	resultFailed      = "failed"
	resultPanic       = "panic"
)

// labelUnknown replaces export types that no family handles, keeping the
// label set bounded
const labelUnknown = "unknown"

var (
	messagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "export_messages_received_total",
		Help: "The total number of export messages received from the queue.",
	})

	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "export_messages_processed_total",
		Help: "The total number of export messages handled, by export type and result.",
	}, []string{"export_type", "result"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "export_job_duration_seconds",
		Help:    "Time from decode to persisted artifact, by export type.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"export_type"})
)
