// Package metrics provides Prometheus metrics for BlazeAlert.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "blazealert"
)

// Evaluation metrics
var (
	// EvaluationsTotal counts alert evaluations by severity.
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "evaluations_total",
			Help:      "Total number of alert evaluations",
		},
		[]string{"severity"},
	)

	// EvaluationErrorsTotal counts failed alert evaluations by stage.
	EvaluationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "errors_total",
			Help:      "Total evaluation errors by severity and stage",
		},
		[]string{"severity", "stage"},
	)

	// TransitionsTotal counts persisted state transitions.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "transitions_total",
			Help:      "Total alert state transitions",
		},
		[]string{"from", "to"},
	)

	// NotificationsTotal counts notify decisions.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "notifications_total",
			Help:      "Total notify decisions enqueued",
		},
		[]string{"severity"},
	)

	// EvaluationDuration tracks the duration of one severity pass.
	EvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "pass_duration_seconds",
			Help:      "Duration of one evaluation pass in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"severity"},
	)
)

// Queue metrics
var (
	// QueueDepth tracks pending trigger items per severity.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of trigger items waiting for dispatch",
		},
		[]string{"severity"},
	)
)

// Dispatch metrics
var (
	// DispatchSentTotal counts successful channel deliveries.
	DispatchSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "sent_total",
			Help:      "Total notifications delivered by provider",
		},
		[]string{"provider"},
	)

	// DispatchFailedTotal counts failed channel deliveries.
	DispatchFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "failed_total",
			Help:      "Total failed notification deliveries by provider",
		},
		[]string{"provider"},
	)

	// AdapterSendDuration tracks provider send latency.
	AdapterSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "send_duration_seconds",
			Help:      "Adapter send latency in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)

	// ReceiverRequestsTotal counts trigger endpoint requests by status.
	ReceiverRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "receiver",
			Name:      "requests_total",
			Help:      "Total trigger endpoint requests",
		},
		[]string{"status"},
	)
)

// Scheduler metrics
var (
	// SchedulerTicksTotal counts task ticks by result (ran, skipped, failed).
	SchedulerTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Total scheduler ticks by task and result",
		},
		[]string{"task", "result"},
	)
)

// Info metric
var (
	// BuildInfo exposes build information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit, buildTime string) {
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
