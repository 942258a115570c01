package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	fragmentsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "camrelay",
			Subsystem: "transfer",
			Name:      "fragments_sent_total",
			Help:      "Fragments or control messages handed to a transport.",
		},
		[]string{"node", "transport"},
	)
	fragmentRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "camrelay",
			Subsystem: "transfer",
			Name:      "fragment_retries_total",
			Help:      "Send retries after a failed or unconfirmed attempt.",
		},
		[]string{"node", "transport"},
	)
	fragmentsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "camrelay",
			Subsystem: "transfer",
			Name:      "fragments_failed_total",
			Help:      "Fragments or control messages that exhausted retries.",
		},
		[]string{"node", "transport"},
	)
	fragmentsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "camrelay",
			Subsystem: "reassembly",
			Name:      "fragments_dropped_total",
			Help:      "Inbound fragments dropped before a flow mutated.",
		},
		[]string{"node", "reason"},
	)
	flowsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "camrelay",
			Subsystem: "reassembly",
			Name:      "flows_completed_total",
			Help:      "Flows that passed the completeness audit.",
		},
		[]string{"node"},
	)
	flowsDiscarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "camrelay",
			Subsystem: "reassembly",
			Name:      "flows_discarded_total",
			Help:      "Flows discarded before completion.",
		},
		[]string{"node", "reason"},
	)
	exports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "camrelay",
			Subsystem: "sink",
			Name:      "exports_total",
			Help:      "Completed payload exports by result.",
		},
		[]string{"node", "result"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "camrelay",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "camrelay",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			fragmentsSent, fragmentRetries, fragmentsFailed,
			fragmentsDropped, flowsCompleted, flowsDiscarded,
			exports, httpRequests, httpDuration,
		)
	})
}

func RecordFragmentSent(node, transport string) {
	RegisterMetrics()
	fragmentsSent.WithLabelValues(node, transport).Inc()
}

func RecordFragmentRetry(node, transport string) {
	RegisterMetrics()
	fragmentRetries.WithLabelValues(node, transport).Inc()
}

func RecordFragmentFailed(node, transport string) {
	RegisterMetrics()
	fragmentsFailed.WithLabelValues(node, transport).Inc()
}

func RecordFragmentDropped(node, reason string) {
	RegisterMetrics()
	fragmentsDropped.WithLabelValues(node, reason).Inc()
}

func RecordFlowCompleted(node string) {
	RegisterMetrics()
	flowsCompleted.WithLabelValues(node).Inc()
}

func RecordFlowDiscarded(node, reason string) {
	RegisterMetrics()
	flowsDiscarded.WithLabelValues(node, reason).Inc()
}

func RecordExport(node, result string) {
	RegisterMetrics()
	exports.WithLabelValues(node, result).Inc()
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
