// metrics.go
//
// Prometheus instruments for the worker and gateway HTTP services. Each
// server owns its own registry so several nodes can live in one process
// (tests, local clusters) without collector registration conflicts.

package gate

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics instruments one worker node.
type WorkerMetrics struct {
	registry *prometheus.Registry
	labels   prometheus.Labels

	RequestsTotal   *prometheus.CounterVec // outcome: ok | error
	RequestDuration prometheus.Histogram
}

// NewWorkerMetrics creates the worker instrument set on a private registry.
func NewWorkerMetrics(nodeID string) *WorkerMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"node": nodeID}

	return &WorkerMetrics{
		registry: reg,
		labels:   labels,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "inference_gate",
			Subsystem:   "worker",
			Name:        "requests_total",
			Help:        "Inference requests handled by this worker",
			ConstLabels: labels,
		}, []string{"outcome"}),
		RequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "inference_gate",
			Subsystem:   "worker",
			Name:        "request_duration_seconds",
			Help:        "Arrival-to-resolution latency per request",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
	}
}

// ObserveQueue registers scrape-time collectors over the batch queue's own
// counters, so batching state is exported without a push hook in the hot path.
func (m *WorkerMetrics) ObserveQueue(q *BatchQueue) {
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace:   "inference_gate",
			Subsystem:   "worker",
			Name:        name,
			Help:        help,
			ConstLabels: m.labels,
		}
	}
	m.registry.MustRegister(
		prometheus.NewCounterFunc(opts("batches_total", "Closed batches"),
			func() float64 { return float64(q.Metrics().TotalBatches) }),
		prometheus.NewCounterFunc(opts("batches_full_total", "Batches closed by reaching max_batch_size"),
			func() float64 { return float64(q.Metrics().FullBatches) }),
		prometheus.NewCounterFunc(opts("batches_timeout_total", "Batches closed by the deadline timer"),
			func() float64 { return float64(q.Metrics().TimeoutBatches) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "inference_gate",
			Subsystem:   "worker",
			Name:        "queue_depth",
			Help:        "Unresolved requests (open batch + executing batches)",
			ConstLabels: m.labels,
		}, func() float64 { return float64(q.Depth()) }),
	)
}

// Handler serves this worker's registry on GET /metrics.
func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GatewayMetrics instruments the gateway's forwarding loop.
type GatewayMetrics struct {
	registry *prometheus.Registry

	ForwardsTotal   *prometheus.CounterVec // node, outcome: ok | error
	ForwardDuration *prometheus.HistogramVec
	RetriesTotal    *prometheus.CounterVec // node serving the retry attempt
}

// NewGatewayMetrics creates the gateway instrument set on a private registry.
func NewGatewayMetrics() *GatewayMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &GatewayMetrics{
		registry: reg,
		ForwardsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inference_gate",
			Subsystem: "gateway",
			Name:      "forwards_total",
			Help:      "Forwarding attempts by worker and outcome",
		}, []string{"node", "outcome"}),
		ForwardDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "inference_gate",
			Subsystem: "gateway",
			Name:      "forward_duration_seconds",
			Help:      "Gateway-to-worker call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node"}),
		RetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inference_gate",
			Subsystem: "gateway",
			Name:      "retries_total",
			Help:      "Fallback attempts served, by worker",
		}, []string{"node"}),
	}
}

// Handler serves the gateway's registry on GET /metrics.
func (m *GatewayMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
