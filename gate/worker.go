// worker.go
//
// WorkerNode exposes one BatchQueue and one ComputeEngine over HTTP. Each
// inbound /infer call becomes an InferenceRequest, suspends on the batch
// queue until its batch resolves, and returns the caller's own result.
// Workers are independent: they hold no knowledge of other workers or of the
// ring.

package gate

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// WorkerNode is the network-addressable worker service.
type WorkerNode struct {
	nodeID  string
	queue   *BatchQueue
	metrics *WorkerMetrics

	totalRequests  atomic.Int64
	activeRequests atomic.Int64
	failedRequests atomic.Int64
}

// WorkerStats is the JSON body of the worker's GET /stats.
type WorkerStats struct {
	NodeID         string       `json:"node_id"`
	QueueDepth     int          `json:"queue_depth"`
	ActiveRequests int64        `json:"active_requests"`
	TotalRequests  int64        `json:"total_requests"`
	FailedRequests int64        `json:"failed_requests"`
	BatchMetrics   QueueMetrics `json:"batch_metrics"`
}

// NewWorkerNode wires a worker around an already-running batch queue.
func NewWorkerNode(nodeID string, queue *BatchQueue, metrics *WorkerMetrics) *WorkerNode {
	return &WorkerNode{nodeID: nodeID, queue: queue, metrics: metrics}
}

// NodeID returns the worker's identity as reported in results and stats.
func (w *WorkerNode) NodeID() string {
	return w.nodeID
}

// Close stops the batch queue, flushing the pending batch and waiting for
// in-flight executions.
func (w *WorkerNode) Close() {
	w.queue.Stop()
}

// Handler returns the worker's HTTP surface:
// POST /infer, GET /stats, GET /health, GET /metrics.
func (w *WorkerNode) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /infer", w.handleInfer)
	mux.HandleFunc("GET /stats", w.handleStats)
	mux.HandleFunc("GET /health", w.handleHealth)
	if w.metrics != nil {
		mux.Handle("GET /metrics", w.metrics.Handler())
	}
	return mux
}

// handleInfer services one inference call end to end.
func (w *WorkerNode) handleInfer(rw http.ResponseWriter, r *http.Request) {
	var body InferRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(rw, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(body.InputData) == 0 {
		http.Error(rw, "input_data must be non-empty", http.StatusBadRequest)
		return
	}
	if body.RequestID == "" {
		body.RequestID = uuid.NewString()
	}

	req := &InferenceRequest{
		ID:          body.RequestID,
		Payload:     body.InputData,
		Shape:       body.InputShape,
		ArrivalTime: time.Now(),
	}

	w.totalRequests.Add(1)
	w.activeRequests.Add(1)
	defer w.activeRequests.Add(-1)

	res, err := w.queue.Submit(r.Context(), req)
	if err != nil {
		w.failedRequests.Add(1)
		w.observe("error", res.LatencyMs)
		logrus.Debugf("worker %s: request %s failed: %v", w.nodeID, req.ID, err)
		writeJSON(rw, w.errorStatus(err), InferResponse{
			RequestID: req.ID,
			NodeID:    w.nodeID,
			Error:     err.Error(),
		})
		return
	}

	w.observe("ok", res.LatencyMs)
	writeJSON(rw, http.StatusOK, InferResponse{
		RequestID:       res.RequestID,
		OutputData:      res.Output,
		OutputShape:     []int{len(res.Output)},
		InferenceTimeUs: int64(res.LatencyMs * 1000),
		NodeID:          w.nodeID,
	})
}

// handleStats reports queue depth, totals, and batch metrics.
func (w *WorkerNode) handleStats(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, http.StatusOK, w.Stats())
}

// handleHealth is the gateway's liveness probe.
func (w *WorkerNode) handleHealth(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"healthy": true,
		"node_id": w.nodeID,
	})
}

// Stats snapshots the worker counters.
func (w *WorkerNode) Stats() WorkerStats {
	return WorkerStats{
		NodeID:         w.nodeID,
		QueueDepth:     w.queue.Depth(),
		ActiveRequests: w.activeRequests.Load(),
		TotalRequests:  w.totalRequests.Load(),
		FailedRequests: w.failedRequests.Load(),
		BatchMetrics:   w.queue.Metrics(),
	}
}

// errorStatus maps submit failures to HTTP status codes. Compute failures are
// the worker's own (500); a closed queue means the process is draining (503).
func (w *WorkerNode) errorStatus(err error) int {
	switch {
	case err == ErrQueueClosed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// observe feeds the Prometheus instruments when metrics are enabled.
func (w *WorkerNode) observe(outcome string, latencyMs float64) {
	if w.metrics == nil {
		return
	}
	w.metrics.RequestsTotal.WithLabelValues(outcome).Inc()
	w.metrics.RequestDuration.Observe(latencyMs / 1000.0)
}

// writeJSON writes a JSON response with the given status.
func writeJSON(rw http.ResponseWriter, status int, body any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(body); err != nil {
		logrus.Warnf("write response: %v", err)
	}
}
