// gateway.go
//
// The Gateway is the single entry point that shields clients from worker
// topology. Each request is hashed onto the ring to pick its worker, then
// forwarded over HTTP with a bounded timeout. Failures surface to the client;
// an explicit, bounded fallback policy can walk the ring's successor nodes,
// counted separately from first-attempt traffic.

package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// NodeStats holds the gateway's per-worker counters. Updated on every
// forwarding attempt, read by the stats endpoint.
type NodeStats struct {
	RequestsHandled int64     `json:"requests_handled"`
	RequestsFailed  int64     `json:"requests_failed"`
	RetriesServed   int64     `json:"retries_served"`
	LastSeen        time.Time `json:"last_seen"`
}

// GatewayStats is the JSON body of the gateway's GET /stats. LoadBalanceCV is
// the coefficient of variation of per-worker handled counts, the fairness
// metric for the ring.
type GatewayStats struct {
	TotalRequests int64                `json:"total_requests"`
	NumWorkers    int                  `json:"num_workers"`
	Workers       map[string]NodeStats `json:"workers"`
	LoadBalanceCV float64              `json:"load_balance_cv"`
}

// ForwardingError reports a failed gateway-to-worker call.
type ForwardingError struct {
	NodeID  string
	Timeout bool
	Err     error
}

func (e *ForwardingError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("forward to %s timed out: %v", e.NodeID, e.Err)
	}
	return fmt.Sprintf("forward to %s failed: %v", e.NodeID, e.Err)
}

func (e *ForwardingError) Unwrap() error {
	return e.Err
}

// Gateway routes inference requests across the worker pool.
type Gateway struct {
	cfg     GatewayConfig
	ring    *HashRing
	client  *http.Client
	metrics *GatewayMetrics

	mu            sync.Mutex
	stats         map[string]*NodeStats
	totalRequests int64
}

// NewGateway builds the ring from the configured worker URLs. Worker base
// URLs double as the physical node IDs on the ring.
func NewGateway(cfg GatewayConfig, metrics *GatewayMetrics) (*Gateway, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &Gateway{
		cfg:     cfg,
		ring:    NewHashRing(cfg.VirtualNodes),
		client:  &http.Client{Timeout: cfg.ForwardTimeout()},
		metrics: metrics,
		stats:   make(map[string]*NodeStats),
	}
	for _, worker := range cfg.Workers {
		if err := g.AddWorker(worker); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// AddWorker registers a worker on the ring. Not part of the per-request hot
// path; lookups running concurrently see the pre- or post-mutation ring.
func (g *Gateway) AddWorker(baseURL string) error {
	if err := g.ring.AddNode(baseURL); err != nil {
		return err
	}
	g.mu.Lock()
	g.stats[baseURL] = &NodeStats{}
	g.mu.Unlock()
	return nil
}

// RemoveWorker removes a worker from the ring. Its accumulated stats remain
// visible until process restart.
func (g *Gateway) RemoveWorker(baseURL string) error {
	return g.ring.RemoveNode(baseURL)
}

// ProbeWorkers checks every configured worker's /health endpoint at startup
// and logs the outcome. Unreachable workers stay on the ring: consistent
// hashing ties their keys to them and they may come up later.
func (g *Gateway) ProbeWorkers(ctx context.Context) int {
	healthy := 0
	for _, worker := range g.cfg.Workers {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, worker+"/health", nil)
		if err != nil {
			logrus.Warnf("probe %s: %v", worker, err)
			continue
		}
		resp, err := g.client.Do(req)
		if err != nil {
			logrus.Warnf("probe %s: %v", worker, err)
			continue
		}
		var body struct {
			NodeID string `json:"node_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && resp.StatusCode == http.StatusOK {
			logrus.Infof("probe %s: healthy (node %s)", worker, body.NodeID)
			healthy++
		} else {
			logrus.Warnf("probe %s: status %d", worker, resp.StatusCode)
		}
		resp.Body.Close()
	}
	return healthy
}

// Handler returns the gateway's HTTP surface:
// POST /infer, GET /stats, GET /metrics.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /infer", g.handleInfer)
	mux.HandleFunc("GET /stats", g.handleStats)
	if g.metrics != nil {
		mux.Handle("GET /metrics", g.metrics.Handler())
	}
	return mux
}

// handleInfer routes and forwards one request. Request lifecycle:
// RECEIVED -> ROUTED -> FORWARDED -> COMPLETED, or on failure up to
// MaxRetries fallback attempts before the failure becomes terminal.
func (g *Gateway) handleInfer(rw http.ResponseWriter, r *http.Request) {
	var body InferRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(rw, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.RequestID == "" {
		body.RequestID = uuid.NewString()
	}

	g.mu.Lock()
	g.totalRequests++
	g.mu.Unlock()

	resp, err := g.route(r.Context(), body)
	if err != nil {
		writeJSON(rw, g.errorStatus(err), InferResponse{
			RequestID: body.RequestID,
			Error:     err.Error(),
		})
		return
	}
	writeJSON(rw, http.StatusOK, resp)
}

// route picks the request's worker from the ring and forwards. With
// MaxRetries = 0 (the default) a key is tied to exactly one node and its
// failure is surfaced as-is. With MaxRetries = n the gateway walks up to n
// distinct successor nodes in ring order, recording each fallback attempt
// distinctly from first-attempt stats.
func (g *Gateway) route(ctx context.Context, body InferRequest) (*InferResponse, error) {
	candidates, err := g.ring.Successors(body.RequestID, 1+g.cfg.MaxRetries)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt, node := range candidates {
		resp, err := g.forward(ctx, node, body)
		g.record(node, attempt, err)
		if err == nil {
			if attempt > 0 {
				logrus.Infof("request %s served by fallback node %s (attempt %d)", body.RequestID, node, attempt)
			}
			return resp, nil
		}
		lastErr = err
		logrus.Warnf("request %s: attempt %d on %s failed: %v", body.RequestID, attempt, node, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// forward performs one HTTP call to a worker's /infer endpoint.
func (g *Gateway) forward(ctx context.Context, node string, body InferRequest) (*InferResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request %s: %w", body.RequestID, err)
	}
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, node+"/infer", bytes.NewReader(payload))
	if err != nil {
		return nil, &ForwardingError{NodeID: node, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := g.client.Do(req)
	if g.metrics != nil {
		g.metrics.ForwardDuration.WithLabelValues(node).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, &ForwardingError{NodeID: node, Timeout: isTimeout(err), Err: err}
	}
	defer httpResp.Body.Close()

	var resp InferResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, &ForwardingError{NodeID: node, Err: fmt.Errorf("decode response: %w", err)}
	}
	if httpResp.StatusCode != http.StatusOK {
		workerErr := resp.Error
		if workerErr == "" {
			workerErr = fmt.Sprintf("status %d", httpResp.StatusCode)
		}
		return nil, &ForwardingError{NodeID: node, Err: fmt.Errorf("worker error: %s", workerErr)}
	}
	return &resp, nil
}

// record updates per-node stats and Prometheus counters for one attempt.
func (g *Gateway) record(node string, attempt int, err error) {
	g.mu.Lock()
	ns, ok := g.stats[node]
	if !ok {
		ns = &NodeStats{}
		g.stats[node] = ns
	}
	ns.LastSeen = time.Now()
	if err != nil {
		ns.RequestsFailed++
	} else {
		ns.RequestsHandled++
		if attempt > 0 {
			ns.RetriesServed++
		}
	}
	g.mu.Unlock()

	if g.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	g.metrics.ForwardsTotal.WithLabelValues(node, outcome).Inc()
	if err == nil && attempt > 0 {
		g.metrics.RetriesTotal.WithLabelValues(node).Inc()
	}
}

// handleStats reports per-node counters and the load-balance CV.
func (g *Gateway) handleStats(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, http.StatusOK, g.Stats())
}

// Stats snapshots the gateway counters and computes the coefficient of
// variation of per-worker handled counts.
func (g *Gateway) Stats() GatewayStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	workers := make(map[string]NodeStats, len(g.stats))
	counts := make([]float64, 0, len(g.stats))
	for node, ns := range g.stats {
		workers[node] = *ns
		counts = append(counts, float64(ns.RequestsHandled))
	}

	cv := 0.0
	if mean := stat.Mean(counts, nil); len(counts) > 1 && mean > 0 {
		cv = stat.StdDev(counts, nil) / mean
	}
	return GatewayStats{
		TotalRequests: g.totalRequests,
		NumWorkers:    g.ring.Size(),
		Workers:       workers,
		LoadBalanceCV: cv,
	}
}

// errorStatus maps routing failures to HTTP status codes: empty ring is
// service-unavailable, forwarding timeouts are gateway-timeout, everything
// else from the worker side is bad-gateway.
func (g *Gateway) errorStatus(err error) int {
	var fwd *ForwardingError
	switch {
	case errors.Is(err, ErrEmptyRing):
		return http.StatusServiceUnavailable
	case errors.As(err, &fwd) && fwd.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// isTimeout classifies a transport error as a timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
