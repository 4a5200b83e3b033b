// runner.go
//
// Drives a configurable load of inference requests against a running gateway
// (or a single worker) and collects per-request samples for the report.

package bench

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/inference-gate/inference-gate/gate"
)

// Options configures one bench run.
type Options struct {
	TargetURL   string        // base URL of the gateway or worker under test
	Requests    int           // total requests to send
	Concurrency int           // in-flight request cap
	PayloadSize int           // floats per request payload
	Seed        int64         // payload generation seed
	CallTimeout time.Duration // per-request HTTP budget
}

// applyDefaults fills zero-valued options.
func (o *Options) applyDefaults() {
	if o.Requests <= 0 {
		o.Requests = 150
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 50
	}
	if o.PayloadSize <= 0 {
		o.PayloadSize = 128
	}
	if o.Seed == 0 {
		o.Seed = 42
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 10 * time.Second
	}
}

// sample is the outcome of one request.
type sample struct {
	latencyMs float64
	nodeID    string
	err       error
}

// Runner sends Options.Requests requests with bounded concurrency.
type Runner struct {
	opts   Options
	client *http.Client
}

// NewRunner builds a runner; zero-valued options get defaults.
func NewRunner(opts Options) *Runner {
	opts.applyDefaults()
	return &Runner{
		opts:   opts,
		client: &http.Client{Timeout: opts.CallTimeout},
	}
}

// Run executes the load and returns the aggregated report. Request bodies are
// generated in the dispatch loop; sends fan out through an errgroup bounded
// by Concurrency.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if r.opts.TargetURL == "" {
		return nil, fmt.Errorf("bench: target URL required")
	}
	logrus.Infof("bench: %d requests, concurrency %d, target %s",
		r.opts.Requests, r.opts.Concurrency, r.opts.TargetURL)

	gen := newGenerator(r.opts.Seed, r.opts.PayloadSize)
	samples := make([]sample, r.opts.Requests)

	start := time.Now()
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(r.opts.Concurrency)
	for i := 0; i < r.opts.Requests; i++ {
		body := gen.Next()
		grp.Go(func() error {
			samples[i] = r.send(gctx, body)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return buildReport(samples, time.Since(start)), nil
}

// send performs one POST /infer call and records its outcome.
func (r *Runner) send(ctx context.Context, body gate.InferRequest) sample {
	payload, err := json.Marshal(body)
	if err != nil {
		return sample{err: err}
	}
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.TargetURL+"/infer", bytes.NewReader(payload))
	if err != nil {
		return sample{err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := r.client.Do(req)
	if err != nil {
		return sample{err: err}
	}
	defer httpResp.Body.Close()

	var resp gate.InferResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return sample{err: fmt.Errorf("decode response: %w", err)}
	}
	if httpResp.StatusCode != http.StatusOK {
		return sample{nodeID: resp.NodeID, err: fmt.Errorf("status %d: %s", httpResp.StatusCode, resp.Error)}
	}
	return sample{
		latencyMs: float64(time.Since(start).Microseconds()) / 1000.0,
		nodeID:    resp.NodeID,
	}
}
