// report.go
//
// Aggregates bench samples into throughput, latency percentiles, and the
// per-node request distribution used to eyeball ring fairness.

package bench

import (
	"fmt"
	"io"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Report is the aggregated outcome of one bench run.
type Report struct {
	Total       int
	Errors      int
	Duration    time.Duration
	LatenciesMs []float64      // successful requests only, unsorted
	NodeCounts  map[string]int // responses per worker node ID
}

// buildReport folds per-request samples into a Report.
func buildReport(samples []sample, duration time.Duration) *Report {
	rep := &Report{
		Total:      len(samples),
		Duration:   duration,
		NodeCounts: make(map[string]int),
	}
	for _, s := range samples {
		if s.err != nil {
			rep.Errors++
			continue
		}
		rep.LatenciesMs = append(rep.LatenciesMs, s.latencyMs)
		rep.NodeCounts[s.nodeID]++
	}
	return rep
}

// Throughput returns successful requests per second.
func (r *Report) Throughput() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Total-r.Errors) / r.Duration.Seconds()
}

// LatencyQuantile returns the q-th latency quantile in milliseconds
// (q in [0,1]). 0 when no request succeeded.
func (r *Report) LatencyQuantile(q float64) float64 {
	if len(r.LatenciesMs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), r.LatenciesMs...)
	sort.Float64s(sorted)
	return stat.Quantile(q, stat.Empirical, sorted, nil)
}

// MeanLatency returns the mean latency of successful requests in ms.
func (r *Report) MeanLatency() float64 {
	if len(r.LatenciesMs) == 0 {
		return 0
	}
	return stat.Mean(r.LatenciesMs, nil)
}

// NodeCV returns the coefficient of variation of the per-node response
// counts. 0 when fewer than two nodes responded.
func (r *Report) NodeCV() float64 {
	if len(r.NodeCounts) < 2 {
		return 0
	}
	counts := make([]float64, 0, len(r.NodeCounts))
	for _, c := range r.NodeCounts {
		counts = append(counts, float64(c))
	}
	mean := stat.Mean(counts, nil)
	if mean == 0 {
		return 0
	}
	return stat.StdDev(counts, nil) / mean
}

// Print writes the human-readable run summary.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Bench Report ===")
	fmt.Fprintf(w, "Requests         : %d (%d failed)\n", r.Total, r.Errors)
	fmt.Fprintf(w, "Duration         : %.2fs\n", r.Duration.Seconds())
	fmt.Fprintf(w, "Throughput       : %.2f req/s\n", r.Throughput())
	if len(r.LatenciesMs) > 0 {
		fmt.Fprintf(w, "Latency mean     : %.2f ms\n", r.MeanLatency())
		fmt.Fprintf(w, "Latency p50      : %.2f ms\n", r.LatencyQuantile(0.50))
		fmt.Fprintf(w, "Latency p95      : %.2f ms\n", r.LatencyQuantile(0.95))
		fmt.Fprintf(w, "Latency p99      : %.2f ms\n", r.LatencyQuantile(0.99))
	}
	if len(r.NodeCounts) > 0 {
		fmt.Fprintln(w, "Per-node distribution:")
		nodes := make([]string, 0, len(r.NodeCounts))
		for node := range r.NodeCounts {
			nodes = append(nodes, node)
		}
		sort.Strings(nodes)
		succeeded := r.Total - r.Errors
		for _, node := range nodes {
			count := r.NodeCounts[node]
			fmt.Fprintf(w, "  %s: %d (%.2f%%)\n", node, count, 100*float64(count)/float64(succeeded))
		}
		fmt.Fprintf(w, "Load-balance CV  : %.2f%%\n", 100*r.NodeCV())
	}
}
