package bench

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSet() []sample {
	return []sample{
		{latencyMs: 10, nodeID: "node-a"},
		{latencyMs: 20, nodeID: "node-a"},
		{latencyMs: 30, nodeID: "node-b"},
		{latencyMs: 40, nodeID: "node-b"},
		{err: errors.New("status 502: worker error")},
	}
}

func TestBuildReport_SeparatesErrorsFromLatencies(t *testing.T) {
	rep := buildReport(sampleSet(), 2*time.Second)

	assert.Equal(t, 5, rep.Total)
	assert.Equal(t, 1, rep.Errors)
	assert.Len(t, rep.LatenciesMs, 4)
	assert.Equal(t, map[string]int{"node-a": 2, "node-b": 2}, rep.NodeCounts)
	assert.InDelta(t, 2.0, rep.Throughput(), 1e-9) // 4 successes over 2s
}

func TestReport_LatencyQuantiles(t *testing.T) {
	rep := buildReport(sampleSet(), time.Second)

	assert.InDelta(t, 25.0, rep.MeanLatency(), 1e-9)
	p50 := rep.LatencyQuantile(0.50)
	assert.GreaterOrEqual(t, p50, 10.0)
	assert.LessOrEqual(t, p50, 30.0)
	assert.Equal(t, 40.0, rep.LatencyQuantile(1.0))
}

func TestReport_EmptyRun_ReturnsZeros(t *testing.T) {
	rep := buildReport(nil, 0)

	assert.Equal(t, 0.0, rep.Throughput())
	assert.Equal(t, 0.0, rep.MeanLatency())
	assert.Equal(t, 0.0, rep.LatencyQuantile(0.95))
	assert.Equal(t, 0.0, rep.NodeCV())
}

func TestReport_NodeCV_BalancedIsZero(t *testing.T) {
	rep := buildReport([]sample{
		{latencyMs: 1, nodeID: "a"},
		{latencyMs: 1, nodeID: "b"},
	}, time.Second)
	assert.Equal(t, 0.0, rep.NodeCV())

	// Single node is defined as zero, not NaN
	rep = buildReport([]sample{{latencyMs: 1, nodeID: "only"}}, time.Second)
	assert.Equal(t, 0.0, rep.NodeCV())
}

func TestReport_NodeCV_SkewIsPositive(t *testing.T) {
	samples := make([]sample, 0, 10)
	for i := 0; i < 9; i++ {
		samples = append(samples, sample{latencyMs: 1, nodeID: "hot"})
	}
	samples = append(samples, sample{latencyMs: 1, nodeID: "cold"})

	rep := buildReport(samples, time.Second)
	assert.Greater(t, rep.NodeCV(), 0.5)
}

func TestReport_Print_IncludesDistribution(t *testing.T) {
	rep := buildReport(sampleSet(), time.Second)

	var buf bytes.Buffer
	rep.Print(&buf)
	out := buf.String()

	require.Contains(t, out, "Requests         : 5 (1 failed)")
	assert.Contains(t, out, "Latency p95")
	assert.Contains(t, out, "node-a: 2")
	assert.Contains(t, out, "node-b: 2")
	assert.Contains(t, out, "Load-balance CV")
}
