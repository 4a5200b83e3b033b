// engine.go
//
// Defines the ComputeEngine interface consumed by the BatchQueue and a
// simulated implementation with a declared latency profile. The simulated
// engine stands in for real model execution: it costs wall-clock time
// proportional to batch size and produces a deterministic transform of each
// input so result pairing can be verified end to end.

package gate

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"
)

// ComputeEngine executes one closed batch. Implementations must return
// exactly one output per request, in batch request order, or fail the whole
// batch; partial results do not exist. Execute is invoked at most once per
// batch and may take a variable, data-dependent amount of time.
type ComputeEngine interface {
	Execute(ctx context.Context, batch *Batch) ([][]float64, error)
}

// EngineProfile declares the latency and failure behavior of a
// SimulatedEngine. Execution time for a batch of size n is
// Base + PerItem*n, scaled by a uniform jitter in [1-Jitter, 1+Jitter].
type EngineProfile struct {
	Base        time.Duration // fixed per-batch cost (weight load, kernel launch)
	PerItem     time.Duration // marginal cost per batched request
	Jitter      float64       // relative jitter bound, 0 disables
	FailureRate float64       // probability a batch fails, 0 disables
	OutputSize  int           // output vector length per request
}

// DefaultEngineProfile returns the profile used by the worker command when no
// overrides are given: a few ms per batch, sublinear growth with batch size.
func DefaultEngineProfile() EngineProfile {
	return EngineProfile{
		Base:       4 * time.Millisecond,
		PerItem:    250 * time.Microsecond,
		Jitter:     0.1,
		OutputSize: 8,
	}
}

// SimulatedEngine is a ComputeEngine with declared, reproducible behavior.
// Randomness (jitter, fault injection) comes from a single seeded source, so
// two engines built with the same profile and seed behave identically.
type SimulatedEngine struct {
	profile EngineProfile

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedEngine creates a simulated engine from a profile and a seed.
func NewSimulatedEngine(profile EngineProfile, seed int64) *SimulatedEngine {
	if profile.OutputSize <= 0 {
		profile.OutputSize = 8
	}
	return &SimulatedEngine{
		profile: profile,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// DeriveSeed maps a master seed and a subsystem name to a per-subsystem seed,
// so every worker gets an independent but reproducible random stream.
func DeriveSeed(master int64, name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return master ^ int64(h.Sum64())
}

// Execute costs wall-clock time per the profile and returns one output per
// request in batch order. A fault-injected failure is batch-wide.
func (e *SimulatedEngine) Execute(ctx context.Context, batch *Batch) ([][]float64, error) {
	e.mu.Lock()
	fail := e.profile.FailureRate > 0 && e.rng.Float64() < e.profile.FailureRate
	scale := 1.0
	if e.profile.Jitter > 0 {
		scale = 1.0 + e.profile.Jitter*(2*e.rng.Float64()-1)
	}
	e.mu.Unlock()

	d := time.Duration(float64(e.profile.Base+time.Duration(batch.Size())*e.profile.PerItem) * scale)
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, &ComputeError{Reason: ctx.Err().Error()}
		}
	}
	if fail {
		return nil, &ComputeError{Reason: "injected batch failure"}
	}

	outputs := make([][]float64, batch.Size())
	for i, req := range batch.Requests {
		outputs[i] = simulatedOutput(req.Payload, e.profile.OutputSize)
	}
	return outputs, nil
}

// simulatedOutput is a deterministic pure function of the payload: a payload
// checksum folded into each output slot. Distinct payloads yield distinct
// outputs, which is what the result-integrity tests rely on.
func simulatedOutput(payload []float64, size int) []float64 {
	var sum float64
	for _, v := range payload {
		sum += v
	}
	out := make([]float64, size)
	for j := range out {
		out[j] = math.Abs(sum + float64(j))
	}
	return out
}
