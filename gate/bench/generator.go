// generator.go
//
// Synthetic request generation for the load generator: random payloads of a
// configured size with unique request IDs, reproducible from a seed.

package bench

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/inference-gate/inference-gate/gate"
)

// generator produces InferRequest bodies. Not safe for concurrent use; the
// runner calls Next from its single dispatch loop.
type generator struct {
	rng         *rand.Rand
	payloadSize int
}

func newGenerator(seed int64, payloadSize int) *generator {
	return &generator{
		rng:         rand.New(rand.NewSource(seed)),
		payloadSize: payloadSize,
	}
}

// Next builds one request body with a fresh unique ID, so consistent hashing
// spreads the run across the ring.
func (g *generator) Next() gate.InferRequest {
	payload := make([]float64, g.payloadSize)
	for i := range payload {
		payload[i] = g.rng.Float64()
	}
	return gate.InferRequest{
		RequestID:  "req_" + uuid.NewString(),
		InputData:  payload,
		InputShape: []int{1, g.payloadSize},
		Timestamp:  time.Now().UnixMicro(),
	}
}
