// batch.go
//
// Defines the Batch struct which represents a group of requests handed to the
// compute engine in a single execution.

package gate

import "time"

// Batch represents a group of requests executed together. It is owned
// exclusively by one worker's BatchQueue from creation until it is handed to
// the ComputeEngine; afterwards it is discarded and its requests are resolved
// individually. Request order is append order and must be preserved by the
// engine's output.
type Batch struct {
	ID        int64               // Monotonic per-queue batch identifier
	Requests  []*InferenceRequest // Requests in append order
	CreatedAt time.Time           // When the first request was appended
	ClosedAt  time.Time           // When the batch was closed (zero while open)
}

// Size returns the number of requests in the batch.
func (b *Batch) Size() int {
	return len(b.Requests)
}
