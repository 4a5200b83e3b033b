// request.go
//
// Defines the InferenceRequest and InferenceResult types shared by the
// gateway, the worker nodes, and the bench client, plus the JSON wire
// contract spoken on POST /infer.

package gate

import (
	"fmt"
	"time"
)

// InferenceRequest models a single inference call travelling through the
// system. It is immutable after construction: the gateway (or a test client)
// creates it, the worker's BatchQueue carries it through exactly one batch,
// and it is discarded once its result has been delivered.
type InferenceRequest struct {
	ID          string    // Unique identifier, also the routing key
	Payload     []float64 // Opaque model input
	Shape       []int     // Declared input shape (informational, not validated)
	ArrivalTime time.Time // When the request entered the worker
}

// String returns a human-readable representation of the request.
func (r *InferenceRequest) String() string {
	return fmt.Sprintf("Request: (ID: %s, PayloadLen: %d, ArrivalTime: %s)",
		r.ID, len(r.Payload), r.ArrivalTime.Format(time.RFC3339Nano))
}

// InferenceResult pairs a request with its output or its failure. Exactly one
// result is produced per request and delivered to the original caller.
type InferenceResult struct {
	RequestID string    // ID of the request this result belongs to
	Output    []float64 // Engine output, nil when Err is set
	WorkerID  string    // Node that executed the request's batch
	LatencyMs float64   // Arrival-to-resolution latency at the worker
	Err       error     // Batch-wide failure, nil on success
}

// InferRequest is the JSON body accepted by POST /infer on both the gateway
// and the workers.
type InferRequest struct {
	RequestID  string    `json:"request_id"`
	InputData  []float64 `json:"input_data"`
	InputShape []int     `json:"input_shape,omitempty"`
	Timestamp  int64     `json:"timestamp,omitempty"` // client send time, microseconds since epoch
}

// InferResponse is the JSON body returned by POST /infer.
type InferResponse struct {
	RequestID       string    `json:"request_id"`
	OutputData      []float64 `json:"output_data,omitempty"`
	OutputShape     []int     `json:"output_shape,omitempty"`
	InferenceTimeUs int64     `json:"inference_time_us"`
	NodeID          string    `json:"node_id"`
	Error           string    `json:"error,omitempty"`
}
