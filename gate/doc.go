// Package gate provides the core building blocks of the inference gateway:
// consistent-hash routing across worker nodes and dynamic request batching
// inside each worker.
//
// # Reading Guide
//
// Start with these three files to understand the serving pipeline:
//   - request.go: InferenceRequest/InferenceResult and the JSON wire contract
//   - batch_queue.go: the dynamic batcher (size-or-deadline close, result fan-out)
//   - gateway.go: key-based routing, forwarding, and per-node statistics
//
// # Architecture
//
// A Gateway fronts a fixed set of WorkerNodes. Each incoming request is
// hashed onto a HashRing (150 virtual nodes per worker) to pick its worker,
// then forwarded over HTTP. Inside the worker, a BatchQueue aggregates
// concurrently arriving requests into batches bounded by size and age, hands
// each closed batch to a ComputeEngine exactly once, and resolves every
// caller with its own result.
//
// # Key Interfaces
//
//   - ComputeEngine: executes one closed batch, order-preserving, batch-wide failure
//
// The bench sub-package contains the load-generation client used to exercise
// a running gateway.
package gate
