// errors.go
//
// Error taxonomy for routing, membership, and batch execution failures.
// Failures are resolved at the most local point that has enough context:
// workers resolve batch-wide compute failures themselves, only routing and
// network failures propagate to the gateway.

package gate

import (
	"errors"
	"fmt"
)

// ErrEmptyRing is returned by HashRing.Lookup when no physical nodes are
// registered. Fatal for routing; the gateway surfaces it as 503.
var ErrEmptyRing = errors.New("hash ring is empty")

// ErrQueueClosed is returned by BatchQueue.Submit after Stop has been called.
var ErrQueueClosed = errors.New("batch queue is closed")

// DuplicateNodeError reports an AddNode call for a physical node that is
// already on the ring.
type DuplicateNodeError struct {
	NodeID string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("node %q is already on the ring", e.NodeID)
}

// UnknownNodeError reports a RemoveNode call for a physical node that is not
// on the ring.
type UnknownNodeError struct {
	NodeID string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("node %q is not on the ring", e.NodeID)
}

// ComputeError reports a failure inside the compute engine. The failure is
// batch-wide: the engine produces no partial per-request results.
type ComputeError struct {
	Reason string
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("compute engine failure: %s", e.Reason)
}

// BatchExecutionError resolves every request of a failed batch. The worker
// does not retry the batch; retry, if any, is the caller's responsibility.
type BatchExecutionError struct {
	BatchID int64
	Size    int
	Err     error
}

func (e *BatchExecutionError) Error() string {
	return fmt.Sprintf("batch %d (%d requests) failed: %v", e.BatchID, e.Size, e.Err)
}

func (e *BatchExecutionError) Unwrap() error {
	return e.Err
}
