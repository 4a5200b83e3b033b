// batch_queue.go
//
// Implements the per-worker dynamic batcher. Concurrently arriving requests
// are aggregated into batches bounded by size and age, each closed batch is
// handed to the compute engine exactly once, and results are fanned back out
// to the original callers in request order.

package gate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// pendingCall couples a submitted request with the channel its caller waits
// on. The channel is buffered so resolution never blocks on a caller that has
// abandoned its wait.
type pendingCall struct {
	req  *InferenceRequest
	resp chan InferenceResult
}

// QueueMetrics aggregates batching statistics for the stats surface.
type QueueMetrics struct {
	TotalRequests  int64   `json:"total_requests"`
	TotalBatches   int64   `json:"total_batches"`
	FullBatches    int64   `json:"full_batches"`    // closed by reaching MaxBatchSize
	TimeoutBatches int64   `json:"timeout_batches"` // closed by the deadline timer
	AvgBatchSize   float64 `json:"avg_batch_size"`
}

// BatchQueue accumulates requests into batches under a size-or-deadline
// policy. All mutable batch state is owned by a single collector goroutine
// fed through a submission channel, so the timer-versus-size race and the
// pending-batch swap need no locks: a batch is never closed twice and a
// request never joins two batches.
type BatchQueue struct {
	workerID     string
	maxBatchSize int
	timeout      time.Duration
	engine       ComputeEngine

	submitCh chan pendingCall
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	execWG   sync.WaitGroup

	pendingDepth atomic.Int64 // requests in the open batch
	inFlight     atomic.Int64 // requests in batches being executed

	mu      sync.Mutex
	metrics QueueMetrics
}

// NewBatchQueue creates a batch queue for one worker and starts its collector
// goroutine. maxBatchSize and timeout fall back to the package defaults when
// non-positive. The queue must be released with Stop.
func NewBatchQueue(workerID string, policy BatchPolicy, engine ComputeEngine) *BatchQueue {
	maxSize := policy.MaxBatchSize
	if maxSize <= 0 {
		maxSize = DefaultMaxBatchSize
	}
	timeout := policy.Timeout()
	if timeout <= 0 {
		timeout = DefaultBatchTimeout
	}
	bq := &BatchQueue{
		workerID:     workerID,
		maxBatchSize: maxSize,
		timeout:      timeout,
		engine:       engine,
		submitCh:     make(chan pendingCall),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	go bq.collect()
	return bq
}

// Submit appends the request to the current pending batch and blocks until
// its result is available or ctx is done. Caller cancellation abandons only
// the wait: the request stays in its batch so batch-mates are not starved,
// and the collector resolves into the buffered response channel.
func (bq *BatchQueue) Submit(ctx context.Context, req *InferenceRequest) (InferenceResult, error) {
	call := pendingCall{req: req, resp: make(chan InferenceResult, 1)}

	select {
	case bq.submitCh <- call:
	case <-bq.stopCh:
		return InferenceResult{}, ErrQueueClosed
	case <-ctx.Done():
		return InferenceResult{}, ctx.Err()
	}

	select {
	case res := <-call.resp:
		if res.Err != nil {
			return res, res.Err
		}
		return res, nil
	case <-ctx.Done():
		return InferenceResult{}, ctx.Err()
	}
}

// Stop closes the intake, flushes any pending batch, and waits for in-flight
// executions to finish. Safe to call more than once.
func (bq *BatchQueue) Stop() {
	bq.stopOnce.Do(func() {
		close(bq.stopCh)
	})
	<-bq.doneCh
	bq.execWG.Wait()
}

// Depth returns the number of unresolved requests in the queue: the open
// batch plus batches currently executing.
func (bq *BatchQueue) Depth() int {
	return int(bq.pendingDepth.Load() + bq.inFlight.Load())
}

// Metrics returns a copy of the batching counters.
func (bq *BatchQueue) Metrics() QueueMetrics {
	bq.mu.Lock()
	defer bq.mu.Unlock()
	return bq.metrics
}

// collect is the single goroutine that owns the pending batch. It appends
// incoming requests, closes the batch when it reaches maxBatchSize or when
// the deadline timer fires, and swaps in a fresh batch so new submissions are
// never blocked by in-flight execution.
func (bq *BatchQueue) collect() {
	defer close(bq.doneCh)

	var (
		nextBatchID int64
		pending     *Batch
		calls       []pendingCall
		timer       *time.Timer
		deadline    <-chan time.Time
	)

	closeBatch := func(byDeadline bool) {
		if timer != nil {
			timer.Stop()
			timer = nil
			deadline = nil
		}
		pending.ClosedAt = time.Now()
		batch, batchCalls := pending, calls
		pending, calls = nil, nil
		bq.pendingDepth.Store(0)
		bq.inFlight.Add(int64(batch.Size()))
		bq.recordClose(batch.Size(), byDeadline)
		logrus.Debugf("worker %s: batch %d closed (size=%d, deadline=%v, age=%s)",
			bq.workerID, batch.ID, batch.Size(), byDeadline, batch.ClosedAt.Sub(batch.CreatedAt))

		bq.execWG.Add(1)
		go bq.execute(batch, batchCalls)
	}

	for {
		select {
		case call := <-bq.submitCh:
			if pending == nil {
				pending = &Batch{ID: nextBatchID, CreatedAt: time.Now()}
				nextBatchID++
				timer = time.NewTimer(bq.timeout)
				deadline = timer.C
			}
			pending.Requests = append(pending.Requests, call.req)
			calls = append(calls, call)
			bq.pendingDepth.Store(int64(pending.Size()))
			bq.mu.Lock()
			bq.metrics.TotalRequests++
			bq.mu.Unlock()
			if pending.Size() >= bq.maxBatchSize {
				closeBatch(false)
			}

		case <-deadline:
			// The timer only runs while a non-empty batch is pending, and
			// closeBatch stops it, so a fire here always closes a batch.
			closeBatch(true)

		case <-bq.stopCh:
			if pending != nil {
				closeBatch(true)
			}
			return
		}
	}
}

// execute runs one closed batch through the engine and resolves every caller.
// An engine error (or an output count that does not match the batch) resolves
// all requests with the same BatchExecutionError; the batch is not retried.
func (bq *BatchQueue) execute(batch *Batch, calls []pendingCall) {
	defer bq.execWG.Done()
	defer bq.inFlight.Add(-int64(batch.Size()))

	outputs, err := bq.engine.Execute(context.Background(), batch)
	if err == nil && len(outputs) != batch.Size() {
		err = &ComputeError{Reason: fmt.Sprintf("engine returned %d outputs for %d requests", len(outputs), batch.Size())}
	}
	if err != nil {
		batchErr := &BatchExecutionError{BatchID: batch.ID, Size: batch.Size(), Err: err}
		logrus.Warnf("worker %s: %v", bq.workerID, batchErr)
		for _, call := range calls {
			call.resp <- InferenceResult{
				RequestID: call.req.ID,
				WorkerID:  bq.workerID,
				LatencyMs: msSince(call.req.ArrivalTime),
				Err:       batchErr,
			}
		}
		return
	}

	for i, call := range calls {
		call.resp <- InferenceResult{
			RequestID: call.req.ID,
			Output:    outputs[i],
			WorkerID:  bq.workerID,
			LatencyMs: msSince(call.req.ArrivalTime),
		}
	}
}

// recordClose updates the batch counters after a close.
func (bq *BatchQueue) recordClose(size int, byDeadline bool) {
	bq.mu.Lock()
	defer bq.mu.Unlock()
	prevTotal := bq.metrics.AvgBatchSize * float64(bq.metrics.TotalBatches)
	bq.metrics.TotalBatches++
	bq.metrics.AvgBatchSize = (prevTotal + float64(size)) / float64(bq.metrics.TotalBatches)
	if byDeadline {
		bq.metrics.TimeoutBatches++
	} else {
		bq.metrics.FullBatches++
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
