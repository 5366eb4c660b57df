// Package coordinator implements the commit coordinator (spec §4.12,
// §5): a shared, mutex-protected object that advances a global
// watermark from per-worker sink-finalized-time reports and drives a
// two-phase prepare/commit sweep across every worker's storage handle
// whenever that watermark moves.
package coordinator

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// WorkerStorage is the per-worker persistence handle the coordinator
// drives (spec §6). Implementations are not expected to be safe for
// concurrent use from outside the coordinator's own lock.
type WorkerStorage interface {
	WorkerID() int
	UpdateSinkFinalizedTime(sinkID int, reportedTimestamp *uint64)
	FinalizedTimeWithinWorker() *uint64
	AcceptGloballyFinalizedTimestamp(watermark *uint64) CommitData
	CommitGloballyFinalizedTimestamp(data CommitData)
}

// CommitData is the in-flight frontier commit a worker is readying.
// Prepare is attempted for every worker before any of them actually
// commits; a worker whose Prepare fails is skipped, not retried.
type CommitData interface {
	Prepare() bool
}

// Coordinator owns an ordered-by-worker-id roster of WorkerStorage
// handles and the last watermark it committed. Safe for concurrent use;
// every method acquires the coordinator's own lock for its duration.
type Coordinator struct {
	mu            sync.Mutex
	workers       []WorkerStorage
	lastWatermark *uint64
	logger        *zap.Logger
}

// New returns a Coordinator with no workers registered and
// lastWatermark seeded to Some(0), matching the original's behavior: a
// first report of watermark 0 is a no-op, not a spurious commit (spec
// §9 design note).
func New(logger *zap.Logger) *Coordinator {
	zero := uint64(0)
	return &Coordinator{lastWatermark: &zero, logger: logger}
}

// RegisterWorker records a worker's storage handle, keeping the roster
// sorted by worker ID via insertion sort (ported from
// WorkersPersistenceCoordinator::register_worker) so that position in
// the slice need not track worker ID separately.
func (c *Coordinator) RegisterWorker(w WorkerStorage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.workers = append(c.workers, w)
	i := len(c.workers) - 1
	for i > 0 && c.workers[i].WorkerID() < c.workers[i-1].WorkerID() {
		c.workers[i], c.workers[i-1] = c.workers[i-1], c.workers[i]
		i--
	}
}

// globalClosedTimestamp computes the watermark: the minimum finalized
// time across every worker that has reported one. A worker that has
// reported nothing contributes nothing; if none has, the watermark is
// nil. Caller must hold c.mu.
func (c *Coordinator) globalClosedTimestamp() *uint64 {
	var min *uint64
	for _, w := range c.workers {
		t := w.FinalizedTimeWithinWorker()
		if t == nil {
			continue
		}
		if min == nil || *t < *min {
			min = t
		}
	}
	return min
}

// AcceptFinalizedTimestamp implements the protocol of spec §4.12 steps
// 1-3: update the named worker's sink-time entry, recompute the
// watermark, and — only if it moved — run the prepare/commit sweep
// across every registered worker. Prepare failures are logged and
// collected into the returned error with multierr rather than aborting
// the sweep; a nil return means either nothing moved or everything
// committed cleanly.
func (c *Coordinator) AcceptFinalizedTimestamp(workerID, sinkID int, reportedTimestamp *uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if workerID < 0 || workerID >= len(c.workers) {
		return fmt.Errorf("coordinator: no worker registered with id %d", workerID)
	}
	c.workers[workerID].UpdateSinkFinalizedTime(sinkID, reportedTimestamp)

	watermark := c.globalClosedTimestamp()
	if optionalUint64Equal(watermark, c.lastWatermark) {
		return nil
	}
	c.lastWatermark = watermark

	commitData := make([]CommitData, len(c.workers))
	for i, w := range c.workers {
		commitData[i] = w.AcceptGloballyFinalizedTimestamp(watermark)
	}

	var errs error
	for i, w := range c.workers {
		if !commitData[i].Prepare() {
			c.logger.Error("failed to prepare frontier commit", zap.Int("worker_id", w.WorkerID()))
			errs = multierr.Append(errs, fmt.Errorf("worker %d: prepare failed for frontier commit", w.WorkerID()))
			continue
		}
		w.CommitGloballyFinalizedTimestamp(commitData[i])
	}
	return errs
}

// GlobalClosedTimestamp exposes the current watermark for observability
// (metrics, health checks) without mutating coordinator state.
func (c *Coordinator) GlobalClosedTimestamp() *uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.globalClosedTimestamp()
}

func optionalUint64Equal(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
