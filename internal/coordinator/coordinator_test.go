package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeCommitData records whether Prepare was asked to fail for this
// particular commit.
type fakeCommitData struct{ ok bool }

func (f fakeCommitData) Prepare() bool { return f.ok }

// fakeWorker is an in-memory WorkerStorage double: no Postgres, just the
// per-sink map and a counter of completed commits.
type fakeWorker struct {
	id          int
	sinkTimes   map[int]*uint64
	prepareOK   bool
	commitCount int
}

func newFakeWorker(id int) *fakeWorker {
	return &fakeWorker{id: id, sinkTimes: make(map[int]*uint64), prepareOK: true}
}

func (w *fakeWorker) WorkerID() int { return w.id }

func (w *fakeWorker) UpdateSinkFinalizedTime(sinkID int, reportedTimestamp *uint64) {
	w.sinkTimes[sinkID] = reportedTimestamp
}

func (w *fakeWorker) FinalizedTimeWithinWorker() *uint64 {
	var min *uint64
	for _, t := range w.sinkTimes {
		if t == nil {
			continue
		}
		if min == nil || *t < *min {
			min = t
		}
	}
	return min
}

func (w *fakeWorker) AcceptGloballyFinalizedTimestamp(*uint64) CommitData {
	return fakeCommitData{ok: w.prepareOK}
}

func (w *fakeWorker) CommitGloballyFinalizedTimestamp(CommitData) {
	w.commitCount++
}

func u64(v uint64) *uint64 { return &v }

// TestAcceptFinalizedTimestamp_TwoWorkerWatermark walks the scenario
// from the commit protocol's design doc: the global watermark is the
// minimum across workers of each worker's minimum reported sink time,
// and only moves (triggering a commit sweep) when that minimum changes.
func TestAcceptFinalizedTimestamp_TwoWorkerWatermark(t *testing.T) {
	logger := zaptest.NewLogger(t)
	c := New(logger)

	w0 := newFakeWorker(0)
	w1 := newFakeWorker(1)
	c.RegisterWorker(w1) // registered out of order on purpose
	c.RegisterWorker(w0)

	require.NoError(t, c.AcceptFinalizedTimestamp(0, 0, u64(10)))
	require.NoError(t, c.AcceptFinalizedTimestamp(0, 1, u64(15)))
	require.NoError(t, c.AcceptFinalizedTimestamp(1, 0, u64(12)))

	assert.Equal(t, uint64(10), *c.GlobalClosedTimestamp())
	assert.Equal(t, 1, w0.commitCount)
	assert.Equal(t, 1, w1.commitCount)

	require.NoError(t, c.AcceptFinalizedTimestamp(0, 0, u64(20)))

	assert.Equal(t, uint64(12), *c.GlobalClosedTimestamp())
	assert.Equal(t, 2, w0.commitCount)
	assert.Equal(t, 2, w1.commitCount)
}

func TestAcceptFinalizedTimestamp_UnchangedWatermarkSkipsCommit(t *testing.T) {
	logger := zaptest.NewLogger(t)
	c := New(logger)
	w0 := newFakeWorker(0)
	c.RegisterWorker(w0)

	require.NoError(t, c.AcceptFinalizedTimestamp(0, 0, u64(5)))
	assert.Equal(t, 1, w0.commitCount)

	// Same sink reporting the same timestamp again: watermark unchanged.
	require.NoError(t, c.AcceptFinalizedTimestamp(0, 0, u64(5)))
	assert.Equal(t, 1, w0.commitCount)
}

func TestAcceptFinalizedTimestamp_PrepareFailureIsReportedNotFatal(t *testing.T) {
	logger := zaptest.NewLogger(t)
	c := New(logger)

	w0 := newFakeWorker(0)
	w1 := newFakeWorker(1)
	w0.prepareOK = false
	c.RegisterWorker(w0)
	c.RegisterWorker(w1)

	err := c.AcceptFinalizedTimestamp(0, 0, u64(1))
	assert.Error(t, err)
	assert.Equal(t, 0, w0.commitCount, "worker whose Prepare failed must not be committed")
	assert.Equal(t, 1, w1.commitCount, "a healthy worker still commits despite a sibling's Prepare failure")
}

func TestAcceptFinalizedTimestamp_UnknownWorkerID(t *testing.T) {
	c := New(zaptest.NewLogger(t))
	err := c.AcceptFinalizedTimestamp(3, 0, u64(1))
	assert.Error(t, err)
}
