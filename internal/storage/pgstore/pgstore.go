// Package pgstore implements coordinator.WorkerStorage against Postgres,
// persisting each worker's last-committed watermark in a
// worker_commit_state table. It demonstrates the coordinator's storage
// interface against a real backing store the same way the teacher's
// services persist everything through pgxpool (apps/discovery-service,
// apps/cookie-scanner): no sqlc-generated querier exists for this new
// table, so it talks to pgxpool directly with plain SQL.
package pgstore

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arc-self/streamcodec/internal/coordinator"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS worker_commit_state (
	worker_id INT PRIMARY KEY,
	watermark BIGINT
)`

const upsertWatermarkSQL = `
INSERT INTO worker_commit_state (worker_id, watermark)
VALUES ($1, $2)
ON CONFLICT (worker_id) DO UPDATE SET watermark = excluded.watermark`

// EnsureSchema creates the worker_commit_state table if it doesn't
// already exist. Called once at worker startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, createTableSQL)
	return err
}

// WorkerCommitStore implements coordinator.WorkerStorage for a single
// worker. It keeps the per-sink finalized-time map in memory (spec
// §4.12 step 1) and only touches Postgres during the two-phase commit
// sweep the coordinator drives.
type WorkerCommitStore struct {
	pool     *pgxpool.Pool
	workerID int
	logger   *zap.Logger

	mu        sync.Mutex
	sinkTimes map[int]*uint64
}

func NewWorkerCommitStore(pool *pgxpool.Pool, workerID int, logger *zap.Logger) *WorkerCommitStore {
	return &WorkerCommitStore{
		pool:      pool,
		workerID:  workerID,
		logger:    logger,
		sinkTimes: make(map[int]*uint64),
	}
}

func (s *WorkerCommitStore) WorkerID() int { return s.workerID }

func (s *WorkerCommitStore) UpdateSinkFinalizedTime(sinkID int, reportedTimestamp *uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinkTimes[sinkID] = reportedTimestamp
}

// FinalizedTimeWithinWorker is the minimum over every sink that has
// reported a timestamp; a sink that never reported contributes nothing
// (spec §8 scenario 6).
func (s *WorkerCommitStore) FinalizedTimeWithinWorker() *uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var min *uint64
	for _, t := range s.sinkTimes {
		if t == nil {
			continue
		}
		if min == nil || *t < *min {
			min = t
		}
	}
	return min
}

// commitData is the in-flight transaction staging a worker's frontier
// commit. Prepare succeeds iff the staging write made it into an open
// transaction; a failure there (connection loss, constraint violation)
// is surfaced to the coordinator as Prepare()==false, and the
// coordinator skips committing this worker rather than retrying here.
type commitData struct {
	workerID  int
	watermark *uint64
	tx        pgx.Tx
}

func (c *commitData) Prepare() bool { return c.tx != nil }

// AcceptGloballyFinalizedTimestamp stages the new watermark inside an
// open transaction without committing it, the "prepare" half of the
// two-phase protocol.
func (s *WorkerCommitStore) AcceptGloballyFinalizedTimestamp(watermark *uint64) coordinator.CommitData {
	ctx := context.Background()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		s.logger.Error("failed to begin frontier commit transaction", zap.Int("worker_id", s.workerID), zap.Error(err))
		return &commitData{workerID: s.workerID, watermark: watermark}
	}

	var wm any
	if watermark != nil {
		wm = int64(*watermark)
	}
	if _, err := tx.Exec(ctx, upsertWatermarkSQL, s.workerID, wm); err != nil {
		s.logger.Error("failed to stage frontier commit", zap.Int("worker_id", s.workerID), zap.Error(err))
		_ = tx.Rollback(ctx)
		return &commitData{workerID: s.workerID, watermark: watermark}
	}

	return &commitData{workerID: s.workerID, watermark: watermark, tx: tx}
}

// CommitGloballyFinalizedTimestamp commits the transaction staged by
// AcceptGloballyFinalizedTimestamp. The coordinator only calls this
// after Prepare() returned true, so tx is never nil here.
func (s *WorkerCommitStore) CommitGloballyFinalizedTimestamp(data coordinator.CommitData) {
	cd, ok := data.(*commitData)
	if !ok || cd.tx == nil {
		return
	}
	ctx := context.Background()
	if err := cd.tx.Commit(ctx); err != nil {
		s.logger.Error("failed to commit frontier", zap.Int("worker_id", s.workerID), zap.Error(err))
	}
}
