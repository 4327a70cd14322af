package crawler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/castpipe/castpipe/internal/metrics"
	"github.com/castpipe/castpipe/internal/task"
)

// ErrInserterClosed is returned by Submit after Finish has been called.
var ErrInserterClosed = errors.New("batch inserter is closed")

// FlushFunc persists one batch of parsed tasks. It is expected to be
// transactional: either the whole batch lands or none of it does.
type FlushFunc func(ctx context.Context, batch []*task.Task) error

// BatchInserter absorbs completed tasks one at a time, groups them into
// batches, and flushes each batch with bounded parallelism. The worker opens
// a task's inserting stage; the inserter completes or fails it once the
// batch flush resolves, writing the outcome back to the registry.
type BatchInserter struct {
	in      chan *task.Task
	flushFn FlushFunc
	maps    *TaskWorkerMaps

	batchSize    int
	batchTimeout time.Duration
	recvTimeout  time.Duration

	sem            *semaphore.Weighted
	activeFlushers atomic.Int64
	flushCount     atomic.Int64
	flushWG        sync.WaitGroup

	subMu  sync.RWMutex
	closed bool
	done   chan struct{}
}

// InserterConfig holds the batching knobs.
type InserterConfig struct {
	BatchSize            int
	BatchTimeout         time.Duration
	MaxConcurrentFlushes int
	ChannelCapacity      int
	RecvTimeout          time.Duration
}

// NewBatchInserter creates an inserter flushing through flushFn.
func NewBatchInserter(cfg InserterConfig, maps *TaskWorkerMaps, flushFn FlushFunc) *BatchInserter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 5 * time.Second
	}
	if cfg.MaxConcurrentFlushes <= 0 {
		cfg.MaxConcurrentFlushes = 4
	}
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = 5000
	}
	if cfg.RecvTimeout <= 0 {
		cfg.RecvTimeout = 500 * time.Millisecond
	}
	return &BatchInserter{
		in:           make(chan *task.Task, cfg.ChannelCapacity),
		flushFn:      flushFn,
		maps:         maps,
		batchSize:    cfg.BatchSize,
		batchTimeout: cfg.BatchTimeout,
		recvTimeout:  cfg.RecvTimeout,
		sem:          semaphore.NewWeighted(int64(cfg.MaxConcurrentFlushes)),
		done:         make(chan struct{}),
	}
}

// Submit hands one task to the inserter. A full inbound channel blocks the
// caller; a closed inserter returns ErrInserterClosed.
func (b *BatchInserter) Submit(t *task.Task) error {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	if b.closed {
		return ErrInserterClosed
	}
	b.in <- t.Clone()
	return nil
}

// Run is the monitor loop. It collects batches until the inbound channel is
// closed and drained, then waits for in-flight flushes before exiting.
func (b *BatchInserter) Run() {
	slog.Info("Batch inserter started",
		"batch_size", b.batchSize, "batch_timeout", b.batchTimeout)
	for {
		batch, open := b.collectBatch()
		if len(batch) > 0 {
			b.dispatchFlush(batch)
		}
		if !open {
			break
		}
	}
	b.flushWG.Wait()
	slog.Info("Batch inserter stopped", "successful_flushes", b.flushCount.Load())
	close(b.done)
}

// collectBatch receives until the batch is full, a receive times out, the
// outer batch deadline passes, or the channel closes. A receive timeout
// returns the partial batch rather than spinning.
func (b *BatchInserter) collectBatch() ([]*task.Task, bool) {
	batch := make([]*task.Task, 0, b.batchSize)
	deadline := time.NewTimer(b.batchTimeout)
	defer deadline.Stop()

	for len(batch) < b.batchSize {
		recv := time.NewTimer(b.recvTimeout)
		select {
		case t, ok := <-b.in:
			recv.Stop()
			if !ok {
				return batch, false
			}
			batch = append(batch, t)
		case <-recv.C:
			return batch, true
		case <-deadline.C:
			recv.Stop()
			return batch, true
		}
	}
	return batch, true
}

// dispatchFlush runs one batch through the flush function on its own
// goroutine, gated by the concurrency semaphore.
func (b *BatchInserter) dispatchFlush(batch []*task.Task) {
	b.activeFlushers.Add(1)
	b.flushWG.Add(1)
	go func() {
		defer b.flushWG.Done()
		defer b.activeFlushers.Add(-1)

		if err := b.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer b.sem.Release(1)

		err := b.flushFn(context.Background(), batch)
		metrics.BatchSize.Observe(float64(len(batch)))
		if err != nil {
			slog.Error("Batch flush failed", "batch_size", len(batch), "error", err)
			metrics.BatchFlushes.WithLabelValues("error").Inc()
		} else {
			slog.Info("Batch flushed", "batch_size", len(batch))
			metrics.BatchFlushes.WithLabelValues("success").Inc()
			b.flushCount.Add(1)
		}

		for _, t := range batch {
			b.resolveInserting(t, err)
		}
	}()
}

// resolveInserting completes or fails the task's inserting stage on the
// registry snapshot, which is the authoritative record.
func (b *BatchInserter) resolveInserting(t *task.Task, flushErr error) {
	snapshot, ok := b.maps.ReadTask(t.ID)
	if !ok {
		snapshot = t
	}
	if flushErr != nil {
		snapshot.FailStage(flushErr.Error())
	} else {
		snapshot.CompleteStage(map[string]string{"status": "success"})
	}
	b.maps.UpdateTask(snapshot)
}

// ActiveFlushers reports the number of flusher goroutines in flight.
func (b *BatchInserter) ActiveFlushers() int {
	return int(b.activeFlushers.Load())
}

// Finish closes the inbound channel, waits for the monitor and all flushers
// to exit, and returns the number of successful flushes.
func (b *BatchInserter) Finish() int {
	b.subMu.Lock()
	if !b.closed {
		b.closed = true
		close(b.in)
	}
	b.subMu.Unlock()
	<-b.done
	return int(b.flushCount.Load())
}
