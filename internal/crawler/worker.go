package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/castpipe/castpipe/internal/metrics"
	"github.com/castpipe/castpipe/internal/models"
	"github.com/castpipe/castpipe/internal/task"
)

// Fetcher retrieves the raw bytes of a feed. It honours its own client-level
// timeout and does not retry.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Parser turns fetched bytes into a podcast record set. Deterministic, no I/O.
type Parser interface {
	Parse(content []byte, url string) (*models.ParsedFeed, error)
}

// WorkerState tracks a worker's position in its lifecycle.
type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerProcessing
	WorkerDraining
	WorkerShutdown
)

// WorkerMetrics is a snapshot of one worker's counters. The average process
// time is an exponential moving average.
type WorkerMetrics struct {
	TasksProcessed uint64
	TasksFailed    uint64
	TasksRetried   uint64
	AvgProcessTime time.Duration
}

// emaAlpha weights the latest sample in the latency moving average.
const emaAlpha = 0.2

// Worker consumes tasks matching its id from the dispatch bus and runs each
// through fetch, parse, and submission to the batch inserter.
type Worker struct {
	id                int
	maxHistorySize    int
	baseBackoff       time.Duration
	timerDrainTimeout time.Duration
	drainRecvTimeout  time.Duration

	maps        *TaskWorkerMaps
	fetcher     Fetcher
	parser      Parser
	inserter    *BatchInserter
	timers      *TimerQueue
	coordinator *ShutdownCoordinator
	tasks       <-chan *task.Task

	state atomic.Int32

	metricsMu sync.Mutex
	metrics   WorkerMetrics

	inFlight []uint64
}

// WorkerConfig holds the per-worker knobs.
type WorkerConfig struct {
	MaxHistorySize    int
	BaseBackoff       time.Duration
	TimerDrainTimeout time.Duration
	DrainRecvTimeout  time.Duration
}

// NewWorker creates a worker reading from tasks.
func NewWorker(id int, cfg WorkerConfig, maps *TaskWorkerMaps, fetcher Fetcher, parser Parser,
	inserter *BatchInserter, timers *TimerQueue, coordinator *ShutdownCoordinator,
	tasks <-chan *task.Task) *Worker {
	if cfg.MaxHistorySize <= 0 {
		cfg.MaxHistorySize = 16
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.TimerDrainTimeout <= 0 {
		cfg.TimerDrainTimeout = 100 * time.Second
	}
	if cfg.DrainRecvTimeout <= 0 {
		cfg.DrainRecvTimeout = 500 * time.Millisecond
	}
	return &Worker{
		id:                id,
		maxHistorySize:    cfg.MaxHistorySize,
		baseBackoff:       cfg.BaseBackoff,
		timerDrainTimeout: cfg.TimerDrainTimeout,
		drainRecvTimeout:  cfg.DrainRecvTimeout,
		maps:              maps,
		fetcher:           fetcher,
		parser:            parser,
		inserter:          inserter,
		timers:            timers,
		coordinator:       coordinator,
		tasks:             tasks,
	}
}

// ID returns the worker id.
func (w *Worker) ID() int { return w.id }

// State returns the worker's current lifecycle state.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Metrics returns a snapshot of the worker's counters.
func (w *Worker) Metrics() WorkerMetrics {
	w.metricsMu.Lock()
	defer w.metricsMu.Unlock()
	return w.metrics
}

// Run is the worker main loop. It exits after the drain sequence completes.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("Worker started", "worker_id", w.id)
	w.state.Store(int32(WorkerProcessing))
	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case t, ok := <-w.tasks:
			if !ok {
				slog.Info("Task channel closed", "worker_id", w.id)
				w.state.Store(int32(WorkerShutdown))
				w.coordinator.WorkerCompleted()
				return
			}
			if t.TargetWorkerID != w.id {
				continue
			}
			if t.Shutdown {
				w.failForShutdown(t)
				continue
			}
			w.process(ctx, t)
		}
	}
}

// process runs one owned task through fetch, parse, and inserter submission.
func (w *Worker) process(ctx context.Context, t *task.Task) {
	slog.Info("Processing task", "worker_id", w.id, "task_id", t.ID, "url", t.Payload, "retries", t.Retries)
	start := time.Now()
	w.inFlight = append(w.inFlight, t.ID)
	defer func() {
		for i, id := range w.inFlight {
			if id == t.ID {
				w.inFlight = append(w.inFlight[:i], w.inFlight[i+1:]...)
				break
			}
		}
	}()

	// A republished retry carries the deadline it waited out; clear it so a
	// failure from here on is either a fresh retry or terminal.
	t.BackoffUntil = time.Time{}

	t.AddStage(task.StageFetching)
	content, err := w.fetcher.Fetch(ctx, t.Payload)
	if err != nil {
		w.retryOrFail(t, err)
		w.maps.UpdateTask(t)
		w.recordOutcome(start, true)
		return
	}
	t.Content = content
	t.CompleteStage(nil)

	t.AddStage(task.StageParsing)
	feed, err := w.parser.Parse(t.Content, t.Payload)
	if err != nil {
		// Malformed feeds won't fix themselves within one process; no retry.
		t.FailStage(fmt.Sprintf("parse failed: %v", err))
		w.maps.UpdateTask(t)
		w.recordOutcome(start, true)
		slog.Warn("Task failed", "worker_id", w.id, "task_id", t.ID, "error", t.StageError())
		return
	}
	t.CompleteStage(feed)

	t.AddStage(task.StageInserting)
	w.maps.UpdateTask(t)
	if err := w.inserter.Submit(t); err != nil {
		t.FailStage(fmt.Sprintf("batch submit failed: %v", err))
		w.maps.UpdateTask(t)
		w.recordOutcome(start, true)
		return
	}

	w.maps.PushToWorker(w.id, t.Payload, w.maxHistorySize)
	w.recordOutcome(start, false)
	slog.Info("Task submitted for insertion", "worker_id", w.id, "task_id", t.ID)
}

// retryOrFail schedules a fetch retry with exponential backoff, or fails the
// task terminally once retries are exhausted.
func (w *Worker) retryOrFail(t *task.Task, fetchErr error) {
	if t.Retries < t.MaxRetries {
		t.Retries++
		delay := w.baseBackoff << (t.Retries - 1)
		delay += time.Duration(rand.Intn(100)) * time.Millisecond
		t.BackoffUntil = time.Now().Add(delay)
		t.FailStage(fmt.Sprintf("fetch failed: %v (retry %d/%d scheduled in %s)",
			fetchErr, t.Retries, t.MaxRetries, delay.Round(time.Millisecond)))
		w.timers.Schedule(t)
		metrics.TaskRetries.Inc()
		w.metricsMu.Lock()
		w.metrics.TasksRetried++
		w.metricsMu.Unlock()
		return
	}
	t.BackoffUntil = time.Time{}
	t.FailStage(fmt.Sprintf("fetch failed after %d retries: %v", t.Retries, fetchErr))
	slog.Warn("Task failed, retries exhausted", "worker_id", w.id, "task_id", t.ID, "retries", t.Retries)
}

// failForShutdown terminally fails a task that was drained out of the timer
// queue or caught queued behind the shutdown signal.
func (w *Worker) failForShutdown(t *task.Task) {
	t.Shutdown = true
	switch {
	case t.Status() == task.StatusInProgress:
		t.FailStage("shutdown signal")
	case t.Completed():
		// already ran the full pipeline
	case t.Failed():
		// the shutdown flag alone makes the failure terminal
	default:
		// admitted but never picked up; record the abort on the stage it
		// would have entered next
		t.AddStage(task.StageFetching)
		t.FailStage("shutdown signal")
	}
	w.maps.UpdateTask(t)
	slog.Debug("Task failed for shutdown", "worker_id", w.id, "task_id", t.ID)
}

// drain runs the shutdown sequence: wait for the timer queue to finish
// republishing, fail anything mid-flight, then fail every task still arriving
// for this worker, shutdown-marked or not, until the bus goes quiet.
func (w *Worker) drain() {
	w.state.Store(int32(WorkerDraining))
	slog.Info("Worker draining", "worker_id", w.id)

	if !w.coordinator.WaitForTimerDrain(w.timerDrainTimeout) {
		slog.Warn("Timed out waiting for timer queue drain", "worker_id", w.id)
	}

	for _, id := range w.inFlight {
		if t, ok := w.maps.ReadTask(id); ok && t.Status() == task.StatusInProgress {
			t.FailStage("shutdown signal")
			w.maps.UpdateTask(t)
		}
	}
	w.inFlight = w.inFlight[:0]

	for {
		recv := time.NewTimer(w.drainRecvTimeout)
		select {
		case t, ok := <-w.tasks:
			recv.Stop()
			if !ok {
				w.finishDrain()
				return
			}
			if t.TargetWorkerID != w.id {
				continue
			}
			w.failForShutdown(t)
		case <-recv.C:
			w.finishDrain()
			return
		}
	}
}

func (w *Worker) finishDrain() {
	w.state.Store(int32(WorkerShutdown))
	w.coordinator.WorkerCompleted()
	slog.Info("Worker shutdown complete", "worker_id", w.id)
}

// recordOutcome folds one task's processing time into the worker counters.
func (w *Worker) recordOutcome(start time.Time, failed bool) {
	elapsed := time.Since(start)
	w.metricsMu.Lock()
	defer w.metricsMu.Unlock()
	w.metrics.TasksProcessed++
	if failed {
		w.metrics.TasksFailed++
	}
	if w.metrics.AvgProcessTime == 0 {
		w.metrics.AvgProcessTime = elapsed
	} else {
		w.metrics.AvgProcessTime += time.Duration(emaAlpha * float64(elapsed-w.metrics.AvgProcessTime))
	}
}
