package crawler

import (
	"sync"
	"sync/atomic"
	"time"
)

// ShutdownCoordinator is the barrier between the timer queue drain and worker
// exit. Workers must not stop until the timer queue has republished its heap,
// or retry-scheduled tasks would vanish silently.
type ShutdownCoordinator struct {
	remainingWorkers atomic.Int64

	timerDrained     chan struct{}
	timerDrainedOnce sync.Once

	allWorkersDone     chan struct{}
	allWorkersDoneOnce sync.Once
}

// NewShutdownCoordinator creates a coordinator expecting workerCount workers.
func NewShutdownCoordinator(workerCount int) *ShutdownCoordinator {
	c := &ShutdownCoordinator{
		timerDrained:   make(chan struct{}),
		allWorkersDone: make(chan struct{}),
	}
	c.remainingWorkers.Store(int64(workerCount))
	return c
}

// TimerDrained signals that the timer queue finished republishing its heap.
func (c *ShutdownCoordinator) TimerDrained() {
	c.timerDrainedOnce.Do(func() { close(c.timerDrained) })
}

// WaitForTimerDrain blocks up to timeout for the timer drain signal and
// reports whether it fired.
func (c *ShutdownCoordinator) WaitForTimerDrain(timeout time.Duration) bool {
	select {
	case <-c.timerDrained:
		return true
	case <-time.After(timeout):
		return false
	}
}

// WorkerCompleted records one worker's exit; the last one out fires the
// all-workers-done signal.
func (c *ShutdownCoordinator) WorkerCompleted() {
	if c.remainingWorkers.Add(-1) == 0 {
		c.allWorkersDoneOnce.Do(func() { close(c.allWorkersDone) })
	}
}

// RemainingWorkers returns the number of workers that have not completed.
func (c *ShutdownCoordinator) RemainingWorkers() int {
	return int(c.remainingWorkers.Load())
}

// WaitForWorkers blocks up to timeout for every worker to complete and
// reports whether they all did.
func (c *ShutdownCoordinator) WaitForWorkers(timeout time.Duration) bool {
	select {
	case <-c.allWorkersDone:
		return true
	case <-time.After(timeout):
		return false
	}
}
