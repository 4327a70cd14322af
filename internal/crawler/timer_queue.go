package crawler

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/castpipe/castpipe/internal/task"
)

// timerHeap is a min-heap of tasks keyed by backoff deadline.
type timerHeap []*task.Task

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].BackoffUntil.Before(h[j].BackoffUntil) }
func (h timerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)        { *h = append(*h, x.(*task.Task)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// TimerQueue holds retrying tasks until their backoff deadline and republishes
// them on the dispatch bus. On shutdown it drains the heap, stamping every
// remaining task with the shutdown flag.
type TimerQueue struct {
	mu     sync.Mutex
	timers timerHeap

	bus         *Bus
	coordinator *ShutdownCoordinator
	tick        time.Duration
}

// NewTimerQueue creates a timer queue publishing to bus.
func NewTimerQueue(bus *Bus, coordinator *ShutdownCoordinator, tick time.Duration) *TimerQueue {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	return &TimerQueue{
		bus:         bus,
		coordinator: coordinator,
		tick:        tick,
	}
}

// Schedule pushes a task onto the heap. A task without a backoff deadline
// defaults to one second from now.
func (q *TimerQueue) Schedule(t *task.Task) {
	c := t.Clone()
	if c.BackoffUntil.IsZero() {
		c.BackoffUntil = time.Now().Add(time.Second)
	}
	q.mu.Lock()
	heap.Push(&q.timers, c)
	q.mu.Unlock()
}

// Len returns the number of tasks waiting in the heap.
func (q *TimerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}

// Run loops until ctx is cancelled, republishing tasks whose deadline has
// passed. A scheduled task is back on the bus within one tick of its
// deadline. On cancellation the heap is drained and the coordinator notified.
func (q *TimerQueue) Run(ctx context.Context) {
	slog.Info("Timer queue started", "tick", q.tick)
	for {
		select {
		case <-ctx.Done():
			q.drain()
			return
		default:
		}

		ready := q.popReady()
		if ready == nil {
			select {
			case <-ctx.Done():
				q.drain()
				return
			case <-time.After(q.tick):
			}
			continue
		}

		if err := q.bus.Publish(ready); err != nil {
			slog.Error("Failed to republish retry task", "task_id", ready.ID, "error", err)
		} else {
			slog.Debug("Retry task republished", "task_id", ready.ID, "retries", ready.Retries)
		}
	}
}

// popReady pops the heap top if its deadline has passed.
func (q *TimerQueue) popReady() *task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.timers) == 0 {
		return nil
	}
	if q.timers[0].BackoffUntil.After(time.Now()) {
		return nil
	}
	return heap.Pop(&q.timers).(*task.Task)
}

// drain empties the heap, marking every task with the shutdown flag and
// republishing it so a worker can fail it terminally.
func (q *TimerQueue) drain() {
	q.mu.Lock()
	remaining := make([]*task.Task, 0, len(q.timers))
	for len(q.timers) > 0 {
		remaining = append(remaining, heap.Pop(&q.timers).(*task.Task))
	}
	q.mu.Unlock()

	slog.Info("Timer queue draining", "remaining_tasks", len(remaining))
	for _, t := range remaining {
		t.Shutdown = true
		if err := q.bus.Publish(t); err != nil {
			slog.Error("Failed to publish task during drain", "task_id", t.ID, "error", err)
		}
	}
	q.coordinator.TimerDrained()
	slog.Info("Timer queue drain complete")
}
