package crawler

import (
	"sync"

	"github.com/castpipe/castpipe/internal/task"
)

// TaskWorkerMaps holds the shared registries: task id to task snapshot, and
// worker id to recent URL history. Snapshots are deep copies taken under the
// lock, so readers never observe a task mid-mutation.
type TaskWorkerMaps struct {
	tasksMu sync.RWMutex
	tasks   map[uint64]*task.Task

	historyMu sync.RWMutex
	histories map[int][]string
}

// NewTaskWorkerMaps creates empty registries.
func NewTaskWorkerMaps() *TaskWorkerMaps {
	return &TaskWorkerMaps{
		tasks:     make(map[uint64]*task.Task),
		histories: make(map[int][]string),
	}
}

// InsertTask stores a snapshot of the task.
func (m *TaskWorkerMaps) InsertTask(t *task.Task) {
	m.tasksMu.Lock()
	defer m.tasksMu.Unlock()
	m.tasks[t.ID] = t.Clone()
}

// UpdateTask replaces the stored snapshot. Tasks are never removed; the
// registry retains them for post-hoc inspection.
func (m *TaskWorkerMaps) UpdateTask(t *task.Task) {
	m.tasksMu.Lock()
	defer m.tasksMu.Unlock()
	m.tasks[t.ID] = t.Clone()
}

// ReadTask returns a snapshot of one task.
func (m *TaskWorkerMaps) ReadTask(id uint64) (*task.Task, bool) {
	m.tasksMu.RLock()
	defer m.tasksMu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// ReadAllTasks returns snapshots of every task. Individual tasks are
// consistent; the set as a whole is not a global atomic snapshot.
func (m *TaskWorkerMaps) ReadAllTasks() []*task.Task {
	m.tasksMu.RLock()
	defer m.tasksMu.RUnlock()
	out := make([]*task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Clone())
	}
	return out
}

// TaskCount returns the number of registered tasks.
func (m *TaskWorkerMaps) TaskCount() int {
	m.tasksMu.RLock()
	defer m.tasksMu.RUnlock()
	return len(m.tasks)
}

// InsertWorker registers an empty history for a worker id.
func (m *TaskWorkerMaps) InsertWorker(workerID int) {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	m.histories[workerID] = nil
}

// PushToWorker appends a processed URL to the worker's history, evicting the
// oldest entries once capacity is exceeded.
func (m *TaskWorkerMaps) PushToWorker(workerID int, url string, capacity int) {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	h := append(m.histories[workerID], url)
	if capacity > 0 && len(h) > capacity {
		h = h[len(h)-capacity:]
	}
	m.histories[workerID] = h
}

// ReadWorker returns a copy of the worker's history.
func (m *TaskWorkerMaps) ReadWorker(workerID int) []string {
	m.historyMu.RLock()
	defer m.historyMu.RUnlock()
	h, ok := m.histories[workerID]
	if !ok {
		return nil
	}
	out := make([]string, len(h))
	copy(out, h)
	return out
}
