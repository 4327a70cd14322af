package crawler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castpipe/castpipe/internal/task"
)

func TestTaskWorkerMaps_SnapshotIsolation(t *testing.T) {
	maps := NewTaskWorkerMaps()

	tk := task.New(1, "http://example.com/feed", 3)
	tk.AddStage(task.StageDistribution)
	maps.InsertTask(tk)

	// mutating the original must not leak into the stored snapshot
	tk.CompleteStage(nil)

	stored, ok := maps.ReadTask(1)
	require.True(t, ok)
	assert.Equal(t, task.StatusInProgress, stored.Status())

	// nor may mutating a read snapshot affect the registry
	stored.CompleteStage(nil)
	again, _ := maps.ReadTask(1)
	assert.Equal(t, task.StatusInProgress, again.Status())
}

func TestTaskWorkerMaps_ReadAllTasks(t *testing.T) {
	maps := NewTaskWorkerMaps()
	for i := uint64(1); i <= 5; i++ {
		maps.InsertTask(task.New(i, fmt.Sprintf("http://example.com/%d", i), 0))
	}
	assert.Len(t, maps.ReadAllTasks(), 5)
	assert.Equal(t, 5, maps.TaskCount())

	_, ok := maps.ReadTask(99)
	assert.False(t, ok)
}

func TestTaskWorkerMaps_HistoryFIFOEviction(t *testing.T) {
	maps := NewTaskWorkerMaps()
	maps.InsertWorker(0)

	for i := 0; i < 5; i++ {
		maps.PushToWorker(0, fmt.Sprintf("http://example.com/%d", i), 3)
	}

	history := maps.ReadWorker(0)
	require.Len(t, history, 3)
	assert.Equal(t, []string{
		"http://example.com/2",
		"http://example.com/3",
		"http://example.com/4",
	}, history)
}

func TestTaskWorkerMaps_ReadWorkerCopy(t *testing.T) {
	maps := NewTaskWorkerMaps()
	maps.InsertWorker(0)
	maps.PushToWorker(0, "http://example.com/a", 10)

	h := maps.ReadWorker(0)
	h[0] = "mutated"
	assert.Equal(t, "http://example.com/a", maps.ReadWorker(0)[0])
}
