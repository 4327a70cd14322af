package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castpipe/castpipe/internal/task"
)

func TestBus_BroadcastInOrder(t *testing.T) {
	bus := NewBus(10)
	sub0 := bus.Subscribe()
	sub1 := bus.Subscribe()

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, bus.Publish(task.New(i, "http://example.com/feed", 0)))
	}

	for _, sub := range []<-chan *task.Task{sub0, sub1} {
		for want := uint64(1); want <= 3; want++ {
			got := <-sub
			assert.Equal(t, want, got.ID)
		}
	}
}

func TestBus_SubscribersReceiveIndependentCopies(t *testing.T) {
	bus := NewBus(10)
	sub0 := bus.Subscribe()
	sub1 := bus.Subscribe()

	tk := task.New(1, "http://example.com/feed", 0)
	tk.AddStage(task.StageDistribution)
	require.NoError(t, bus.Publish(tk))

	a, b := <-sub0, <-sub1
	a.CompleteStage(nil)
	assert.Equal(t, task.StatusInProgress, b.Status())
}

func TestBus_PublishAfterCloseFails(t *testing.T) {
	bus := NewBus(10)
	sub := bus.Subscribe()
	bus.Close()

	err := bus.Publish(task.New(1, "http://example.com/feed", 0))
	assert.ErrorIs(t, err, ErrBusClosed)

	_, ok := <-sub
	assert.False(t, ok)
}

func TestBus_QueueLen(t *testing.T) {
	bus := NewBus(10)
	bus.Subscribe()

	require.NoError(t, bus.Publish(task.New(1, "http://example.com/feed", 0)))
	require.NoError(t, bus.Publish(task.New(2, "http://example.com/feed", 0)))

	assert.Equal(t, 2, bus.QueueLen(0))
	assert.Equal(t, 0, bus.QueueLen(7))
}
