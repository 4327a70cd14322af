package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castpipe/castpipe/internal/models"
	"github.com/castpipe/castpipe/internal/task"
)

// stubFetcher fails the first failures[url] calls for a URL, then succeeds.
// A URL in alwaysFail never succeeds.
type stubFetcher struct {
	mu         sync.Mutex
	failures   map[string]int
	alwaysFail map[string]bool
	calls      map[string]int
	delay      time.Duration
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		failures:   make(map[string]int),
		alwaysFail: make(map[string]bool),
		calls:      make(map[string]int),
	}
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if f.alwaysFail[url] {
		return nil, errors.New("connection refused")
	}
	if f.calls[url] <= f.failures[url] {
		return nil, errors.New("connection refused")
	}
	return []byte("<rss>" + url + "</rss>"), nil
}

func (f *stubFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// stubParser rejects URLs in reject, otherwise returns a minimal feed.
type stubParser struct {
	reject map[string]bool
}

func (p *stubParser) Parse(_ []byte, url string) (*models.ParsedFeed, error) {
	if p.reject[url] {
		return nil, errors.New("invalid XML")
	}
	return &models.ParsedFeed{
		Podcast: models.Podcast{Title: url, RSSFeedURL: url},
	}, nil
}

// countingFlush records flushed batch sizes.
type countingFlush struct {
	mu    sync.Mutex
	sizes []int
	err   error
}

func (c *countingFlush) fn(_ context.Context, batch []*task.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sizes = append(c.sizes, len(batch))
	return nil
}

func (c *countingFlush) flushSizes() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.sizes))
	copy(out, c.sizes)
	return out
}

func newTestSystem(cfg Config, fetcher Fetcher, parser Parser, flush FlushFunc) *System {
	if cfg.TimerTick == 0 {
		cfg.TimerTick = 10 * time.Millisecond
	}
	if cfg.TimerDrainTimeout == 0 {
		cfg.TimerDrainTimeout = 2 * time.Second
	}
	return NewSystem(cfg, fetcher, parser, flush)
}

func stageNames(tk *task.Task) []string {
	names := make([]string, 0, len(tk.Stages))
	for _, s := range tk.Stages {
		names = append(names, s.Name)
	}
	return names
}

func TestSystem_HappyPath(t *testing.T) {
	fetcher := newStubFetcher()
	parser := &stubParser{}
	flush := &countingFlush{}

	system := newTestSystem(Config{
		WorkerCount:  2,
		BatchSize:    3,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
	}, fetcher, parser, flush.fn)
	system.Start()
	defer system.Shutdown(5 * time.Second)

	urls := []string{"http://example.com/a", "http://example.com/b", "http://example.com/c"}
	for _, url := range urls {
		require.NoError(t, system.Submit(url))
	}

	tasks := system.AwaitCompletion(10 * time.Second)
	require.Len(t, tasks, 3)

	byPayload := make(map[string]*task.Task)
	for _, tk := range tasks {
		byPayload[tk.Payload] = tk
	}

	// round-robin targets in submission order
	assert.Equal(t, 0, byPayload[urls[0]].TargetWorkerID)
	assert.Equal(t, 1, byPayload[urls[1]].TargetWorkerID)
	assert.Equal(t, 0, byPayload[urls[2]].TargetWorkerID)

	for _, tk := range tasks {
		require.True(t, tk.Completed(), "task %d not completed: %v", tk.ID, stageNames(tk))
		assert.Equal(t, []string{
			task.StageDistribution, task.StageFetching,
			task.StageParsing, task.StageInserting,
		}, stageNames(tk))
		for _, s := range tk.Stages {
			assert.Equal(t, task.StatusCompleted, s.Status)
		}
	}

	assert.Equal(t, []int{3}, flush.flushSizes())
}

func TestSystem_FetchRetryThenSuccess(t *testing.T) {
	const url = "http://example.com/flaky"
	fetcher := newStubFetcher()
	fetcher.failures[url] = 2
	flush := &countingFlush{}

	system := newTestSystem(Config{
		WorkerCount: 1,
		BatchSize:   1,
		MaxRetries:  3,
		BaseBackoff: 40 * time.Millisecond,
	}, fetcher, &stubParser{}, flush.fn)
	system.Start()
	defer system.Shutdown(5 * time.Second)

	started := time.Now()
	require.NoError(t, system.Submit(url))
	tasks := system.AwaitCompletion(10 * time.Second)
	elapsed := time.Since(started)

	require.Len(t, tasks, 1)
	tk := tasks[0]
	require.True(t, tk.Completed(), "stages: %v", stageNames(tk))
	assert.Equal(t, 2, tk.Retries)
	assert.Equal(t, 3, fetcher.callCount(url))

	var fetchStages []task.Stage
	for _, s := range tk.Stages {
		if s.Name == task.StageFetching {
			fetchStages = append(fetchStages, s)
		}
	}
	require.Len(t, fetchStages, 3)
	assert.Equal(t, task.StatusFailed, fetchStages[0].Status)
	assert.Equal(t, task.StatusFailed, fetchStages[1].Status)
	assert.Equal(t, task.StatusCompleted, fetchStages[2].Status)

	// backoffs of base and 2*base must have elapsed
	assert.GreaterOrEqual(t, elapsed, 120*time.Millisecond)
}

func TestSystem_FetchRetryExhaustion(t *testing.T) {
	const url = "http://example.com/dead"
	fetcher := newStubFetcher()
	fetcher.alwaysFail[url] = true

	system := newTestSystem(Config{
		WorkerCount: 1,
		BatchSize:   1,
		MaxRetries:  2,
		BaseBackoff: 20 * time.Millisecond,
	}, fetcher, &stubParser{}, (&countingFlush{}).fn)
	system.Start()
	defer system.Shutdown(5 * time.Second)

	require.NoError(t, system.Submit(url))
	tasks := system.AwaitCompletion(10 * time.Second)

	require.Len(t, tasks, 1)
	tk := tasks[0]
	assert.True(t, tk.Failed())
	assert.Equal(t, 2, tk.Retries)
	assert.LessOrEqual(t, tk.Retries, tk.MaxRetries)

	fetches := 0
	for _, s := range tk.Stages {
		switch s.Name {
		case task.StageFetching:
			fetches++
			assert.Equal(t, task.StatusFailed, s.Status)
		case task.StageParsing, task.StageInserting:
			t.Fatalf("unexpected stage %s on exhausted task", s.Name)
		}
	}
	assert.Equal(t, 3, fetches)
}

func TestSystem_ParseFailureIsTerminal(t *testing.T) {
	const url = "http://example.com/garbage"
	fetcher := newStubFetcher()
	parser := &stubParser{reject: map[string]bool{url: true}}

	system := newTestSystem(Config{
		WorkerCount: 1,
		BatchSize:   1,
		MaxRetries:  3,
	}, fetcher, parser, (&countingFlush{}).fn)
	system.Start()
	defer system.Shutdown(5 * time.Second)

	require.NoError(t, system.Submit(url))
	tasks := system.AwaitCompletion(10 * time.Second)

	require.Len(t, tasks, 1)
	tk := tasks[0]
	assert.True(t, tk.Failed())
	assert.Zero(t, tk.Retries)
	assert.Equal(t, 1, fetcher.callCount(url))
	assert.Equal(t, []string{
		task.StageDistribution, task.StageFetching, task.StageParsing,
	}, stageNames(tk))
	assert.Contains(t, tk.StageError(), "parse failed")
}

func TestSystem_ShutdownMidFlight(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.delay = 5 * time.Millisecond
	flush := &countingFlush{}

	system := newTestSystem(Config{
		WorkerCount:  2,
		BatchSize:    10,
		BatchTimeout: 100 * time.Millisecond,
		MaxRetries:   0,
	}, fetcher, &stubParser{}, flush.fn)
	system.Start()

	for i := 0; i < 100; i++ {
		require.NoError(t, system.Submit(fmt.Sprintf("http://example.com/%d", i)))
	}
	time.Sleep(50 * time.Millisecond)
	system.Shutdown(20 * time.Second)

	tasks := system.ListTasks()
	require.Len(t, tasks, 100)

	completed, failed := 0, 0
	for _, tk := range tasks {
		require.True(t, tk.Terminal(), "task %d not terminal: %v (%s)", tk.ID, stageNames(tk), tk.Status())
		for _, s := range tk.Stages {
			assert.NotEqual(t, task.StatusInProgress, s.Status, "task %d stage %s", tk.ID, s.Name)
		}
		if tk.Completed() {
			completed++
		} else {
			failed++
			assert.Equal(t, "shutdown signal", tk.StageError())
		}
	}
	assert.Greater(t, completed, 0, "expected some tasks to finish before shutdown")
	assert.Greater(t, failed, 0, "expected some tasks to be cut off by shutdown")
}

func TestSystem_PartialBatchFlushedOnTimeout(t *testing.T) {
	fetcher := newStubFetcher()
	flush := &countingFlush{}

	system := newTestSystem(Config{
		WorkerCount:  2,
		BatchSize:    10,
		BatchTimeout: 300 * time.Millisecond,
	}, fetcher, &stubParser{}, flush.fn)
	system.Start()
	defer system.Shutdown(5 * time.Second)

	require.NoError(t, system.Submit("http://example.com/a"))
	require.NoError(t, system.Submit("http://example.com/b"))

	tasks := system.AwaitCompletion(10 * time.Second)
	require.Len(t, tasks, 2)
	for _, tk := range tasks {
		assert.True(t, tk.Completed())
	}
	assert.Equal(t, []int{2}, flush.flushSizes())
}

func TestSystem_ResubmitSameURLYieldsDistinctTasks(t *testing.T) {
	const url = "http://example.com/stable"
	fetcher := newStubFetcher()
	flush := &countingFlush{}

	system := newTestSystem(Config{
		WorkerCount: 2,
		BatchSize:   1,
	}, fetcher, &stubParser{}, flush.fn)
	system.Start()
	defer system.Shutdown(5 * time.Second)

	require.NoError(t, system.Submit(url))
	require.NoError(t, system.Submit(url))

	tasks := system.AwaitCompletion(10 * time.Second)
	require.Len(t, tasks, 2)
	assert.NotEqual(t, tasks[0].ID, tasks[1].ID)

	r0, ok0 := tasks[0].StageResult(task.StageParsing)
	r1, ok1 := tasks[1].StageResult(task.StageParsing)
	require.True(t, ok0)
	require.True(t, ok1)
	assert.Equal(t, r0.(*models.ParsedFeed).Podcast.RSSFeedURL, r1.(*models.ParsedFeed).Podcast.RSSFeedURL)
}

func TestSystem_ShutdownBarrierOrdering(t *testing.T) {
	fetcher := newStubFetcher()
	system := newTestSystem(Config{
		WorkerCount: 3,
		BatchSize:   1,
	}, fetcher, &stubParser{}, (&countingFlush{}).fn)
	system.Start()

	require.NoError(t, system.Submit("http://example.com/a"))
	system.AwaitCompletion(5 * time.Second)
	system.Shutdown(10 * time.Second)

	assert.Equal(t, 0, system.coordinator.RemainingWorkers())
	assert.True(t, system.coordinator.WaitForTimerDrain(time.Millisecond))
}

func TestSystem_RetryBackoffDoubles(t *testing.T) {
	const url = "http://example.com/slow"
	fetcher := newStubFetcher()
	fetcher.alwaysFail[url] = true
	base := 50 * time.Millisecond

	system := newTestSystem(Config{
		WorkerCount: 1,
		BatchSize:   1,
		MaxRetries:  2,
		BaseBackoff: base,
	}, fetcher, &stubParser{}, (&countingFlush{}).fn)
	system.Start()
	defer system.Shutdown(5 * time.Second)

	started := time.Now()
	require.NoError(t, system.Submit(url))
	system.AwaitCompletion(10 * time.Second)

	// the two retries waited at least base + 2*base between attempts
	assert.GreaterOrEqual(t, time.Since(started), 3*base)
}
