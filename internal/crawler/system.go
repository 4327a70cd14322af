package crawler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/castpipe/castpipe/internal/task"
)

// Config holds every knob of the task management core.
type Config struct {
	WorkerCount          int
	MaxHistorySize       int
	MaxRetries           int
	BaseBackoff          time.Duration
	BatchSize            int
	BatchTimeout         time.Duration
	MaxConcurrentFlushes int
	DispatchBuffer       int
	AwaitTimeout         time.Duration
	ShutdownTimeout      time.Duration
	TimerDrainTimeout    time.Duration
	TimerTick            time.Duration
	Policy               SelectionPolicy
	Epsilon              float64
}

func (c *Config) applyDefaults() {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	if c.MaxHistorySize <= 0 {
		c.MaxHistorySize = 16
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.DispatchBuffer <= 0 {
		c.DispatchBuffer = 5000
	}
	if c.AwaitTimeout <= 0 {
		c.AwaitTimeout = 300 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 20 * time.Second
	}
	if c.TimerDrainTimeout <= 0 {
		c.TimerDrainTimeout = 100 * time.Second
	}
}

// System is the top-level façade wiring the distributor, workers, timer
// queue, and batch inserter together.
type System struct {
	cfg Config

	maps        *TaskWorkerMaps
	bus         *Bus
	coordinator *ShutdownCoordinator
	timers      *TimerQueue
	inserter    *BatchInserter
	distributor *Distributor
	workers     []*Worker

	cancel       context.CancelFunc
	wg           sync.WaitGroup
	startOnce    sync.Once
	shutdownOnce sync.Once
}

// NewSystem wires a system from its collaborators. Nothing runs until Start.
func NewSystem(cfg Config, fetcher Fetcher, parser Parser, flushFn FlushFunc) *System {
	cfg.applyDefaults()

	maps := NewTaskWorkerMaps()
	bus := NewBus(cfg.DispatchBuffer)
	coordinator := NewShutdownCoordinator(cfg.WorkerCount)
	timers := NewTimerQueue(bus, coordinator, cfg.TimerTick)
	inserter := NewBatchInserter(InserterConfig{
		BatchSize:            cfg.BatchSize,
		BatchTimeout:         cfg.BatchTimeout,
		MaxConcurrentFlushes: cfg.MaxConcurrentFlushes,
	}, maps, flushFn)

	workers := make([]*Worker, 0, cfg.WorkerCount)
	for i := 0; i < cfg.WorkerCount; i++ {
		maps.InsertWorker(i)
		workers = append(workers, NewWorker(i, WorkerConfig{
			MaxHistorySize:    cfg.MaxHistorySize,
			BaseBackoff:       cfg.BaseBackoff,
			TimerDrainTimeout: cfg.TimerDrainTimeout,
		}, maps, fetcher, parser, inserter, timers, coordinator, bus.Subscribe()))
	}

	distributor := NewDistributor(DistributorConfig{
		WorkerCount: cfg.WorkerCount,
		MaxRetries:  cfg.MaxRetries,
		Policy:      cfg.Policy,
		Epsilon:     cfg.Epsilon,
	}, bus, maps, time.Now().UnixNano())

	return &System{
		cfg:         cfg,
		maps:        maps,
		bus:         bus,
		coordinator: coordinator,
		timers:      timers,
		inserter:    inserter,
		distributor: distributor,
		workers:     workers,
	}
}

// Start launches the timer queue, the workers, and the inserter monitor.
func (s *System) Start() {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.timers.Run(ctx)
		}()

		for _, w := range s.workers {
			w := w
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				w.Run(ctx)
			}()
		}

		go s.inserter.Run()

		slog.Info("Task management system started", "worker_count", s.cfg.WorkerCount)
	})
}

// Submit admits one feed URL into the pipeline.
func (s *System) Submit(url string) error {
	return s.distributor.Submit(url)
}

// ListTasks returns a snapshot of every task the system has seen.
func (s *System) ListTasks() []*task.Task {
	return s.maps.ReadAllTasks()
}

// WorkerMetrics returns per-worker counter snapshots keyed by worker id.
func (s *System) WorkerMetrics() map[int]WorkerMetrics {
	out := make(map[int]WorkerMetrics, len(s.workers))
	for _, w := range s.workers {
		out[w.ID()] = w.Metrics()
	}
	return out
}

// AwaitCompletion blocks until every submitted task reaches a terminal state
// or the timeout passes. On timeout it initiates shutdown and returns the
// tasks as they stand.
func (s *System) AwaitCompletion(timeout time.Duration) []*task.Task {
	if timeout <= 0 {
		timeout = s.cfg.AwaitTimeout
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		tasks := s.maps.ReadAllTasks()
		done := true
		for _, t := range tasks {
			if !t.Terminal() {
				done = false
				break
			}
		}
		if done {
			return tasks
		}
		time.Sleep(100 * time.Millisecond)
	}
	slog.Warn("Timed out waiting for task completion, shutting down", "timeout", timeout)
	s.Shutdown(s.cfg.ShutdownTimeout)
	return s.maps.ReadAllTasks()
}

// Shutdown cancels the pipeline and waits for the drain to complete within
// the budget: the timer queue republishes its heap, workers fail what is left
// and exit, and the inserter finishes in-flight flushes.
func (s *System) Shutdown(timeout time.Duration) {
	s.shutdownOnce.Do(func() {
		if timeout <= 0 {
			timeout = s.cfg.ShutdownTimeout
		}
		slog.Info("Shutdown initiated", "timeout", timeout)

		if s.cancel != nil {
			s.cancel()
		}

		if s.coordinator.WaitForWorkers(timeout) {
			slog.Info("All workers completed drain")
		} else {
			slog.Error("Shutdown timed out waiting for workers",
				"remaining_workers", s.coordinator.RemainingWorkers())
		}

		s.bus.Close()
		flushes := s.inserter.Finish()
		slog.Info("Shutdown complete", "successful_flushes", flushes)
	})
}
