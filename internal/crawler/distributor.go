package crawler

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/castpipe/castpipe/internal/task"
)

// SelectionPolicy names a worker-selection strategy.
type SelectionPolicy string

const (
	// PolicyRoundRobin assigns workers in submission order.
	PolicyRoundRobin SelectionPolicy = "round_robin"
	// PolicyAffinity prefers the least-loaded worker, breaking ties toward
	// the one whose recent history most resembles the URL, with an
	// epsilon-random escape to force exploration.
	PolicyAffinity SelectionPolicy = "affinity"
)

// Distributor mints a task for every admitted URL and selects its target
// worker. Selection is read-only with respect to the workers.
type Distributor struct {
	idCounter   atomic.Uint64
	rrNext      atomic.Uint64
	workerCount int
	maxRetries  int
	policy      SelectionPolicy
	epsilon     float64

	bus  *Bus
	maps *TaskWorkerMaps

	randMu sync.Mutex
	rand   *rand.Rand
}

// DistributorConfig holds the admission knobs.
type DistributorConfig struct {
	WorkerCount int
	MaxRetries  int
	Policy      SelectionPolicy
	Epsilon     float64
}

// NewDistributor creates a distributor publishing to bus.
func NewDistributor(cfg DistributorConfig, bus *Bus, maps *TaskWorkerMaps, seed int64) *Distributor {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyRoundRobin
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = 0.4
	}
	return &Distributor{
		workerCount: cfg.WorkerCount,
		maxRetries:  cfg.MaxRetries,
		policy:      cfg.Policy,
		epsilon:     cfg.Epsilon,
		bus:         bus,
		maps:        maps,
		rand:        rand.New(rand.NewSource(seed)),
	}
}

// Submit mints a task for the URL, assigns it a worker, registers it, and
// publishes it on the dispatch bus. The returned error is non-nil only when
// the bus publish failed, which typically means shutdown is in progress.
func (d *Distributor) Submit(url string) error {
	id := d.idCounter.Add(1)
	t := task.New(id, url, d.maxRetries)

	t.AddStage(task.StageDistribution)
	t.TargetWorkerID = d.selectWorker(url)
	t.CompleteStage(nil)
	d.maps.InsertTask(t)

	slog.Info("Task distributed", "task_id", id, "url", url, "target_worker_id", t.TargetWorkerID)

	if err := d.bus.Publish(t); err != nil {
		// the distribution stage already completed, so reopen it as failed:
		// the registry must record why the task never reached a worker
		last := &t.Stages[len(t.Stages)-1]
		last.Status = task.StatusFailed
		last.ErrorMessage = "publish failed: " + err.Error()
		d.maps.UpdateTask(t)
		slog.Error("Failed to publish task", "task_id", id, "error", err)
		return fmt.Errorf("publish task %d: %w", id, err)
	}
	return nil
}

// selectWorker picks the target worker id according to the configured policy.
func (d *Distributor) selectWorker(url string) int {
	if d.policy == PolicyAffinity {
		return d.selectByAffinity(url)
	}
	return int((d.rrNext.Add(1) - 1) % uint64(d.workerCount))
}

// selectByAffinity scores each worker by (queue length asc, similarity desc)
// and picks the minimum, or a uniformly random worker with probability
// epsilon.
func (d *Distributor) selectByAffinity(url string) int {
	d.randMu.Lock()
	explore := d.rand.Float64() < d.epsilon
	pick := d.rand.Intn(d.workerCount)
	d.randMu.Unlock()
	if explore {
		return pick
	}

	best := 0
	bestQueue := -1
	bestSim := 0.0
	for id := 0; id < d.workerCount; id++ {
		queue := d.bus.QueueLen(id)
		sim := similarity(url, d.maps.ReadWorker(id))
		if bestQueue < 0 || queue < bestQueue || (queue == bestQueue && sim > bestSim) {
			best, bestQueue, bestSim = id, queue, sim
		}
	}
	return best
}

// similarity is a cheap frequency-plus-dampening score: how often the URL
// appears in the history, plus the reciprocal of the history length. It is
// deliberately not URL structural similarity.
func similarity(url string, history []string) float64 {
	if len(history) == 0 {
		return 0
	}
	matches := 0
	for _, h := range history {
		if h == url {
			matches++
		}
	}
	return float64(matches) + 1.0/float64(len(history))
}
