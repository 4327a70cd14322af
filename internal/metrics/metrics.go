// Package metrics implements Prometheus metrics for the crawler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmittedTasks counts tasks accepted by the distributor
	SubmittedTasks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_submitted_tasks_total",
			Help: "Total number of tasks submitted for ingestion",
		},
	)

	// ProcessedTasks counts tasks whose inserting stage completed
	ProcessedTasks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_processed_tasks_total",
			Help: "Total number of tasks processed end to end",
		},
	)

	// FailedTasks counts failed stages, including fetch failures that scheduled a retry
	FailedTasks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_failed_tasks_total",
			Help: "Total number of failed task stages",
		},
	)

	// TaskRetries counts fetch retries scheduled through the timer queue
	TaskRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_task_retries_total",
			Help: "Total number of task retries",
		},
	)

	// TaskStatus tracks how many stages are currently in each status
	TaskStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crawler_task_status",
			Help: "Current number of task stages by stage name and status",
		},
		[]string{"stage", "status"},
	)

	// TaskStageDuration measures per-stage latency
	TaskStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawler_task_stage_duration_seconds",
			Help:    "Time taken for each task stage",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
		[]string{"stage"},
	)

	// BatchFlushes counts inserter batch flushes by result
	BatchFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_batch_flushes_total",
			Help: "Total number of batch flushes",
		},
		[]string{"result"},
	)

	// BatchSize tracks the size distribution of flushed batches
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawler_batch_size",
			Help:    "Number of tasks per flushed batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// ActiveWorkers tracks the number of running worker loops
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawler_active_workers",
			Help: "Number of active workers",
		},
	)
)
