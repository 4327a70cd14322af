// Package task implements the staged task model used by the crawler core.
//
// A task carries an append-only log of stages. The status of the task is the
// status of its last stage; retries leave their failed stages behind so the
// full processing history stays visible through the admin API.
package task

import (
	"log/slog"
	"time"

	"github.com/castpipe/castpipe/internal/metrics"
)

// StageStatus is the status of a single stage.
type StageStatus string

const (
	StatusPending    StageStatus = "pending"
	StatusInProgress StageStatus = "in_progress"
	StatusCompleted  StageStatus = "completed"
	StatusFailed     StageStatus = "failed"
)

// Stage names form a fixed set; the core never invents others at runtime.
const (
	StageDistribution = "distribution"
	StageFetching     = "fetching"
	StageParsing      = "parsing"
	StageInserting    = "inserting"
)

// Stage is one phase of processing within a task.
type Stage struct {
	Name          string      `json:"name"`
	Status        StageStatus `json:"status"`
	StartTime     time.Time   `json:"start_time"`
	CompletedTime time.Time   `json:"completed_time,omitempty"`
	ResultData    any         `json:"result_data,omitempty"`
	ErrorMessage  string      `json:"error_message,omitempty"`
}

// Task is one unit of ingestion work.
type Task struct {
	ID             uint64    `json:"id"`
	TargetWorkerID int       `json:"target_worker_id"`
	Payload        string    `json:"payload"`
	Content        []byte    `json:"-"`
	Retries        int       `json:"retries"`
	MaxRetries     int       `json:"max_retries"`
	BackoffUntil   time.Time `json:"backoff_until,omitempty"`
	Stages         []Stage   `json:"stages"`
	Shutdown       bool      `json:"shutdown"`
}

// New creates a task with no stages. Its status is pending until the
// distributor appends the distribution stage.
func New(id uint64, payload string, maxRetries int) *Task {
	return &Task{
		ID:         id,
		Payload:    payload,
		MaxRetries: maxRetries,
	}
}

// AddStage appends a stage in progress. Calling it on a completed task, on a
// failed task carrying the shutdown flag, or while another stage is still in
// progress is logged and dropped. Any other failed task accepts the new stage,
// which is how a fetch retry opens its next fetching stage.
func (t *Task) AddStage(name string) {
	if last := t.lastStage(); last != nil && last.Status == StatusInProgress {
		slog.Warn("Stage already in progress, dropping add_stage",
			"task_id", t.ID, "current_stage", last.Name, "requested_stage", name)
		return
	}
	if t.Completed() || (t.Failed() && t.Shutdown) {
		slog.Debug("Task is terminal, dropping add_stage", "task_id", t.ID, "stage", name)
		return
	}
	t.Stages = append(t.Stages, Stage{
		Name:      name,
		Status:    StatusInProgress,
		StartTime: time.Now(),
	})
	metrics.TaskStatus.WithLabelValues(name, string(StatusInProgress)).Inc()
}

// CompleteStage marks the last stage completed and attaches its result data.
func (t *Task) CompleteStage(resultData any) {
	stage := t.lastStage()
	if stage == nil || stage.Status != StatusInProgress {
		slog.Debug("No stage in progress to complete", "task_id", t.ID)
		return
	}
	metrics.TaskStatus.WithLabelValues(stage.Name, string(StatusInProgress)).Dec()

	stage.Status = StatusCompleted
	stage.ResultData = resultData
	stage.CompletedTime = time.Now()
	metrics.TaskStageDuration.WithLabelValues(stage.Name).
		Observe(stage.CompletedTime.Sub(stage.StartTime).Seconds())
	metrics.TaskStatus.WithLabelValues(stage.Name, string(StatusCompleted)).Inc()

	switch stage.Name {
	case StageDistribution:
		metrics.SubmittedTasks.Inc()
	case StageInserting:
		metrics.ProcessedTasks.Inc()
	}
}

// FailStage marks the last stage failed with the given message. On a task that
// already reached a terminal state this logs and drops.
func (t *Task) FailStage(errorMessage string) {
	stage := t.lastStage()
	if stage == nil {
		slog.Debug("No stage to fail", "task_id", t.ID)
		return
	}
	if stage.Status != StatusInProgress {
		slog.Debug("Stage not in progress, dropping fail_stage",
			"task_id", t.ID, "stage", stage.Name, "status", stage.Status)
		return
	}
	metrics.TaskStatus.WithLabelValues(stage.Name, string(StatusInProgress)).Dec()

	stage.Status = StatusFailed
	stage.ErrorMessage = errorMessage
	stage.CompletedTime = time.Now()
	metrics.TaskStageDuration.WithLabelValues(stage.Name).
		Observe(stage.CompletedTime.Sub(stage.StartTime).Seconds())
	metrics.TaskStatus.WithLabelValues(stage.Name, string(StatusFailed)).Inc()
	metrics.FailedTasks.Inc()
}

// Status returns the status of the last stage, or pending when no stage exists.
func (t *Task) Status() StageStatus {
	if last := t.lastStage(); last != nil {
		return last.Status
	}
	return StatusPending
}

// StageResult returns the result data of the first completed stage with the
// given name.
func (t *Task) StageResult(name string) (any, bool) {
	for i := range t.Stages {
		if t.Stages[i].Name == name && t.Stages[i].Status == StatusCompleted {
			return t.Stages[i].ResultData, true
		}
	}
	return nil, false
}

// StageError returns the error message of the last stage, if any.
func (t *Task) StageError() string {
	if last := t.lastStage(); last != nil {
		return last.ErrorMessage
	}
	return ""
}

// Completed reports whether the task finished the full pipeline.
func (t *Task) Completed() bool {
	last := t.lastStage()
	return last != nil && last.Name == StageInserting && last.Status == StatusCompleted
}

// Failed reports whether the last stage failed.
func (t *Task) Failed() bool {
	return t.Status() == StatusFailed
}

// RetryPending reports whether the task failed its last fetch but has a retry
// in flight. The worker clears BackoffUntil when it begins re-processing, so a
// failed fetch with a backoff deadline still set is either waiting in the
// timer heap or back on the bus.
func (t *Task) RetryPending() bool {
	last := t.lastStage()
	return last != nil && last.Status == StatusFailed &&
		last.Name == StageFetching && !t.BackoffUntil.IsZero() && !t.Shutdown
}

// Terminal reports whether the task reached a state it will never leave:
// a completed inserting stage, or a failure with no retry pending.
func (t *Task) Terminal() bool {
	if t.Completed() {
		return true
	}
	return t.Failed() && !t.RetryPending()
}

// Clone returns a deep copy safe to hand across goroutines.
func (t *Task) Clone() *Task {
	c := *t
	c.Stages = make([]Stage, len(t.Stages))
	copy(c.Stages, t.Stages)
	if t.Content != nil {
		c.Content = make([]byte, len(t.Content))
		copy(c.Content, t.Content)
	}
	return &c
}

func (t *Task) lastStage() *Stage {
	if len(t.Stages) == 0 {
		return nil
	}
	return &t.Stages[len(t.Stages)-1]
}
