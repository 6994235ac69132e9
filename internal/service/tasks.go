// Package service orchestrates uploads, conversations, chat and study material
// on top of the session store, the backend client and persistence.
package service

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
)

// TaskStatus represents the state of a background task.
type TaskStatus string

const (
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Task is a best-effort background step such as history reconciliation or
// auto-naming. Failures are recorded and logged, never surfaced or retried.
type Task struct {
	ID          string
	Kind        string // "reconcile", "autoname"
	Subject     string // conversation id
	Status      TaskStatus
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time

	mu sync.RWMutex
}

// Snapshot returns a thread-safe copy of task state.
func (t *Task) Snapshot() Task {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Task{
		ID:          t.ID,
		Kind:        t.Kind,
		Subject:     t.Subject,
		Status:      t.Status,
		Error:       t.Error,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}

func (t *Task) finish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.CompletedAt = &now
	if err != nil {
		t.Status = TaskStatusFailed
		t.Error = err.Error()
		return
	}
	t.Status = TaskStatusCompleted
}

// TaskRunner runs and tracks background tasks.
type TaskRunner struct {
	logger *slog.Logger
	wg     conc.WaitGroup

	mu    sync.RWMutex
	tasks map[string]*Task

	// ctx outlives the request that spawned a task; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewTaskRunner creates a task runner.
func NewTaskRunner(logger *slog.Logger) *TaskRunner {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskRunner{
		logger: logger,
		tasks:  make(map[string]*Task),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go starts fn in the background. fn receives a context that is cancelled by Close.
func (r *TaskRunner) Go(kind, subject string, fn func(ctx context.Context) error) *Task {
	task := &Task{
		ID:        uuid.New().String()[:8], // Short ID for display
		Kind:      kind,
		Subject:   subject,
		Status:    TaskStatusRunning,
		StartedAt: time.Now(),
	}

	r.mu.Lock()
	r.tasks[task.ID] = task
	r.mu.Unlock()

	r.wg.Go(func() {
		err := fn(r.ctx)
		task.finish(err)
		if err != nil {
			r.logger.Warn("background task failed", "task_id", task.ID, "kind", kind, "subject", subject, "error", err)
			return
		}
		r.logger.Debug("background task completed", "task_id", task.ID, "kind", kind, "subject", subject)
	})
	return task
}

// ListTasks returns all tasks, most recent first.
func (r *TaskRunner) ListTasks() []Task {
	r.mu.RLock()
	tasks := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		tasks = append(tasks, t.Snapshot())
	}
	r.mu.RUnlock()

	slices.SortFunc(tasks, func(a, b Task) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return tasks
}

// Running returns the number of tasks still in flight.
func (r *TaskRunner) Running() int {
	n := 0
	for _, t := range r.ListTasks() {
		if t.Status == TaskStatusRunning {
			n++
		}
	}
	return n
}

// Wait blocks until every started task has returned.
func (r *TaskRunner) Wait() {
	r.wg.Wait()
}

// Close cancels running tasks and waits for them.
func (r *TaskRunner) Close() {
	r.cancel()
	r.wg.Wait()
}
