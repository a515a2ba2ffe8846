package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskKind names the work a task performs.
type TaskKind string

const (
	TaskMessage     TaskKind = "message"
	TaskRecheck     TaskKind = "recheck"
	TaskParticipant TaskKind = "participant"
)

// TaskStatus represents the state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Task is one unit of orchestration work started by a change notification or a re-check.
type Task struct {
	ID          string     `json:"id"`
	Kind        TaskKind   `json:"kind"`
	RoomID      string     `json:"room_id"`
	Subject     string     `json:"subject"` // Message id or user id the task is about
	Status      TaskStatus `json:"status"`
	Outcome     string     `json:"outcome,omitempty"` // Decision outcome or other short result
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	mu sync.RWMutex
}

// TaskManager runs tasks in their own goroutines and keeps a bounded history.
type TaskManager struct {
	tasks   map[string]*Task
	mu      sync.RWMutex
	wg      sync.WaitGroup
	closed  bool
	history int
	timeout time.Duration
	logger  *slog.Logger
}

// NewTaskManager creates a task manager. history bounds how many finished tasks are kept;
// timeout bounds each task, 0 means no limit.
func NewTaskManager(history int, timeout time.Duration, logger *slog.Logger) *TaskManager {
	if history <= 0 {
		history = 200
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskManager{
		tasks:   make(map[string]*Task),
		history: history,
		timeout: timeout,
		logger:  logger,
	}
}

// Go starts fn as a new task. It returns nil once the manager is closed.
func (m *TaskManager) Go(ctx context.Context, kind TaskKind, roomID, subject string, fn func(ctx context.Context, t *Task) error) *Task {
	task := &Task{
		ID:        uuid.New().String()[:8],
		Kind:      kind,
		RoomID:    roomID,
		Subject:   subject,
		Status:    TaskStatusPending,
		StartedAt: time.Now(),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.tasks[task.ID] = task
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("task panicked", "task_id", task.ID, "kind", kind, "panic", r)
				m.fail(task, fmt.Errorf("internal panic: %v", r))
			}
			m.prune()
		}()

		taskCtx := ctx
		if m.timeout > 0 {
			var cancel context.CancelFunc
			taskCtx, cancel = context.WithTimeout(ctx, m.timeout)
			defer cancel()
		}

		task.mu.Lock()
		task.Status = TaskStatusRunning
		task.mu.Unlock()

		if err := fn(taskCtx, task); err != nil {
			m.fail(task, err)
			return
		}
		m.complete(task)
	}()

	return task
}

// Wait stops accepting tasks and blocks until running tasks finish.
func (m *TaskManager) Wait() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wg.Wait()
}

// GetTask retrieves a task by ID.
func (m *TaskManager) GetTask(id string) *Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tasks[id]
}

// ListTasks returns snapshots of all known tasks, most recent first.
func (m *TaskManager) ListTasks() []Task {
	m.mu.RLock()
	tasks := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	m.mu.RUnlock()

	slices.SortFunc(tasks, func(a, b *Task) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Snapshot()
	}
	return out
}

// Counts returns the number of known tasks per status.
func (m *TaskManager) Counts() map[TaskStatus]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[TaskStatus]int)
	for _, t := range m.tasks {
		t.mu.RLock()
		counts[t.Status]++
		t.mu.RUnlock()
	}
	return counts
}

func (m *TaskManager) complete(task *Task) {
	task.mu.Lock()
	task.Status = TaskStatusCompleted
	now := time.Now()
	task.CompletedAt = &now
	elapsed := now.Sub(task.StartedAt)
	task.mu.Unlock()

	m.logger.Debug("task completed", "task_id", task.ID, "kind", task.Kind, "room_id", task.RoomID, "duration_ms", elapsed.Milliseconds())
}

func (m *TaskManager) fail(task *Task, err error) {
	task.mu.Lock()
	task.Status = TaskStatusFailed
	task.Error = err.Error()
	now := time.Now()
	task.CompletedAt = &now
	task.mu.Unlock()

	m.logger.Error("task failed", "task_id", task.ID, "kind", task.Kind, "room_id", task.RoomID, "error", err)
}

// prune drops the oldest finished tasks beyond the history bound.
func (m *TaskManager) prune() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var finished []*Task
	for _, t := range m.tasks {
		t.mu.RLock()
		done := t.CompletedAt != nil
		t.mu.RUnlock()
		if done {
			finished = append(finished, t)
		}
	}
	if len(finished) <= m.history {
		return
	}

	slices.SortFunc(finished, func(a, b *Task) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	for _, t := range finished[:len(finished)-m.history] {
		delete(m.tasks, t.ID)
	}
}

// SetOutcome records a short result on the task.
func (t *Task) SetOutcome(outcome string) {
	t.mu.Lock()
	t.Outcome = outcome
	t.mu.Unlock()
}

// Snapshot returns a thread-safe copy of task state.
func (t *Task) Snapshot() Task {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Task{
		ID:          t.ID,
		Kind:        t.Kind,
		RoomID:      t.RoomID,
		Subject:     t.Subject,
		Status:      t.Status,
		Outcome:     t.Outcome,
		Error:       t.Error,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}
