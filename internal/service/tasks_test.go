package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskManagerStatuses(t *testing.T) {
	m := NewTaskManager(10, time.Second, nil)

	ok := m.Go(context.Background(), TaskMessage, "lobby", "m1", func(context.Context, *Task) error { return nil })
	failed := m.Go(context.Background(), TaskMessage, "lobby", "m2", func(context.Context, *Task) error { return errors.New("boom") })
	panicked := m.Go(context.Background(), TaskRecheck, "lobby", "", func(context.Context, *Task) error { panic("oops") })
	m.Wait()

	assert.Equal(t, TaskStatusCompleted, m.GetTask(ok.ID).Snapshot().Status)

	snap := m.GetTask(failed.ID).Snapshot()
	assert.Equal(t, TaskStatusFailed, snap.Status)
	assert.Equal(t, "boom", snap.Error)

	snap = m.GetTask(panicked.ID).Snapshot()
	assert.Equal(t, TaskStatusFailed, snap.Status)
	assert.Contains(t, snap.Error, "oops")
	assert.NotNil(t, snap.CompletedAt)
}

func TestTaskManagerTimeout(t *testing.T) {
	m := NewTaskManager(10, 10*time.Millisecond, nil)

	task := m.Go(context.Background(), TaskMessage, "lobby", "m1", func(ctx context.Context, _ *Task) error {
		<-ctx.Done()
		return ctx.Err()
	})
	m.Wait()

	assert.Contains(t, task.Snapshot().Error, context.DeadlineExceeded.Error())
}

func TestTaskManagerPrunesHistory(t *testing.T) {
	m := NewTaskManager(2, 0, nil)
	for range 5 {
		m.Go(context.Background(), TaskParticipant, "lobby", "u", func(context.Context, *Task) error { return nil })
		time.Sleep(time.Millisecond)
	}
	m.Wait()

	tasks := m.ListTasks()
	require.Len(t, tasks, 2)
	assert.False(t, tasks[0].StartedAt.Before(tasks[1].StartedAt))
}

func TestTaskManagerRejectsAfterWait(t *testing.T) {
	m := NewTaskManager(10, 0, nil)
	m.Wait()
	assert.Nil(t, m.Go(context.Background(), TaskMessage, "lobby", "m1", func(context.Context, *Task) error { return nil }))
}
