package queue

import (
	"context"

	"github.com/google/uuid"
)

// TaskInfo describes the task a handler is currently running.
type TaskInfo struct {
	ID          uuid.UUID
	Key         string
	Queue       string
	Name        string
	Attempt     int
	MaxAttempts int
}

// LastAttempt reports whether a failure of the running attempt exhausts the task.
func (i TaskInfo) LastAttempt() bool {
	return i.Attempt >= i.MaxAttempts
}

type taskInfoKey struct{}

// WithTaskInfo returns a copy of ctx carrying info.
func WithTaskInfo(ctx context.Context, info TaskInfo) context.Context {
	return context.WithValue(ctx, taskInfoKey{}, info)
}

// TaskInfoFromContext returns the TaskInfo stored by the worker, if any.
func TaskInfoFromContext(ctx context.Context) (TaskInfo, bool) {
	info, ok := ctx.Value(taskInfoKey{}).(TaskInfo)
	return info, ok
}

func taskInfoOf(task *Task) TaskInfo {
	return TaskInfo{
		ID:          task.ID,
		Key:         task.Key,
		Queue:       task.Queue,
		Name:        task.TaskName,
		Attempt:     task.Attempts,
		MaxAttempts: task.MaxAttempts,
	}
}
