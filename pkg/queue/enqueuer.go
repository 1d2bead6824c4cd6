package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository defines the interface for task creation.
// CreateTask must return ErrDuplicateTask when task.Key is non-empty and a
// pending or processing task already holds it.
type EnqueuerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
}

// Enqueuer handles task enqueueing
type Enqueuer struct {
	repo               EnqueuerRepository
	defaultQueue       string
	defaultPriority    Priority
	defaultMaxAttempts int
}

// NewEnqueuer creates a new Enqueuer
func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &enqueuerOptions{
		defaultQueue:       DefaultQueueName,
		defaultPriority:    PriorityDefault,
		defaultMaxAttempts: DefaultMaxAttempts,
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Enqueuer{
		repo:               repo,
		defaultQueue:       options.defaultQueue,
		defaultPriority:    options.defaultPriority,
		defaultMaxAttempts: options.defaultMaxAttempts,
	}, nil
}

// Enqueue adds a new task to the queue.
// Enqueueing a keyed task whose key is already live is a successful no-op.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) error {
	_, err := e.TryEnqueue(ctx, payload, opts...)
	return err
}

// TryEnqueue adds a new task to the queue and reports whether it was created.
// It returns false with a nil error when a live task already holds the key.
func (e *Enqueuer) TryEnqueue(ctx context.Context, payload any, opts ...EnqueueOption) (bool, error) {
	if payload == nil {
		return false, ErrPayloadNil
	}

	options := &enqueueOptions{
		queue:       e.defaultQueue,
		priority:    e.defaultPriority,
		maxAttempts: e.defaultMaxAttempts,
	}

	for _, opt := range opts {
		opt(options)
	}

	if !options.priority.Valid() {
		return false, ErrInvalidPriority
	}

	task, err := e.buildTask(payload, options)
	if err != nil {
		return false, err
	}

	if err := e.repo.CreateTask(ctx, task); err != nil {
		if errors.Is(err, ErrDuplicateTask) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create task %q in queue %q: %w", task.TaskName, task.Queue, errors.Join(ErrTaskCreate, err))
	}

	return true, nil
}

// buildTask constructs a Task from payload and options
func (e *Enqueuer) buildTask(payload any, options *enqueueOptions) (*Task, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload of type %T: %w", payload, errors.Join(ErrPayloadMarshal, err))
	}

	taskName := options.taskName
	if taskName == "" {
		taskName = taskNameOf(payload)
	}

	now := time.Now()
	scheduledAt := now
	if options.scheduledAt != nil {
		scheduledAt = *options.scheduledAt
	} else if options.delay > 0 {
		scheduledAt = scheduledAt.Add(options.delay)
	}

	return &Task{
		ID:          uuid.New(),
		Key:         options.key,
		Queue:       options.queue,
		TaskType:    TaskTypeOneTime,
		TaskName:    taskName,
		Payload:     payloadBytes,
		Status:      TaskStatusPending,
		Priority:    options.priority,
		MaxAttempts: options.maxAttempts,
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
	}, nil
}
