package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements all queue repository interfaces for testing and local development
type MemoryStorage struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*Task
	keys  map[string]uuid.UUID
	dead  []*DeadTask

	byStatus map[TaskStatus][]uuid.UUID

	lockTicker *time.Ticker
	done       chan struct{}
	closeOnce  sync.Once
}

// NewMemoryStorage creates a new in-memory storage implementation
func NewMemoryStorage() *MemoryStorage {
	ms := &MemoryStorage{
		tasks:    make(map[uuid.UUID]*Task),
		keys:     make(map[string]uuid.UUID),
		byStatus: make(map[TaskStatus][]uuid.UUID),
		done:     make(chan struct{}),
	}

	ms.lockTicker = time.NewTicker(time.Second)
	go ms.lockExpirationManager()

	return ms
}

// Close stops the background goroutines
func (ms *MemoryStorage) Close() error {
	ms.closeOnce.Do(func() {
		close(ms.done)
		ms.lockTicker.Stop()
	})
	return nil
}

// CreateTask implements EnqueuerRepository and SchedulerRepository
func (ms *MemoryStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %s already exists", task.ID)
	}

	if task.Key != "" {
		if _, held := ms.keys[task.Key]; held {
			return ErrDuplicateTask
		}
		ms.keys[task.Key] = task.ID
	}

	taskCopy := *task
	ms.tasks[task.ID] = &taskCopy
	ms.byStatus[task.Status] = append(ms.byStatus[task.Status], task.ID)

	return nil
}

// ClaimTask implements WorkerRepository
func (ms *MemoryStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var bestTask *Task

	// Priority first, earliest scheduled time second.
	for _, taskID := range ms.byStatus[TaskStatusPending] {
		task := ms.tasks[taskID]

		if !slices.Contains(queues, task.Queue) {
			continue
		}

		if task.ScheduledAt.After(now) {
			continue
		}

		if bestTask == nil ||
			task.Priority > bestTask.Priority ||
			(task.Priority == bestTask.Priority && task.ScheduledAt.Before(bestTask.ScheduledAt)) {
			bestTask = task
		}
	}

	if bestTask == nil {
		return nil, ErrNoTaskToClaim
	}

	lockUntil := now.Add(lockDuration)
	bestTask.Status = TaskStatusProcessing
	bestTask.LockedUntil = &lockUntil
	bestTask.LockedBy = &workerID
	if !bestTask.Exhausted {
		bestTask.Attempts++
	}

	ms.moveStatus(bestTask.ID, TaskStatusPending, TaskStatusProcessing)

	taskCopy := *bestTask
	return &taskCopy, nil
}

// CompleteTask implements WorkerRepository
func (ms *MemoryStorage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processingTask(taskID)
	if err != nil {
		return err
	}

	now := time.Now()
	task.Status = TaskStatusCompleted
	task.ProcessedAt = &now
	task.LockedUntil = nil
	task.LockedBy = nil

	ms.moveStatus(taskID, TaskStatusProcessing, TaskStatusCompleted)
	ms.releaseKey(task)

	return nil
}

// FailTask implements WorkerRepository
func (ms *MemoryStorage) FailTask(ctx context.Context, taskID uuid.UUID, f Failure) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processingTask(taskID)
	if err != nil {
		return err
	}

	task.Status = TaskStatusPending
	task.LastError = f.Error
	task.ScheduledAt = f.RetryAt
	task.Exhausted = task.Exhausted || f.Exhausted
	task.LockedUntil = nil
	task.LockedBy = nil

	ms.moveStatus(taskID, TaskStatusProcessing, TaskStatusPending)

	return nil
}

// MoveToDLQ implements WorkerRepository
func (ms *MemoryStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, exists := ms.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	if errorMsg == "" {
		errorMsg = task.LastError
	}

	ms.dead = append(ms.dead, &DeadTask{
		ID:       uuid.New(),
		TaskID:   task.ID,
		Key:      task.Key,
		Queue:    task.Queue,
		TaskName: task.TaskName,
		Payload:  task.Payload,
		Error:    errorMsg,
		Attempts: task.Attempts,
		FailedAt: time.Now(),
	})

	ms.removeFromStatusIndex(taskID, task.Status)
	ms.releaseKey(task)
	delete(ms.tasks, taskID)

	return nil
}

// Stats implements Inspector
func (ms *MemoryStorage) Stats(ctx context.Context, queue string) (Stats, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	s := Stats{Queue: queue}
	for _, task := range ms.tasks {
		if task.Queue != queue {
			continue
		}
		switch task.Status {
		case TaskStatusPending:
			s.Pending++
		case TaskStatusProcessing:
			s.Processing++
		}
	}
	for _, d := range ms.dead {
		if d.Queue == queue {
			s.Dead++
		}
	}
	return s, nil
}

// ListDead implements Inspector, newest first
func (ms *MemoryStorage) ListDead(ctx context.Context, queue string, limit int) ([]DeadTask, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var out []DeadTask
	for i := len(ms.dead) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if ms.dead[i].Queue == queue {
			out = append(out, *ms.dead[i])
		}
	}
	return out, nil
}

// GetTask returns a copy of the task with the given ID.
func (ms *MemoryStorage) GetTask(ctx context.Context, taskID uuid.UUID) (*Task, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	task, exists := ms.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	taskCopy := *task
	return &taskCopy, nil
}

// GetTaskByKey returns a copy of the live task holding key.
func (ms *MemoryStorage) GetTaskByKey(ctx context.Context, key string) (*Task, error) {
	ms.mu.RLock()
	id, held := ms.keys[key]
	ms.mu.RUnlock()
	if !held {
		return nil, fmt.Errorf("%w: key %s", ErrTaskNotFound, key)
	}
	return ms.GetTask(ctx, id)
}

func (ms *MemoryStorage) processingTask(taskID uuid.UUID) (*Task, error) {
	task, exists := ms.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if task.Status != TaskStatusProcessing {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotProcessing, taskID)
	}
	return task, nil
}

func (ms *MemoryStorage) releaseKey(task *Task) {
	if task.Key != "" && ms.keys[task.Key] == task.ID {
		delete(ms.keys, task.Key)
	}
}

func (ms *MemoryStorage) moveStatus(taskID uuid.UUID, from, to TaskStatus) {
	ms.removeFromStatusIndex(taskID, from)
	ms.byStatus[to] = append(ms.byStatus[to], taskID)
}

func (ms *MemoryStorage) removeFromStatusIndex(taskID uuid.UUID, status TaskStatus) {
	ms.byStatus[status] = slices.DeleteFunc(ms.byStatus[status], func(id uuid.UUID) bool {
		return id == taskID
	})
}

// lockExpirationManager returns tasks held by crashed or stalled workers to
// pending once their lock runs out.
func (ms *MemoryStorage) lockExpirationManager() {
	for {
		select {
		case <-ms.lockTicker.C:
			ms.expireLocks()
		case <-ms.done:
			return
		}
	}
}

func (ms *MemoryStorage) expireLocks() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	for _, taskID := range slices.Clone(ms.byStatus[TaskStatusProcessing]) {
		task := ms.tasks[taskID]
		if task.LockedUntil != nil && task.LockedUntil.Before(now) {
			task.Status = TaskStatusPending
			task.LockedUntil = nil
			task.LockedBy = nil
			ms.moveStatus(taskID, TaskStatusProcessing, TaskStatusPending)
		}
	}
}
