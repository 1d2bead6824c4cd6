package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// WorkerRepository defines the interface for worker operations
type WorkerRepository interface {
	// ClaimTask atomically claims the next available task and increments its
	// Attempts unless the task is already exhausted.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)

	// CompleteTask marks task as completed and releases its key
	CompleteTask(ctx context.Context, taskID uuid.UUID) error

	// FailTask records the failure and returns the task to pending at f.RetryAt
	FailTask(ctx context.Context, taskID uuid.UUID, f Failure) error

	// MoveToDLQ moves task to the dead letter set and releases its key
	MoveToDLQ(ctx context.Context, taskID uuid.UUID, errorMsg string) error
}

// Task outcomes reported to a TaskObserver.
const (
	OutcomeCompleted        = "completed"
	OutcomeRetried          = "retried"
	OutcomeDead             = "dead"
	OutcomeEscalationFailed = "escalation_failed"
)

// TaskObserver is notified after every processed task.
type TaskObserver func(info TaskInfo, outcome string, duration time.Duration)

// Worker processes tasks from the queue
type Worker struct {
	repo     WorkerRepository
	handlers map[string]Handler
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}
	wake     chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopMu   sync.Mutex // guards stopping and wg.Add

	pullInterval time.Duration
	lockTimeout  time.Duration
	backoff      BackoffStrategy
	observer     TaskObserver
	logger       *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

// NewWorker creates a new task worker
func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &workerOptions{
		queues:             []string{DefaultQueueName},
		pullInterval:       time.Second,
		lockTimeout:        5 * time.Minute,
		maxConcurrentTasks: 5,
		backoff:            DefaultBackoffStrategy(),
		logger:             slog.Default(),
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Worker{
		repo:         repo,
		handlers:     make(map[string]Handler),
		queues:       options.queues,
		workerID:     uuid.New(),
		sem:          make(chan struct{}, options.maxConcurrentTasks),
		wake:         make(chan struct{}, 1),
		pullInterval: options.pullInterval,
		lockTimeout:  options.lockTimeout,
		backoff:      options.backoff,
		observer:     options.observer,
		logger:       options.logger,
	}, nil
}

// RegisterHandler registers a single task handler
func (w *Worker) RegisterHandler(handler Handler) error {
	if handler == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.handlers[handler.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrTaskAlreadyRegistered, handler.Name())
	}
	w.handlers[handler.Name()] = handler
	return nil
}

// RegisterHandlers registers multiple task handlers
func (w *Worker) RegisterHandlers(handlers ...Handler) error {
	for _, h := range handlers {
		if err := w.RegisterHandler(h); err != nil {
			return err
		}
	}
	return nil
}

// Start begins processing tasks in the background
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return ErrWorkerAlreadyStarted
	}

	if len(w.handlers) == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)

	w.wg.Add(1)
	go w.run()

	w.logger.Info("worker started",
		slog.String("worker_id", w.workerID.String()),
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))

	return nil
}

// Stop gracefully shuts down the worker, waiting for in-flight tasks.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	w.logger.Info("worker stopping, waiting for active tasks to complete",
		slog.String("worker_id", w.workerID.String()))

	w.wg.Wait()

	w.logger.Info("worker stopped",
		slog.String("worker_id", w.workerID.String()))

	return nil
}

// Run starts the worker and returns a function suitable for errgroup
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		return w.Stop()
	}
}

// run is the main processing loop. Every tick, and every time a task
// finishes, it claims tasks until the queue is drained or all slots are busy.
func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		case <-w.wake:
		}
		w.fill()
	}
}

func (w *Worker) fill() {
	for {
		select {
		case w.sem <- struct{}{}:
		default:
			w.logger.Debug("all worker slots busy",
				slog.String("worker_id", w.workerID.String()))
			return
		}

		w.stopMu.Lock()
		if w.stopping.Load() {
			w.stopMu.Unlock()
			<-w.sem
			return
		}
		w.wg.Add(1)
		w.stopMu.Unlock()

		task, err := w.claim()
		if err != nil || task == nil {
			<-w.sem
			w.wg.Done()
			if err != nil {
				w.logger.Error("failed to claim task",
					slog.String("worker_id", w.workerID.String()),
					slog.String("error", err.Error()))
			}
			return
		}

		go func() {
			defer w.wg.Done()
			defer func() {
				<-w.sem
				select {
				case w.wake <- struct{}{}:
				default:
				}
			}()

			if err := w.processTask(task); err != nil && !errors.Is(err, ErrHandlerNotFound) {
				w.logger.Error("failed to process task",
					slog.String("worker_id", w.workerID.String()),
					slog.String("task_id", task.ID.String()),
					slog.String("error", err.Error()))
			}
		}()
	}
}

// claim returns the next task or nil when there is nothing to do.
func (w *Worker) claim() (*Task, error) {
	task, err := w.repo.ClaimTask(w.ctx, w.workerID, w.queues, w.lockTimeout)
	if err != nil {
		if errors.Is(err, ErrNoTaskToClaim) || errors.Is(err, context.Canceled) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	if task != nil {
		w.logger.Debug("claimed task",
			slog.String("worker_id", w.workerID.String()),
			slog.String("task_id", task.ID.String()),
			slog.String("task_name", task.TaskName),
			slog.String("queue", task.Queue),
			slog.Int("attempt", task.Attempts))
	}
	return task, nil
}

// processTask executes a task with its handler
func (w *Worker) processTask(task *Task) (retErr error) {
	start := time.Now()

	// The handler context outlives worker cancellation so in-flight tasks can
	// finish during graceful shutdown.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(w.ctx), w.lockTimeout)
	defer cancel()
	ctx = WithTaskInfo(ctx, taskInfoOf(task))

	w.mu.RLock()
	handler, ok := w.handlers[task.TaskName]
	w.mu.RUnlock()

	if !ok {
		return w.handleMissingHandler(ctx, task)
	}

	if task.budgetSpent() {
		cause := errors.New(task.LastError)
		if task.LastError == "" {
			cause = errors.New("attempts exhausted")
		}
		return w.escalate(ctx, task, handler, cause, time.Since(start))
	}

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("handler panicked",
				slog.String("worker_id", w.workerID.String()),
				slog.String("task_id", task.ID.String()),
				slog.String("task_name", task.TaskName),
				slog.Any("panic", r))
			retErr = w.handleTaskFailure(ctx, task, handler, fmt.Errorf("panic in handler: %v", r), time.Since(start))
		}
	}()

	if err := handler.Handle(ctx, task.Payload); err != nil {
		return w.handleTaskFailure(ctx, task, handler, err, time.Since(start))
	}

	return w.handleTaskSuccess(ctx, task, time.Since(start))
}

// handleMissingHandler moves tasks with no registered handler straight to the
// dead letter set since no retry can succeed.
func (w *Worker) handleMissingHandler(ctx context.Context, task *Task) error {
	w.logger.Error("no handler registered for task type",
		slog.String("worker_id", w.workerID.String()),
		slog.String("task_id", task.ID.String()),
		slog.String("task_name", task.TaskName))

	if err := w.repo.MoveToDLQ(ctx, task.ID, "no handler registered for task type: "+task.TaskName); err != nil {
		return fmt.Errorf("failed to move task %s to DLQ: %w", task.ID, errors.Join(ErrFailedToMoveToDLQ, err))
	}

	return ErrHandlerNotFound
}

// handleTaskFailure schedules a retry with backoff while the task has
// attempts left, and escalates it otherwise.
func (w *Worker) handleTaskFailure(ctx context.Context, task *Task, handler Handler, execErr error, duration time.Duration) error {
	permanent := IsPermanent(execErr)

	w.logger.Error("task failed",
		slog.String("worker_id", w.workerID.String()),
		slog.String("task_id", task.ID.String()),
		slog.String("task_name", task.TaskName),
		slog.Int("attempt", task.Attempts),
		slog.Int("max_attempts", task.MaxAttempts),
		slog.Bool("permanent", permanent),
		slog.Duration("duration", duration),
		slog.String("error", execErr.Error()))

	if permanent || task.Attempts >= task.MaxAttempts {
		return w.escalate(ctx, task, handler, execErr, duration)
	}

	retryAt := time.Now().Add(w.backoff.NextInterval(task.Attempts))
	if err := w.repo.FailTask(ctx, task.ID, Failure{Error: execErr.Error(), RetryAt: retryAt}); err != nil {
		return fmt.Errorf("failed to update task %s status to failed: %w", task.ID, errors.Join(ErrFailedToUpdateTaskStatus, err))
	}

	w.observe(task, OutcomeRetried, duration)
	return nil
}

// escalate runs the exhaustion hook and moves the task to the dead letter set.
// A failing hook keeps the task alive in exhausted mode so that only the
// escalation is retried.
func (w *Worker) escalate(ctx context.Context, task *Task, handler Handler, cause error, duration time.Duration) error {
	if eh, ok := handler.(ExhaustionHandler); ok {
		if err := eh.OnExhausted(ctx, task.Payload, cause); err != nil {
			w.logger.Error("exhaustion handler failed",
				slog.String("worker_id", w.workerID.String()),
				slog.String("task_id", task.ID.String()),
				slog.String("task_name", task.TaskName),
				slog.String("error", err.Error()))

			retryAt := time.Now().Add(w.backoff.NextInterval(task.MaxAttempts))
			if ferr := w.repo.FailTask(ctx, task.ID, Failure{Error: cause.Error(), RetryAt: retryAt, Exhausted: true}); ferr != nil {
				return fmt.Errorf("failed to reschedule escalation of task %s: %w", task.ID, errors.Join(ErrFailedToUpdateTaskStatus, ferr))
			}

			w.observe(task, OutcomeEscalationFailed, duration)
			return nil
		}
	}

	if err := w.repo.MoveToDLQ(ctx, task.ID, cause.Error()); err != nil {
		return fmt.Errorf("failed to move task %s to DLQ after max attempts: %w", task.ID, errors.Join(ErrFailedToMoveToDLQ, err))
	}

	w.logger.Warn("task moved to dead letter queue",
		slog.String("worker_id", w.workerID.String()),
		slog.String("task_id", task.ID.String()),
		slog.String("task_key", task.Key),
		slog.String("task_name", task.TaskName),
		slog.Int("attempts", task.Attempts))

	w.observe(task, OutcomeDead, duration)
	return nil
}

// handleTaskSuccess processes successful task completion
func (w *Worker) handleTaskSuccess(ctx context.Context, task *Task, duration time.Duration) error {
	if err := w.repo.CompleteTask(ctx, task.ID); err != nil {
		return fmt.Errorf("failed to mark task %s as completed: %w", task.ID, errors.Join(ErrFailedToUpdateTaskStatus, err))
	}

	w.logger.Info("task completed successfully",
		slog.String("worker_id", w.workerID.String()),
		slog.String("task_id", task.ID.String()),
		slog.String("task_name", task.TaskName),
		slog.String("queue", task.Queue),
		slog.Int("attempt", task.Attempts),
		slog.Duration("duration", duration))

	w.observe(task, OutcomeCompleted, duration)
	return nil
}

func (w *Worker) observe(task *Task, outcome string, duration time.Duration) {
	if w.observer != nil {
		w.observer(taskInfoOf(task), outcome, duration)
	}
}
