package queue

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
)

// SchedulerRepository is where the scheduler puts periodic runs.
// Periodic tasks are keyed by name, so CreateTask returning ErrDuplicateTask
// means the previous run is still queued.
type SchedulerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
}

// PeriodicTaskKey returns the dedupe key used for a periodic task.
func PeriodicTaskKey(name string) string {
	return "periodic:" + name
}

// Scheduler enqueues one run of every registered periodic task ahead of its
// due time. Several scheduler processes may run side by side: the task key
// lets only one of them queue a given run.
type Scheduler struct {
	repo     SchedulerRepository
	interval time.Duration
	logger   *slog.Logger

	mu    sync.RWMutex
	tasks map[string]*periodic
}

type periodic struct {
	name        string
	schedule    Schedule
	queue       string
	priority    Priority
	maxAttempts int
	due         time.Time // scheduled time of the last queued run; zero before the first
}

func NewScheduler(repo SchedulerRepository, opts ...SchedulerOption) (*Scheduler, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	o := &schedulerOptions{checkInterval: 30 * time.Second, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return &Scheduler{
		repo:     repo,
		interval: o.checkInterval,
		logger:   o.logger,
		tasks:    make(map[string]*periodic),
	}, nil
}

// AddTask registers name to run on schedule. A handler with the same name
// must be registered on a worker consuming the task's queue.
func (s *Scheduler) AddTask(name string, schedule Schedule, opts ...SchedulerTaskOption) error {
	o := &schedulerTaskOptions{queue: DefaultQueueName, priority: PriorityDefault, maxAttempts: 1}
	for _, opt := range opts {
		opt(o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; ok {
		return ErrTaskAlreadyRegistered
	}
	s.tasks[name] = &periodic{
		name:        name,
		schedule:    schedule,
		queue:       o.queue,
		priority:    o.priority,
		maxAttempts: o.maxAttempts,
	}
	s.logger.Info("periodic task registered",
		slog.String("task_name", name),
		slog.String("schedule", schedule.String()),
		slog.String("queue", o.queue),
	)
	return nil
}

// RemoveTask stops scheduling name. A run already queued is not removed.
func (s *Scheduler) RemoveTask(name string) {
	s.mu.Lock()
	delete(s.tasks, name)
	s.mu.Unlock()
}

// ListTasks returns the registered task names in order.
func (s *Scheduler) ListTasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Start checks the tasks immediately and then every check interval until ctx
// is done, returning ctx.Err().
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.ListTasks()) == 0 {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

// Run adapts Start for errgroup. Cancellation of ctx is a clean shutdown.
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		if err := s.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.tasks {
		if !p.due.IsZero() && now.Before(p.due) {
			continue
		}
		from := p.due
		if from.IsZero() {
			from = now
		}
		next := p.schedule.Next(from)

		err := s.repo.CreateTask(ctx, &Task{
			ID:          uuid.New(),
			Key:         PeriodicTaskKey(p.name),
			Queue:       p.queue,
			TaskType:    TaskTypePeriodic,
			TaskName:    p.name,
			Status:      TaskStatusPending,
			Priority:    p.priority,
			MaxAttempts: p.maxAttempts,
			ScheduledAt: next,
			CreatedAt:   now,
		})
		switch {
		case err == nil:
			s.logger.Debug("periodic run queued", slog.String("task_name", p.name), slog.Time("scheduled_for", next))
		case errors.Is(err, ErrDuplicateTask):
			// another scheduler or the previous run holds the key; skip this run
			s.logger.Debug("periodic run already queued", slog.String("task_name", p.name))
		default:
			s.logger.Error("failed to queue periodic run", slog.String("task_name", p.name), logger.Error(err))
			continue
		}
		p.due = next
	}
}
