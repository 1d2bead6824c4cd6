// Package queue provides a storage-agnostic, at-least-once task queue with keyed
// deduplication, attempt budgets, exponential backoff and a dead letter set.
//
// The package is organised around three components:
//
//   - Enqueuer   adds one-time tasks, optionally keyed
//   - Scheduler  turns Schedule definitions (intervals, cron) into periodic tasks
//   - Worker     claims due tasks and dispatches them to registered Handlers
//
// Components talk to persistence only through the EnqueuerRepository,
// SchedulerRepository and WorkerRepository interfaces. MemoryStorage backs
// them for tests and single-process setups, RedisStorage for production.
//
// # Delivery semantics
//
// A claimed task is locked for the worker's lock timeout. If the worker dies the
// lock expires and the task becomes claimable again, so handlers must be
// idempotent. While a task with a given Key is pending or processing, creating
// another task with the same key fails with ErrDuplicateTask and Enqueue treats
// that as success.
//
// Every claim increments Task.Attempts. A failed attempt is retried after the
// worker's BackoffStrategy delay until Attempts reaches MaxAttempts (default 3).
// The task is then escalated: handlers implementing ExhaustionHandler receive
// OnExhausted, after which the task moves to the dead letter set. Errors wrapped
// with Permanent skip the remaining attempts.
//
// # Usage
//
//	storage := queue.NewMemoryStorage()
//	defer storage.Close()
//
//	enq, _ := queue.NewEnqueuer(storage)
//	_ = enq.Enqueue(ctx, SendEmail{To: "a@example.com"},
//		queue.WithQueue("email"),
//		queue.WithKey("email:42"),
//	)
//
//	w, _ := queue.NewWorker(storage, queue.WithQueues("email"))
//	_ = w.RegisterHandler(queue.NewTaskHandler(send,
//		queue.OnExhausted(func(ctx context.Context, p SendEmail, cause error) error {
//			return recordFailure(ctx, p, cause)
//		}),
//	))
//
//	g.Go(w.Run(ctx))
//
// Handlers can read the running attempt with TaskInfoFromContext.
package queue
