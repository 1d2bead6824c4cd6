package queue_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/queue"
)

// Example_keyedRetries shows a keyed task that fails on every attempt and is
// escalated once its budget is spent.
func Example_keyedRetries() {
	storage := queue.NewMemoryStorage()
	defer storage.Close()

	type SendEmail struct {
		To string `json:"to"`
	}

	enq, err := queue.NewEnqueuer(storage, queue.WithDefaultQueue("email"))
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	_ = enq.Enqueue(ctx, SendEmail{To: "user@example.com"}, queue.WithKey("email:1"), queue.WithMaxAttempts(2))
	// Same key while the first task is live: ignored.
	_ = enq.Enqueue(ctx, SendEmail{To: "user@example.com"}, queue.WithKey("email:1"))

	w, err := queue.NewWorker(storage,
		queue.WithQueues("email"),
		queue.WithPullInterval(5*time.Millisecond),
		queue.WithBackoff(queue.FixedBackoff{Interval: time.Millisecond}),
		queue.WithWorkerLogger(discardLogger),
	)
	if err != nil {
		panic(err)
	}

	escalated := make(chan struct{})
	_ = w.RegisterHandler(queue.NewTaskHandler(
		func(ctx context.Context, p SendEmail) error {
			info, _ := queue.TaskInfoFromContext(ctx)
			fmt.Printf("attempt %d/%d to %s\n", info.Attempt, info.MaxAttempts, p.To)
			return errors.New("provider unavailable")
		},
		queue.OnExhausted(func(ctx context.Context, p SendEmail, cause error) error {
			fmt.Println("exhausted:", cause)
			close(escalated)
			return nil
		}),
	))

	_ = w.Start(ctx)
	<-escalated
	_ = w.Stop()

	// Output:
	// attempt 1/2 to user@example.com
	// attempt 2/2 to user@example.com
	// exhausted: provider unavailable
}
