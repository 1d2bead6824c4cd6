package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/svc/notify"
)

func TestReconciler_Sweep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := notify.NewMemoryStore()
	storage, enq := newQueue(t)

	// orphan: RECEIVED and old
	seedEvent(t, store, "old", notify.EventReceived, nil)
	// fresh RECEIVED events are still within their grace period
	require.NoError(t, store.CreateEvent(ctx, &notify.Event{
		EventID: "fresh", Status: notify.EventReceived, CreatedAt: fixedNow.Add(9 * time.Minute),
	}))
	seedEvent(t, store, "failed", notify.EventFailed, nil)
	seedEvent(t, store, "done", notify.EventCompleted, nil)

	now := func() time.Time { return fixedNow.Add(10 * time.Minute) }

	t.Run("dry run", func(t *testing.T) {
		r := notify.NewReconciler(store, enq,
			notify.WithReconcilerClock(now),
			notify.WithDryRun(true),
			notify.WithReconcilerLogger(discard),
		)
		res, err := r.Sweep(ctx)
		require.NoError(t, err)
		assert.True(t, res.DryRun)
		assert.Equal(t, []string{"old"}, res.EventIDs)
		assert.Zero(t, res.Requeued)

		stats, err := storage.Stats(ctx, notify.OrchestrationQueue)
		require.NoError(t, err)
		assert.Zero(t, stats.Pending)
	})

	t.Run("requeues orphans and failed", func(t *testing.T) {
		r := notify.NewReconciler(store, enq,
			notify.WithReconcilerClock(now),
			notify.WithReconcileAfter(5*time.Minute),
			notify.WithRetryFailed(true),
			notify.WithReconcilerLogger(discard),
		)
		res, err := r.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Scanned)
		assert.Equal(t, 2, res.Requeued)
		assert.ElementsMatch(t, []string{"old", "failed"}, res.EventIDs)

		// the tasks are still live, so a second sweep adds nothing
		_, err = r.Sweep(ctx)
		require.NoError(t, err)

		stats, err := storage.Stats(ctx, notify.OrchestrationQueue)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Pending)

		_, err = storage.GetTaskByKey(ctx, "old")
		assert.NoError(t, err)
	})
}

func TestReconciler_Handler(t *testing.T) {
	t.Parallel()

	r := notify.NewReconciler(notify.NewMemoryStore(), &recordingEnqueuer{}, notify.WithReconcilerLogger(discard))
	h := r.Handler()
	assert.Equal(t, notify.ReconcileTask, h.Name())
	assert.NoError(t, h.Handle(context.Background(), nil))
}
