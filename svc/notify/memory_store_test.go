package notify_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/svc/notify"
	"github.com/dmitrymomot/notifyhub/svc/notify/notifytest"
)

func TestMemoryStore_Events(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := notify.NewMemoryStore()
	e := seedEvent(t, s, "e1", notify.EventReceived, map[string]any{"email": "a@x.com"})

	assert.ErrorIs(t, s.CreateEvent(ctx, e), notify.ErrEventExists)

	_, err := s.GetEvent(ctx, "missing")
	assert.ErrorIs(t, err, notify.ErrEventNotFound)

	got, err := s.TransitionEvent(ctx, "e1", notify.EventStart, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, notify.EventProcessing, got.Status)

	// returned copies are detached from the store
	got.Payload["email"] = "changed"
	stored, err := s.GetEvent(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", stored.Payload["email"])

	_, err = s.TransitionEvent(ctx, "missing", notify.EventStart, fixedNow)
	assert.ErrorIs(t, err, notify.ErrEventNotFound)
}

func TestMemoryStore_ListEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := notify.NewMemoryStore()
	for i, st := range []notify.EventStatus{notify.EventReceived, notify.EventFailed, notify.EventCompleted, notify.EventReceived} {
		require.NoError(t, s.CreateEvent(ctx, &notify.Event{
			EventID:   string(rune('a' + i)),
			Status:    st,
			CreatedAt: fixedNow.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := s.ListEvents(ctx, notify.EventFilter{Statuses: []notify.EventStatus{notify.EventReceived}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].EventID)
	assert.Equal(t, "d", got[1].EventID)

	got, err = s.ListEvents(ctx, notify.EventFilter{CreatedBefore: fixedNow.Add(90 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ListEvents(ctx, notify.EventFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMemoryStore_NotificationUniquenessUnderConcurrency(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := notify.NewMemoryStore()

	var created, duplicates atomic.Int32
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.CreateNotification(ctx, &notify.Notification{
				EventID: "e1", Channel: notify.ChannelEmail, Status: notify.NotificationPending,
			})
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, notify.ErrNotificationExists):
				duplicates.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(31), duplicates.Load())

	list, err := s.ListNotifications(ctx, "e1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryStore_TransitionNotification(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := notify.NewMemoryStore()
	require.NoError(t, s.CreateNotification(ctx, &notify.Notification{
		EventID: "e1", Channel: notify.ChannelEmail, Status: notify.NotificationPending,
	}))

	n, err := s.TransitionNotification(ctx, "e1", notify.ChannelEmail, notify.NotificationUpdate{
		Trigger: notify.NotificationMarkSent, Attempts: 1, At: fixedNow,
	})
	require.NoError(t, err)
	assert.Equal(t, notify.NotificationSent, n.Status)

	// a stale retry cannot regress a sent notification
	_, err = s.TransitionNotification(ctx, "e1", notify.ChannelEmail, notify.NotificationUpdate{
		Trigger: notify.NotificationRecordFailure, Attempts: 2, LastError: "late", At: fixedNow,
	})
	assert.ErrorIs(t, err, notify.ErrStaleTransition)

	stored, err := s.GetNotification(ctx, "e1", notify.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, notify.NotificationSent, stored.Status)
	assert.Empty(t, stored.LastError)

	_, err = s.TransitionNotification(ctx, "e1", notify.ChannelInApp, notify.NotificationUpdate{Trigger: notify.NotificationMarkSent})
	assert.ErrorIs(t, err, notify.ErrNotificationNotFound)
}

func TestMemoryStore_DeadLetters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := notify.NewMemoryStore()

	rec := &notify.DeadLetterRecord{EventID: "e1", Channel: notify.ChannelEmail, FailedAt: fixedNow}
	require.NoError(t, s.CreateDeadLetter(ctx, rec))
	assert.ErrorIs(t, s.CreateDeadLetter(ctx, rec), notify.ErrDeadLetterExists)
	require.NoError(t, s.CreateDeadLetter(ctx, &notify.DeadLetterRecord{
		EventID: "e2", Channel: notify.ChannelInApp, FailedAt: fixedNow.Add(time.Minute),
	}))

	all, err := s.ListDeadLetters(ctx, notify.DeadLetterFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "e2", all[0].EventID, "newest first")

	email, err := s.ListDeadLetters(ctx, notify.DeadLetterFilter{Channel: notify.ChannelEmail})
	require.NoError(t, err)
	require.Len(t, email, 1)
	assert.Equal(t, "e1", email[0].EventID)

	recent, err := s.ListDeadLetters(ctx, notify.DeadLetterFilter{Since: fixedNow.Add(time.Second)})
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestMemoryStore_Suite(t *testing.T) {
	t.Parallel()

	notifytest.RunStoreSuite(t, func(t *testing.T) notify.Store { return notify.NewMemoryStore() })
}
