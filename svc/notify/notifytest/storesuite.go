package notifytest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/svc/notify"
)

// RunStoreSuite checks the invariants every notify.Store backend must hold.
// newStore is called once per subtest and may share a database as long as
// ids do not collide; the suite generates fresh event ids.
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) notify.Store) {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("event uniqueness", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		e := newEvent(now)

		require.NoError(t, s.CreateEvent(ctx, e))
		assert.ErrorIs(t, s.CreateEvent(ctx, e), notify.ErrEventExists)

		got, err := s.GetEvent(ctx, e.EventID)
		require.NoError(t, err)
		assert.Equal(t, notify.EventReceived, got.Status)
		assert.Equal(t, e.Type, got.Type)
		assert.Equal(t, "u1@x.com", got.Payload["email"])

		_, err = s.GetEvent(ctx, uuid.NewString())
		assert.ErrorIs(t, err, notify.ErrEventNotFound)
	})

	t.Run("event transitions", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		e := newEvent(now)
		require.NoError(t, s.CreateEvent(ctx, e))

		_, err := s.TransitionEvent(ctx, e.EventID, notify.EventComplete, now)
		assert.ErrorIs(t, err, notify.ErrStaleTransition)

		got, err := s.TransitionEvent(ctx, e.EventID, notify.EventStart, now)
		require.NoError(t, err)
		assert.Equal(t, notify.EventProcessing, got.Status)

		got, err = s.TransitionEvent(ctx, e.EventID, notify.EventComplete, now.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, notify.EventCompleted, got.Status)
		require.NotNil(t, got.ProcessedAt)
		assert.True(t, now.Add(time.Second).Equal(*got.ProcessedAt))

		_, err = s.TransitionEvent(ctx, e.EventID, notify.EventStart, now)
		assert.ErrorIs(t, err, notify.ErrStaleTransition)

		_, err = s.TransitionEvent(ctx, uuid.NewString(), notify.EventStart, now)
		assert.ErrorIs(t, err, notify.ErrEventNotFound)
	})

	t.Run("list events", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		old := newEvent(now.Add(-time.Hour))
		recent := newEvent(now)
		require.NoError(t, s.CreateEvent(ctx, old))
		require.NoError(t, s.CreateEvent(ctx, recent))

		got, err := s.ListEvents(ctx, notify.EventFilter{
			Statuses:      []notify.EventStatus{notify.EventReceived},
			CreatedBefore: now.Add(-time.Minute),
			Limit:         1000,
		})
		require.NoError(t, err)
		ids := make([]string, 0, len(got))
		for _, e := range got {
			ids = append(ids, e.EventID)
		}
		assert.Contains(t, ids, old.EventID)
		assert.NotContains(t, ids, recent.EventID)
	})

	t.Run("notification uniqueness under concurrency", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		eventID := uuid.NewString()

		var created atomic.Int32
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.CreateNotification(ctx, newNotification(eventID, now))
				if err == nil {
					created.Add(1)
				} else if !errors.Is(err, notify.ErrNotificationExists) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), created.Load())

		list, err := s.ListNotifications(ctx, eventID)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("notification transitions are monotonic", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		eventID := uuid.NewString()
		require.NoError(t, s.CreateNotification(ctx, newNotification(eventID, now)))

		n, err := s.TransitionNotification(ctx, eventID, notify.ChannelEmail, notify.NotificationUpdate{
			Trigger: notify.NotificationRecordFailure, Attempts: 2, LastError: "timeout", At: now,
		})
		require.NoError(t, err)
		assert.Equal(t, notify.NotificationFailed, n.Status)
		assert.Equal(t, 2, n.Attempts)
		assert.Equal(t, "timeout", n.LastError)

		n, err = s.TransitionNotification(ctx, eventID, notify.ChannelEmail, notify.NotificationUpdate{
			Trigger: notify.NotificationMarkSent, Attempts: 1, At: now,
		})
		require.NoError(t, err)
		assert.Equal(t, notify.NotificationSent, n.Status)
		assert.Equal(t, 2, n.Attempts)
		require.NotNil(t, n.SentAt)

		_, err = s.TransitionNotification(ctx, eventID, notify.ChannelEmail, notify.NotificationUpdate{
			Trigger: notify.NotificationRecordFailure, Attempts: 3, LastError: "late", At: now,
		})
		assert.ErrorIs(t, err, notify.ErrStaleTransition)

		stored, err := s.GetNotification(ctx, eventID, notify.ChannelEmail)
		require.NoError(t, err)
		assert.Equal(t, notify.NotificationSent, stored.Status)
		assert.Equal(t, "timeout", stored.LastError)

		_, err = s.TransitionNotification(ctx, uuid.NewString(), notify.ChannelEmail, notify.NotificationUpdate{
			Trigger: notify.NotificationMarkSent, At: now,
		})
		assert.ErrorIs(t, err, notify.ErrNotificationNotFound)
	})

	t.Run("dead letters", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		r := &notify.DeadLetterRecord{
			EventID:       uuid.NewString(),
			UserID:        "u1",
			Channel:       notify.ChannelEmail,
			Recipient:     "u1@x.com",
			Content:       "hello",
			ErrorReason:   "smtp timeout",
			FailedAt:      now,
			OriginalJobID: "EMAIL:x",
			Attempts:      3,
			CreatedAt:     now,
		}
		require.NoError(t, s.CreateDeadLetter(ctx, r))
		assert.ErrorIs(t, s.CreateDeadLetter(ctx, r), notify.ErrDeadLetterExists)

		got, err := s.ListDeadLetters(ctx, notify.DeadLetterFilter{Since: now, Channel: notify.ChannelEmail, Limit: 1000})
		require.NoError(t, err)
		var found *notify.DeadLetterRecord
		for _, g := range got {
			if g.EventID == r.EventID {
				found = g
			}
		}
		require.NotNil(t, found)
		assert.Equal(t, 3, found.Attempts)
		assert.Equal(t, "smtp timeout", found.ErrorReason)
	})
}

func newEvent(createdAt time.Time) *notify.Event {
	return &notify.Event{
		EventID:   uuid.NewString(),
		Type:      notify.EventUserSignup,
		UserID:    "u1",
		Payload:   map[string]any{"email": "u1@x.com"},
		Status:    notify.EventReceived,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func newNotification(eventID string, at time.Time) *notify.Notification {
	return &notify.Notification{
		EventID:   eventID,
		UserID:    "u1",
		Channel:   notify.ChannelEmail,
		Recipient: "u1@x.com",
		Subject:   "Hi",
		Content:   "Hello",
		Status:    notify.NotificationPending,
		CreatedAt: at,
		UpdatedAt: at,
	}
}
