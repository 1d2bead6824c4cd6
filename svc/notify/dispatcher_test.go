package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/email"
	"github.com/dmitrymomot/notifyhub/pkg/queue"
	"github.com/dmitrymomot/notifyhub/svc/notify"
	"github.com/dmitrymomot/notifyhub/svc/notify/notifytest"
)

func seedPending(t *testing.T, store *notify.MemoryStore, eventID string) notify.ChannelJob {
	t.Helper()

	require.NoError(t, store.CreateNotification(context.Background(), &notify.Notification{
		EventID:   eventID,
		UserID:    "u1",
		Channel:   notify.ChannelEmail,
		Recipient: "u1@x.com",
		Subject:   "Hi",
		Content:   "Hello",
		Status:    notify.NotificationPending,
	}))
	return notify.ChannelJob{
		EventID: eventID, UserID: "u1", Channel: notify.ChannelEmail,
		Recipient: "u1@x.com", Subject: "Hi", Content: "Hello",
	}
}

func newDispatcher(store *notify.MemoryStore, s notify.Sender) *notify.Dispatcher {
	return notify.NewDispatcher(notify.ChannelSpec{Channel: notify.ChannelEmail, Sender: s}, store,
		notify.WithDispatcherLogger(discard),
		notify.WithDispatcherClock(clock),
	)
}

func TestDispatcher_Sent(t *testing.T) {
	t.Parallel()

	store := notify.NewMemoryStore()
	job := seedPending(t, store, "e1")
	rec := notifytest.NewRecordingSender()
	d := newDispatcher(store, rec)

	require.NoError(t, d.Handle(withTask(context.Background(), "EMAIL:e1", 2, 3), job))

	n, err := store.GetNotification(context.Background(), "e1", notify.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, notify.NotificationSent, n.Status)
	assert.Equal(t, 2, n.Attempts)
	require.NotNil(t, n.SentAt)
	assert.Equal(t, fixedNow, *n.SentAt)
	assert.Equal(t, 1, rec.Count("e1"))
	assert.Equal(t, "Hi", rec.Deliveries()[0].Subject)
}

func TestDispatcher_FailureIsRecordedAndReturned(t *testing.T) {
	t.Parallel()

	store := notify.NewMemoryStore()
	job := seedPending(t, store, "e1")
	d := newDispatcher(store, notifytest.NewFaultySender(nil, notifytest.FailAlways()))

	err := d.Handle(withTask(context.Background(), "EMAIL:e1", 1, 3), job)
	require.ErrorIs(t, err, notifytest.ErrInjected)
	assert.False(t, queue.IsPermanent(err))

	n, err := store.GetNotification(context.Background(), "e1", notify.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, notify.NotificationFailed, n.Status)
	assert.Equal(t, 1, n.Attempts)
	assert.Equal(t, notifytest.ErrInjected.Error(), n.LastError)
}

func TestDispatcher_StaleJobDoesNotResend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := notify.NewMemoryStore()
	job := seedPending(t, store, "e1")
	rec := notifytest.NewRecordingSender()
	d := newDispatcher(store, rec)

	require.NoError(t, d.Handle(withTask(ctx, "EMAIL:e1", 1, 3), job))
	require.NoError(t, d.Handle(withTask(ctx, "EMAIL:e1", 1, 3), job))

	assert.Equal(t, 1, rec.Count("e1"))
	n, err := store.GetNotification(ctx, "e1", notify.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, notify.NotificationSent, n.Status)
}

func TestDispatcher_MissingNotificationIsPermanent(t *testing.T) {
	t.Parallel()

	d := newDispatcher(notify.NewMemoryStore(), notifytest.NewRecordingSender())
	err := d.Handle(context.Background(), notify.ChannelJob{EventID: "nope"})
	assert.ErrorIs(t, err, notify.ErrNotificationNotFound)
	assert.True(t, queue.IsPermanent(err))
}

func TestDispatcher_Escalate(t *testing.T) {
	t.Parallel()

	ctx := withTask(context.Background(), "EMAIL:e1", 3, 3)
	store := notify.NewMemoryStore()
	job := seedPending(t, store, "e1")
	d := newDispatcher(store, notifytest.NewRecordingSender())

	require.NoError(t, d.Escalate(ctx, job, errors.New("smtp timeout")))
	// a repeated escalation after a partial failure writes nothing new
	require.NoError(t, d.Escalate(ctx, job, errors.New("smtp timeout")))

	n, err := store.GetNotification(ctx, "e1", notify.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, notify.NotificationDeadLettered, n.Status)
	assert.Equal(t, 3, n.Attempts)
	assert.Equal(t, "smtp timeout", n.LastError)

	records, err := store.ListDeadLetters(ctx, notify.DeadLetterFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "e1", r.EventID)
	assert.Equal(t, "u1", r.UserID)
	assert.Equal(t, "u1@x.com", r.Recipient)
	assert.Equal(t, "Hi", r.Subject)
	assert.Equal(t, "Hello", r.Content)
	assert.Equal(t, "smtp timeout", r.ErrorReason)
	assert.Equal(t, "EMAIL:e1", r.OriginalJobID)
	assert.Equal(t, 3, r.Attempts)
	assert.Equal(t, fixedNow, r.FailedAt)
}

func TestDispatcher_EscalateSkipsSentNotification(t *testing.T) {
	t.Parallel()

	ctx := withTask(context.Background(), "EMAIL:e1", 3, 3)
	store := notify.NewMemoryStore()
	job := seedPending(t, store, "e1")
	_, err := store.TransitionNotification(ctx, "e1", notify.ChannelEmail, notify.NotificationUpdate{
		Trigger: notify.NotificationMarkSent, Attempts: 1, At: fixedNow,
	})
	require.NoError(t, err)

	d := newDispatcher(store, notifytest.NewRecordingSender())
	require.NoError(t, d.Escalate(ctx, job, errors.New("late")))

	records, err := store.ListDeadLetters(ctx, notify.DeadLetterFilter{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestEmailSender_PermanentErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"ok", nil, false},
		{"invalid params", errors.Join(email.ErrInvalidParams, errors.New("send_to")), true},
		{"rejected", errors.Join(email.ErrRecipientRejected, errors.New("inactive")), true},
		{"transient", errors.Join(email.ErrFailedToSendEmail, errors.New("503")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got email.SendEmailParams
			s := notify.NewEmailSender(mailerFunc(func(ctx context.Context, p email.SendEmailParams) error {
				got = p
				return tt.err
			}))
			err := s.Send(context.Background(), notify.Delivery{
				Channel: notify.ChannelEmail, Recipient: "a@x.com", Subject: "S", Content: "a < b",
			})
			if tt.err == nil {
				require.NoError(t, err)
				assert.Equal(t, "<p>a &lt; b</p>", got.BodyHTML)
				assert.Equal(t, "email", got.Tag)
				return
			}
			require.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.permanent, queue.IsPermanent(err))
		})
	}
}

type mailerFunc func(ctx context.Context, p email.SendEmailParams) error

func (f mailerFunc) SendEmail(ctx context.Context, p email.SendEmailParams) error { return f(ctx, p) }

// transitionCounter records the triggers applied to notifications.
type transitionCounter struct {
	*notify.MemoryStore
	mu       sync.Mutex
	triggers []notify.NotificationTrigger
}

func (c *transitionCounter) TransitionNotification(ctx context.Context, eventID string, channel notify.Channel, u notify.NotificationUpdate) (*notify.Notification, error) {
	c.mu.Lock()
	c.triggers = append(c.triggers, u.Trigger)
	c.mu.Unlock()
	return c.MemoryStore.TransitionNotification(ctx, eventID, channel, u)
}

func TestDispatcher_FinalFailureIsLeftToEscalate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		attempt int
		err     error
	}{
		{"last attempt", 3, notifytest.ErrInjected},
		{"permanent error", 1, queue.Permanent(notifytest.ErrInjected)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := withTask(context.Background(), "EMAIL:e1", tt.attempt, 3)
			store := &transitionCounter{MemoryStore: notify.NewMemoryStore()}
			job := seedPending(t, store.MemoryStore, "e1")
			d := notify.NewDispatcher(notify.ChannelSpec{
				Channel: notify.ChannelEmail,
				Sender:  notify.SenderFunc(func(context.Context, notify.Delivery) error { return tt.err }),
			}, store, notify.WithDispatcherLogger(discard), notify.WithDispatcherClock(clock))

			sendErr := d.Handle(ctx, job)
			require.ErrorIs(t, sendErr, notifytest.ErrInjected)

			n, err := store.GetNotification(ctx, "e1", notify.ChannelEmail)
			require.NoError(t, err)
			assert.Equal(t, notify.NotificationPending, n.Status)
			assert.Empty(t, n.LastError)

			require.NoError(t, d.Escalate(ctx, job, sendErr))

			assert.Equal(t, []notify.NotificationTrigger{notify.NotificationMarkDeadLetter}, store.triggers)
			n, err = store.GetNotification(ctx, "e1", notify.ChannelEmail)
			require.NoError(t, err)
			assert.Equal(t, notify.NotificationDeadLettered, n.Status)
			assert.Equal(t, tt.attempt, n.Attempts)
			assert.Equal(t, notifytest.ErrInjected.Error(), n.LastError)
		})
	}
}
