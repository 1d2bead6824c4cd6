package notify_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/svc/notify"
)

func TestEventLifecycle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    notify.EventStatus
		trigger notify.EventTrigger
		to      notify.EventStatus
		ok      bool
	}{
		{notify.EventReceived, notify.EventStart, notify.EventProcessing, true},
		{notify.EventFailed, notify.EventStart, notify.EventProcessing, true},
		{notify.EventProcessing, notify.EventStart, notify.EventProcessing, true},
		{notify.EventProcessing, notify.EventComplete, notify.EventCompleted, true},
		{notify.EventProcessing, notify.EventFail, notify.EventFailed, true},
		{notify.EventReceived, notify.EventComplete, "", false},
		{notify.EventCompleted, notify.EventStart, "", false},
		{notify.EventCompleted, notify.EventFail, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.trigger), func(t *testing.T) {
			t.Parallel()

			to, err := notify.EventLifecycle.Fire(tt.from, tt.trigger)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, to)
		})
	}

	assert.True(t, notify.EventLifecycle.IsTerminal(notify.EventCompleted))
	assert.False(t, notify.EventLifecycle.IsTerminal(notify.EventFailed))
}

func TestNotificationLifecycle(t *testing.T) {
	t.Parallel()

	for _, terminal := range []notify.NotificationStatus{notify.NotificationSent, notify.NotificationDeadLettered} {
		assert.True(t, notify.NotificationLifecycle.IsTerminal(terminal))
		for _, trig := range []notify.NotificationTrigger{
			notify.NotificationMarkSent, notify.NotificationRecordFailure, notify.NotificationMarkDeadLetter,
		} {
			assert.False(t, notify.NotificationLifecycle.CanFire(terminal, trig), "%s -%s->", terminal, trig)
		}
	}

	assert.ElementsMatch(t,
		[]notify.NotificationStatus{notify.NotificationPending, notify.NotificationFailed},
		notify.NotificationLifecycle.Sources(notify.NotificationMarkSent))
}

func TestApplyNotificationUpdate(t *testing.T) {
	t.Parallel()

	n := &notify.Notification{Status: notify.NotificationPending}

	require.NoError(t, notify.ApplyNotificationUpdate(n, notify.NotificationUpdate{
		Trigger: notify.NotificationRecordFailure, Attempts: 2, LastError: "timeout", At: fixedNow,
	}))
	assert.Equal(t, notify.NotificationFailed, n.Status)
	assert.Equal(t, 2, n.Attempts)
	assert.Equal(t, "timeout", n.LastError)

	// attempts never go backwards
	require.NoError(t, notify.ApplyNotificationUpdate(n, notify.NotificationUpdate{
		Trigger: notify.NotificationMarkSent, Attempts: 1, At: fixedNow.Add(time.Second),
	}))
	assert.Equal(t, notify.NotificationSent, n.Status)
	assert.Equal(t, 2, n.Attempts)
	require.NotNil(t, n.SentAt)
	assert.Equal(t, fixedNow.Add(time.Second), *n.SentAt)

	err := notify.ApplyNotificationUpdate(n, notify.NotificationUpdate{Trigger: notify.NotificationRecordFailure, Attempts: 3})
	assert.ErrorIs(t, err, notify.ErrStaleTransition)
	assert.Equal(t, notify.NotificationSent, n.Status)
}

func TestApplyEventTrigger_SetsProcessedAt(t *testing.T) {
	t.Parallel()

	e := &notify.Event{Status: notify.EventProcessing}
	require.NoError(t, notify.ApplyEventTrigger(e, notify.EventComplete, fixedNow))
	require.NotNil(t, e.ProcessedAt)
	assert.Equal(t, fixedNow, *e.ProcessedAt)

	assert.ErrorIs(t, notify.ApplyEventTrigger(e, notify.EventStart, fixedNow), notify.ErrStaleTransition)
}

func TestChannel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "email_queue", notify.ChannelEmail.Queue())
	assert.Equal(t, "in_app_queue", notify.ChannelInApp.Queue())
	assert.Equal(t, "EMAIL:e1", notify.ChannelEmail.TaskKey("e1"))
	assert.Equal(t, "notify.deliver.email", notify.ChannelEmail.TaskName())
}
