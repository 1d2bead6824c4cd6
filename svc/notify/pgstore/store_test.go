package pgstore_test

import (
	"context"
	"database/sql"
	"io/fs"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/svc/notify"
	"github.com/dmitrymomot/notifyhub/svc/notify/pgstore"
)

var (
	now         = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	eventCols   = []string{"event_id", "type", "user_id", "data", "status", "created_at", "updated_at", "processed_at"}
	notifyCols  = []string{"event_id", "channel", "user_id", "recipient", "subject", "content", "status", "attempts", "last_error", "sent_at", "created_at", "updated_at"}
	deadCols    = []string{"event_id", "channel", "user_id", "recipient", "subject", "content", "error_reason", "failed_at", "original_job_id", "attempts", "created_at"}
	uniqueError = &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
)

func newMock(t *testing.T) (*pgstore.Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return pgstore.New(db), mock
}

func TestStore_CreateEvent(t *testing.T) {
	t.Parallel()

	e := &notify.Event{
		EventID: "e1", Type: notify.EventUserSignup, UserID: "u1",
		Payload: map[string]any{"email": "u1@x.com"}, Status: notify.EventReceived,
		CreatedAt: now, UpdatedAt: now,
	}

	t.Run("inserted", func(t *testing.T) {
		t.Parallel()

		store, mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
			WithArgs("e1", "USER_SIGNUP", "u1", []byte(`{"email":"u1@x.com"}`), "RECEIVED", now, now, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.CreateEvent(context.Background(), e))
	})

	t.Run("duplicate", func(t *testing.T) {
		t.Parallel()

		store, mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).WillReturnError(uniqueError)

		assert.ErrorIs(t, store.CreateEvent(context.Background(), e), notify.ErrEventExists)
	})
}

func TestStore_GetEvent(t *testing.T) {
	t.Parallel()

	t.Run("found", func(t *testing.T) {
		t.Parallel()

		store, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM events WHERE event_id = $1")).
			WithArgs("e1").
			WillReturnRows(sqlmock.NewRows(eventCols).
				AddRow("e1", "ORDER_PLACED", "u1", []byte(`{"orderId":"o-1"}`), "COMPLETED", now, now, now))

		e, err := store.GetEvent(context.Background(), "e1")
		require.NoError(t, err)
		assert.Equal(t, notify.EventOrderPlaced, e.Type)
		assert.Equal(t, notify.EventCompleted, e.Status)
		assert.Equal(t, "o-1", e.Payload["orderId"])
		require.NotNil(t, e.ProcessedAt)
		assert.Equal(t, now, *e.ProcessedAt)
	})

	t.Run("missing", func(t *testing.T) {
		t.Parallel()

		store, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM events WHERE event_id = $1")).
			WithArgs("nope").
			WillReturnError(sql.ErrNoRows)

		_, err := store.GetEvent(context.Background(), "nope")
		assert.ErrorIs(t, err, notify.ErrEventNotFound)
	})
}

func TestStore_TransitionEvent(t *testing.T) {
	t.Parallel()

	t.Run("applied", func(t *testing.T) {
		t.Parallel()

		store, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE events SET status = $1")).
			WithArgs("COMPLETED", now, now, "e1", "PROCESSING").
			WillReturnRows(sqlmock.NewRows(eventCols).
				AddRow("e1", "USER_SIGNUP", "u1", []byte(`{}`), "COMPLETED", now, now, now))

		e, err := store.TransitionEvent(context.Background(), "e1", notify.EventComplete, now)
		require.NoError(t, err)
		assert.Equal(t, notify.EventCompleted, e.Status)
	})

	t.Run("conditional update misses", func(t *testing.T) {
		t.Parallel()

		store, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE events SET status = $1")).
			WithArgs("PROCESSING", now, nil, "e1", "RECEIVED", "FAILED", "PROCESSING").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(regexp.QuoteMeta("FROM events WHERE event_id = $1")).
			WithArgs("e1").
			WillReturnRows(sqlmock.NewRows(eventCols).
				AddRow("e1", "USER_SIGNUP", "u1", []byte(`{}`), "COMPLETED", now, now, now))

		_, err := store.TransitionEvent(context.Background(), "e1", notify.EventStart, now)
		assert.ErrorIs(t, err, notify.ErrStaleTransition)
	})
}

func TestStore_ListEvents(t *testing.T) {
	t.Parallel()

	store, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(
		"FROM events WHERE status IN ($1, $2) AND created_at < $3 ORDER BY created_at, event_id LIMIT $4")).
		WithArgs("RECEIVED", "FAILED", now, 50).
		WillReturnRows(sqlmock.NewRows(eventCols).
			AddRow("e1", "USER_SIGNUP", "u1", []byte(`{}`), "RECEIVED", now, now, nil).
			AddRow("e2", "USER_SIGNUP", "u2", []byte(`{}`), "FAILED", now, now, nil))

	got, err := store.ListEvents(context.Background(), notify.EventFilter{
		Statuses:      []notify.EventStatus{notify.EventReceived, notify.EventFailed},
		CreatedBefore: now,
		Limit:         50,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].ProcessedAt)
	assert.Equal(t, notify.EventFailed, got[1].Status)
}

func TestStore_Notifications(t *testing.T) {
	t.Parallel()

	n := &notify.Notification{
		EventID: "e1", UserID: "u1", Channel: notify.ChannelEmail, Recipient: "u1@x.com",
		Subject: "Hi", Content: "Hello", Status: notify.NotificationPending, CreatedAt: now, UpdatedAt: now,
	}

	t.Run("duplicate create", func(t *testing.T) {
		t.Parallel()

		store, mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).WillReturnError(uniqueError)

		assert.ErrorIs(t, store.CreateNotification(context.Background(), n), notify.ErrNotificationExists)
	})

	t.Run("record failure keeps attempts monotonic", func(t *testing.T) {
		t.Parallel()

		store, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("attempts = GREATEST(attempts, $2)")).
			WithArgs("FAILED", 2, "timeout", nil, now, "e1", "EMAIL", "PENDING", "FAILED").
			WillReturnRows(sqlmock.NewRows(notifyCols).
				AddRow("e1", "EMAIL", "u1", "u1@x.com", "Hi", "Hello", "FAILED", 2, "timeout", nil, now, now))

		got, err := store.TransitionNotification(context.Background(), "e1", notify.ChannelEmail, notify.NotificationUpdate{
			Trigger: notify.NotificationRecordFailure, Attempts: 2, LastError: "timeout", At: now,
		})
		require.NoError(t, err)
		assert.Equal(t, notify.NotificationFailed, got.Status)
		assert.Equal(t, 2, got.Attempts)
		assert.Nil(t, got.SentAt)
	})

	t.Run("stale update against sent", func(t *testing.T) {
		t.Parallel()

		store, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE notifications")).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(regexp.QuoteMeta("FROM notifications WHERE event_id = $1 AND channel = $2")).
			WithArgs("e1", "EMAIL").
			WillReturnRows(sqlmock.NewRows(notifyCols).
				AddRow("e1", "EMAIL", "u1", "u1@x.com", "Hi", "Hello", "SENT", 1, "", now, now, now))

		_, err := store.TransitionNotification(context.Background(), "e1", notify.ChannelEmail, notify.NotificationUpdate{
			Trigger: notify.NotificationRecordFailure, Attempts: 2, LastError: "late", At: now,
		})
		assert.ErrorIs(t, err, notify.ErrStaleTransition)
	})

	t.Run("list", func(t *testing.T) {
		t.Parallel()

		store, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM notifications WHERE event_id = $1 ORDER BY created_at, channel")).
			WithArgs("e1").
			WillReturnRows(sqlmock.NewRows(notifyCols).
				AddRow("e1", "EMAIL", "u1", "u1@x.com", "Hi", "Hello", "SENT", 1, "", now, now, now).
				AddRow("e1", "IN_APP", "u1", "u1", "", "Notification", "SENT", 1, "", now, now, now))

		got, err := store.ListNotifications(context.Background(), "e1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, notify.ChannelInApp, got[1].Channel)
		require.NotNil(t, got[0].SentAt)
	})
}

func TestStore_DeadLetters(t *testing.T) {
	t.Parallel()

	r := &notify.DeadLetterRecord{
		EventID: "e1", UserID: "u1", Channel: notify.ChannelEmail, Recipient: "u1@x.com",
		Content: "Hello", ErrorReason: "timeout", FailedAt: now, OriginalJobID: "EMAIL:e1", Attempts: 3, CreatedAt: now,
	}

	t.Run("duplicate", func(t *testing.T) {
		t.Parallel()

		store, mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO failed_notifications")).
			WithArgs("e1", "EMAIL", "u1", "u1@x.com", "", "Hello", "timeout", now, "EMAIL:e1", 3, now).
			WillReturnError(uniqueError)

		assert.ErrorIs(t, store.CreateDeadLetter(context.Background(), r), notify.ErrDeadLetterExists)
	})

	t.Run("list by channel", func(t *testing.T) {
		t.Parallel()

		store, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta(
			"FROM failed_notifications WHERE channel = $1 ORDER BY failed_at DESC, event_id LIMIT $2")).
			WithArgs("EMAIL", notify.DefaultListLimit).
			WillReturnRows(sqlmock.NewRows(deadCols).
				AddRow("e1", "EMAIL", "u1", "u1@x.com", "", "Hello", "timeout", now, "EMAIL:e1", 3, now))

		got, err := store.ListDeadLetters(context.Background(), notify.DeadLetterFilter{Channel: notify.ChannelEmail})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 3, got[0].Attempts)
		assert.Equal(t, "EMAIL:e1", got[0].OriginalJobID)
	})
}

func TestMigrations(t *testing.T) {
	t.Parallel()

	entries, err := fs.ReadDir(pgstore.Migrations, ".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	b, err := fs.ReadFile(pgstore.Migrations, entries[0].Name())
	require.NoError(t, err)
	assert.Contains(t, string(b), "-- +goose Up")
	assert.Contains(t, string(b), "PRIMARY KEY (event_id, channel)")
}
