package inbox_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/inbox"
	"github.com/dmitrymomot/notifyhub/pkg/logger"
)

type MockDeliverer struct {
	mock.Mock
}

func (m *MockDeliverer) Deliver(ctx context.Context, msg inbox.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func TestMemoryStorage_Create(t *testing.T) {
	t.Parallel()

	s := inbox.NewMemoryStorage()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, inbox.Message{ID: "e1:IN_APP", UserID: "u1", Body: "hi"}))
	assert.ErrorIs(t, s.Create(ctx, inbox.Message{ID: "e1:IN_APP", UserID: "u1", Body: "again"}), inbox.ErrMessageExists)
	assert.ErrorIs(t, s.Create(ctx, inbox.Message{UserID: "u1"}), inbox.ErrInvalidMessage)
	assert.ErrorIs(t, s.Create(ctx, inbox.Message{ID: "x"}), inbox.ErrInvalidMessage)

	got, err := s.Get(ctx, "u1", "e1:IN_APP")
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Body)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.Get(ctx, "u2", "e1:IN_APP")
	assert.ErrorIs(t, err, inbox.ErrMessageNotFound)
}

func TestMemoryStorage_ConcurrentCreate(t *testing.T) {
	t.Parallel()

	s := inbox.NewMemoryStorage()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Create(context.Background(), inbox.Message{ID: "e1:IN_APP", UserID: "u1"}) == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	n, err := s.CountUnread(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStorage_ListAndRead(t *testing.T) {
	t.Parallel()

	s := inbox.NewMemoryStorage()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		require.NoError(t, s.Create(ctx, inbox.Message{
			ID:        fmt.Sprintf("m%d", i),
			UserID:    "u1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := s.List(ctx, "u1", inbox.ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "m4", all[0].ID)
	assert.Equal(t, "m0", all[4].ID)

	page, err := s.List(ctx, "u1", inbox.ListOptions{Offset: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"m3", "m2"}, []string{page[0].ID, page[1].ID})

	empty, err := s.List(ctx, "u1", inbox.ListOptions{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)

	n, err := s.MarkRead(ctx, "u1", "m1", "m3", "missing")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.MarkRead(ctx, "u1", "m1")
	require.NoError(t, err)
	assert.Zero(t, n)

	unread, err := s.List(ctx, "u1", inbox.ListOptions{OnlyUnread: true})
	require.NoError(t, err)
	assert.Len(t, unread, 3)

	count, err := s.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	n, err = s.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	msg, err := s.Get(ctx, "u1", "m0")
	require.NoError(t, err)
	assert.True(t, msg.Read)
	assert.NotNil(t, msg.ReadAt)
}

func TestInbox_Send(t *testing.T) {
	t.Parallel()

	t.Run("stores and pushes once", func(t *testing.T) {
		t.Parallel()

		d := &MockDeliverer{}
		d.On("Deliver", mock.Anything, mock.MatchedBy(func(m inbox.Message) bool { return m.ID == "e1:IN_APP" })).
			Return(nil).Once()

		box := inbox.New(inbox.NewMemoryStorage(), inbox.WithDeliverer(d), inbox.WithLogger(logger.Discard()))
		msg := inbox.Message{ID: "e1:IN_APP", UserID: "u1", Body: "hi"}

		created, err := box.Send(context.Background(), msg)
		require.NoError(t, err)
		assert.True(t, created)

		created, err = box.Send(context.Background(), msg)
		require.NoError(t, err)
		assert.False(t, created)

		d.AssertExpectations(t)
	})

	t.Run("push failure is not an error", func(t *testing.T) {
		t.Parallel()

		box := inbox.New(inbox.NewMemoryStorage(),
			inbox.WithLogger(logger.Discard()),
			inbox.WithDeliverer(inbox.DelivererFunc(func(context.Context, inbox.Message) error {
				return errors.New("no subscribers")
			})),
		)
		created, err := box.Send(context.Background(), inbox.Message{ID: "1", UserID: "u1"})
		require.NoError(t, err)
		assert.True(t, created)

		n, err := box.CountUnread(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("storage failure", func(t *testing.T) {
		t.Parallel()

		box := inbox.New(inbox.NewMemoryStorage())
		_, err := box.Send(context.Background(), inbox.Message{})
		assert.ErrorIs(t, err, inbox.ErrInvalidMessage)
	})
}
