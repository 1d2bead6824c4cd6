package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/queue"
)

type simpleStruct struct {
	Field string `json:"field"`
}

func TestNewTaskHandler(t *testing.T) {
	t.Parallel()

	t.Run("name from payload type", func(t *testing.T) {
		t.Parallel()

		h := queue.NewTaskHandler(func(ctx context.Context, p simpleStruct) error { return nil })
		assert.Equal(t, "queue_test.simpleStruct", h.Name())

		assert.Equal(t, "time.Time", queue.NewTaskHandler(func(ctx context.Context, p time.Time) error { return nil }).Name())
		assert.Equal(t, "uuid.UUID", queue.NewTaskHandler(func(ctx context.Context, p uuid.UUID) error { return nil }).Name())
	})

	t.Run("pointer payload shares the struct name", func(t *testing.T) {
		t.Parallel()

		h := queue.NewTaskHandler(func(ctx context.Context, p *simpleStruct) error { return nil })
		assert.Equal(t, "queue_test.simpleStruct", h.Name())

		repo := &mockEnqueuerRepo{}
		e, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)
		require.NoError(t, e.Enqueue(context.Background(), &simpleStruct{Field: "x"}))
		require.Len(t, repo.tasks, 1)
		assert.Equal(t, h.Name(), repo.tasks[0].TaskName)
	})

	t.Run("custom name", func(t *testing.T) {
		t.Parallel()

		h := queue.NewTaskHandler(func(ctx context.Context, p simpleStruct) error { return nil },
			queue.WithHandlerName("deliver"))
		assert.Equal(t, "deliver", h.Name())
	})

	t.Run("decodes payload", func(t *testing.T) {
		t.Parallel()

		var got simpleStruct
		h := queue.NewTaskHandler(func(ctx context.Context, p simpleStruct) error {
			got = p
			return nil
		})
		require.NoError(t, h.Handle(context.Background(), json.RawMessage(`{"field":"x"}`)))
		assert.Equal(t, "x", got.Field)
	})

	t.Run("invalid payload is permanent", func(t *testing.T) {
		t.Parallel()

		h := queue.NewTaskHandler(func(ctx context.Context, p simpleStruct) error { return nil })
		err := h.Handle(context.Background(), json.RawMessage(`not json`))
		require.Error(t, err)
		assert.True(t, queue.IsPermanent(err))
	})

	t.Run("exhaustion hook", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("down")
		var got simpleStruct
		h := queue.NewTaskHandler(
			func(ctx context.Context, p simpleStruct) error { return nil },
			queue.OnExhausted(func(ctx context.Context, p simpleStruct, err error) error {
				got = p
				assert.ErrorIs(t, err, cause)
				return nil
			}),
		)

		eh, ok := h.(queue.ExhaustionHandler)
		require.True(t, ok)
		require.NoError(t, eh.OnExhausted(context.Background(), json.RawMessage(`{"field":"y"}`), cause))
		assert.Equal(t, "y", got.Field)
	})

	t.Run("no exhaustion hook is a no-op", func(t *testing.T) {
		t.Parallel()

		h := queue.NewTaskHandler(func(ctx context.Context, p simpleStruct) error { return nil })
		eh, ok := h.(queue.ExhaustionHandler)
		require.True(t, ok)
		assert.NoError(t, eh.OnExhausted(context.Background(), nil, errors.New("x")))
	})
}

func TestNewPeriodicTaskHandler(t *testing.T) {
	t.Parallel()

	called := false
	h := queue.NewPeriodicTaskHandler("reconcile", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.Equal(t, "reconcile", h.Name())
	require.NoError(t, h.Handle(context.Background(), nil))
	assert.True(t, called)
}

func TestPermanent(t *testing.T) {
	t.Parallel()

	base := errors.New("bad input")
	err := queue.Permanent(base)

	assert.True(t, queue.IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.EqualError(t, err, "bad input")
	assert.Nil(t, queue.Permanent(nil))
	assert.False(t, queue.IsPermanent(base))
}
