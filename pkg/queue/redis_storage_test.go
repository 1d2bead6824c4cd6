package queue_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/queue"
)

// newRedisStorage connects to REDIS_TEST_URL and isolates the test under its
// own key prefix. The test is skipped when the variable is not set.
func newRedisStorage(t *testing.T, opts ...queue.RedisStorageOption) *queue.RedisStorage {
	t.Helper()

	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	ro, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(ro)

	prefix := "notifyhub:test:queue:" + uuid.NewString()
	t.Cleanup(func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, prefix+":*", 100).Iterator()
		for iter.Next(ctx) {
			_ = client.Del(ctx, iter.Val()).Err()
		}
		_ = client.Close()
	})
	return queue.NewRedisStorage(client, append([]queue.RedisStorageOption{queue.WithKeyPrefix(prefix)}, opts...)...)
}

func claim(t *testing.T, s *queue.RedisStorage, lock time.Duration) *queue.Task {
	t.Helper()
	task, err := s.ClaimTask(context.Background(), uuid.New(), []string{"q"}, lock)
	require.NoError(t, err)
	return task
}

func TestRedisStorage_KeyedDedupe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("live key is rejected", func(t *testing.T) {
		t.Parallel()
		s := newRedisStorage(t)

		require.NoError(t, s.CreateTask(ctx, newTask("q", "EMAIL:e1")))
		assert.ErrorIs(t, s.CreateTask(ctx, newTask("q", "EMAIL:e1")), queue.ErrDuplicateTask)
		require.NoError(t, s.CreateTask(ctx, newTask("q", "")))
		require.NoError(t, s.CreateTask(ctx, newTask("q", "")))

		stats, err := s.Stats(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Pending)
	})

	t.Run("complete releases the key", func(t *testing.T) {
		t.Parallel()
		s := newRedisStorage(t)

		require.NoError(t, s.CreateTask(ctx, newTask("q", "EMAIL:e1")))
		task := claim(t, s, time.Minute)
		require.NoError(t, s.CompleteTask(ctx, task.ID))

		require.NoError(t, s.CreateTask(ctx, newTask("q", "EMAIL:e1")))
	})

	t.Run("dead letter releases the key", func(t *testing.T) {
		t.Parallel()
		s := newRedisStorage(t)

		require.NoError(t, s.CreateTask(ctx, newTask("q", "EMAIL:e1")))
		task := claim(t, s, time.Minute)
		require.NoError(t, s.MoveToDLQ(ctx, task.ID, "boom"))

		require.NoError(t, s.CreateTask(ctx, newTask("q", "EMAIL:e1")))
	})
}

func TestRedisStorage_Claim(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		s := newRedisStorage(t)

		_, err := s.ClaimTask(ctx, uuid.New(), []string{"q"}, time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)
	})

	t.Run("future tasks wait", func(t *testing.T) {
		t.Parallel()
		s := newRedisStorage(t)

		task := newTask("q", "")
		task.ScheduledAt = time.Now().Add(time.Hour)
		require.NoError(t, s.CreateTask(ctx, task))

		_, err := s.ClaimTask(ctx, uuid.New(), []string{"q"}, time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)
	})

	t.Run("expired lease is redelivered", func(t *testing.T) {
		t.Parallel()
		s := newRedisStorage(t)

		require.NoError(t, s.CreateTask(ctx, newTask("q", "EMAIL:e1")))
		first := claim(t, s, 5*time.Millisecond)
		assert.Equal(t, 1, first.Attempts)
		assert.Equal(t, queue.TaskStatusProcessing, first.Status)

		time.Sleep(20 * time.Millisecond)

		second := claim(t, s, time.Minute)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 2, second.Attempts)

		// the expired holder can no longer settle the task
		require.NoError(t, s.CompleteTask(ctx, second.ID))
		assert.ErrorIs(t, s.CompleteTask(ctx, first.ID), queue.ErrTaskNotFound)
	})
}

func TestRedisStorage_FailTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("retry increments attempts", func(t *testing.T) {
		t.Parallel()
		s := newRedisStorage(t)

		require.NoError(t, s.CreateTask(ctx, newTask("q", "")))
		task := claim(t, s, time.Minute)
		require.NoError(t, s.FailTask(ctx, task.ID, queue.Failure{Error: "timeout", RetryAt: time.Now().Add(-time.Millisecond)}))

		again := claim(t, s, time.Minute)
		assert.Equal(t, 2, again.Attempts)
		assert.Equal(t, "timeout", again.LastError)
		assert.False(t, again.Exhausted)
	})

	t.Run("exhausted keeps attempts", func(t *testing.T) {
		t.Parallel()
		s := newRedisStorage(t)

		require.NoError(t, s.CreateTask(ctx, newTask("q", "")))
		task := claim(t, s, time.Minute)
		require.NoError(t, s.FailTask(ctx, task.ID, queue.Failure{
			Error: "escalation failed", RetryAt: time.Now().Add(-time.Millisecond), Exhausted: true,
		}))

		again := claim(t, s, time.Minute)
		assert.Equal(t, 1, again.Attempts)
		assert.True(t, again.Exhausted)

		require.NoError(t, s.FailTask(ctx, again.ID, queue.Failure{RetryAt: time.Now().Add(-time.Millisecond)}))
		again = claim(t, s, time.Minute)
		assert.Equal(t, 1, again.Attempts)
		assert.True(t, again.Exhausted, "exhaustion is sticky")
	})

	t.Run("not processing", func(t *testing.T) {
		t.Parallel()
		s := newRedisStorage(t)

		task := newTask("q", "")
		require.NoError(t, s.CreateTask(ctx, task))
		assert.ErrorIs(t, s.FailTask(ctx, task.ID, queue.Failure{}), queue.ErrTaskNotProcessing)
	})
}

func TestRedisStorage_StatsAndListDead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newRedisStorage(t, queue.WithDeadLetterCap(2))

	for range 4 {
		require.NoError(t, s.CreateTask(ctx, newTask("q", "")))
	}
	var claimed []*queue.Task
	for range 3 {
		claimed = append(claimed, claim(t, s, time.Minute))
	}

	stats, err := s.Stats(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{Queue: "q", Pending: 1, Processing: 3}, stats)

	require.NoError(t, s.MoveToDLQ(ctx, claimed[0].ID, "first"))
	require.NoError(t, s.MoveToDLQ(ctx, claimed[1].ID, "second"))
	require.NoError(t, s.MoveToDLQ(ctx, claimed[2].ID, "third"))

	stats, err = s.Stats(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{Queue: "q", Pending: 1, Dead: 2}, stats)

	dead, err := s.ListDead(ctx, "q", 0)
	require.NoError(t, err)
	require.Len(t, dead, 2)
	assert.Equal(t, "third", dead[0].Error)
	assert.Equal(t, "second", dead[1].Error)
	assert.Equal(t, claimed[2].ID, dead[0].TaskID)
	assert.Equal(t, 1, dead[0].Attempts)

	dead, err = s.ListDead(ctx, "q", 1)
	require.NoError(t, err)
	require.Len(t, dead, 1)

	other, err := s.Stats(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{Queue: "other"}, other)
}
