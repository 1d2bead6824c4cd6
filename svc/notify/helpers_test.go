package notify_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/queue"
	"github.com/dmitrymomot/notifyhub/svc/notify"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func newQueue(t *testing.T) (*queue.MemoryStorage, *queue.Enqueuer) {
	t.Helper()

	storage := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = storage.Close() })
	enq, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)
	return storage, enq
}

// recordingEnqueuer captures enqueue calls and optionally fails them.
type recordingEnqueuer struct {
	mu    sync.Mutex
	calls []any
	err   error
}

func (e *recordingEnqueuer) Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.calls = append(e.calls, payload)
	return nil
}

func (e *recordingEnqueuer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// flakyPreferences fails until ok is set.
type flakyPreferences struct {
	mu  sync.Mutex
	err error
	ch  []notify.Channel
}

func (p *flakyPreferences) ResolveChannels(ctx context.Context, userID string, t notify.EventType) ([]notify.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return p.ch, nil
}

func (p *flakyPreferences) set(ch []notify.Channel, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ch, p.err = ch, err
}

func seedEvent(t *testing.T, store notify.Store, id string, status notify.EventStatus, payload map[string]any) *notify.Event {
	t.Helper()

	e := &notify.Event{
		EventID:   id,
		Type:      notify.EventUserSignup,
		UserID:    "u1",
		Payload:   payload,
		Status:    status,
		CreatedAt: fixedNow,
		UpdatedAt: fixedNow,
	}
	require.NoError(t, store.CreateEvent(context.Background(), e))
	return e
}

func jobFor(e *notify.Event) notify.OrchestrationJob {
	return notify.OrchestrationJob{EventID: e.EventID, Type: e.Type, UserID: e.UserID, Payload: e.Payload}
}

func withTask(ctx context.Context, key string, attempt, maxAttempts int) context.Context {
	return queue.WithTaskInfo(ctx, queue.TaskInfo{Key: key, Attempt: attempt, MaxAttempts: maxAttempts})
}

var discard = logger.Discard()
