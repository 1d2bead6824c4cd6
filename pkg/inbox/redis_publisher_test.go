package inbox_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/inbox"
	"github.com/dmitrymomot/notifyhub/pkg/logger"
)

func TestRedisPublisher_Channel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "inbox:u1", inbox.NewRedisPublisher(nil, "").Channel("u1"))
	assert.Equal(t, "notifyhub:inbox:u1", inbox.NewRedisPublisher(nil, "notifyhub:inbox").Channel("u1"))
}

func TestRedisPublisher_UnavailableDoesNotFailSend(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	pub := inbox.NewRedisPublisher(client, "")
	msg := inbox.Message{ID: "e1:IN_APP", UserID: "u1", Body: "hi"}
	require.Error(t, pub.Deliver(context.Background(), msg))

	box := inbox.New(inbox.NewMemoryStorage(), inbox.WithDeliverer(pub), inbox.WithLogger(logger.Discard()))
	created, err := box.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, created)
}

// Runs against a real server when REDIS_TEST_URL is set.
func TestRedisPublisher_Redis(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	pub := inbox.NewRedisPublisher(client, "notifyhub:test:"+time.Now().Format("150405.000000"))
	sub := client.Subscribe(ctx, pub.Channel("u1"))
	t.Cleanup(func() { _ = sub.Close() })
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	box := inbox.New(inbox.NewMemoryStorage(), inbox.WithDeliverer(pub), inbox.WithLogger(logger.Discard()))
	created, err := box.Send(ctx, inbox.Message{ID: "e1:IN_APP", UserID: "u1", Title: "Welcome", Body: "hi"})
	require.NoError(t, err)
	require.True(t, created)

	select {
	case m := <-sub.Channel():
		var got inbox.Message
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &got))
		assert.Equal(t, "e1:IN_APP", got.ID)
		assert.Equal(t, "Welcome", got.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}
