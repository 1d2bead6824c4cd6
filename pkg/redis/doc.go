// Package redis connects to a Redis server with retries and exposes a
// readiness probe for it.
//
// The client is shared by the Redis-backed job queue and the cached
// preference provider:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	storage := queue.NewRedisStorage(client)
//	ready := redis.Healthcheck(client)
//
// Config fields are read from REDIS_* environment variables by pkg/config.
package redis
