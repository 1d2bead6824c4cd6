// Package httpserver runs an http.Server with context-driven graceful
// shutdown and provides liveness and readiness handlers.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// Signal handling is left to the caller: cancel ctx to stop the server.
//
// Readiness takes named checks, typically the Healthcheck functions of
// pkg/mongo, pkg/pg and pkg/redis:
//
//	r.Get("/health/ready", httpserver.Readiness(log, 2*time.Second,
//		httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)},
//	))
package httpserver
