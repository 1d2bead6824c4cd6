// Package app assembles notifyhub from configuration: stores, queue backend,
// preference provider, channels and the pipeline components on top of them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifyhub/pkg/email"
	"github.com/dmitrymomot/notifyhub/pkg/httpserver"
	"github.com/dmitrymomot/notifyhub/pkg/inbox"
	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/metrics"
	"github.com/dmitrymomot/notifyhub/pkg/mongo"
	"github.com/dmitrymomot/notifyhub/pkg/pg"
	"github.com/dmitrymomot/notifyhub/pkg/queue"
	"github.com/dmitrymomot/notifyhub/pkg/redis"
	"github.com/dmitrymomot/notifyhub/svc/notify"
	"github.com/dmitrymomot/notifyhub/svc/notify/dlqarchive"
	"github.com/dmitrymomot/notifyhub/svc/notify/httpapi"
	"github.com/dmitrymomot/notifyhub/svc/notify/mongostore"
	"github.com/dmitrymomot/notifyhub/svc/notify/pgstore"
	"github.com/dmitrymomot/notifyhub/svc/notify/redisprefs"
)

var (
	ErrBuild        = errors.New("app: failed to build")
	ErrNotPostgres  = errors.New("app: migrations need STORE_DRIVER=postgres")
	ErrNoDLQBucket  = errors.New("app: DLQ_S3_BUCKET is not set")
	ErrQueueBackend = errors.New("app: unknown queue backend")
)

// QueueBackend is everything the process needs from queue storage.
type QueueBackend interface {
	queue.WorkerRepository
	queue.EnqueuerRepository
	queue.Inspector
}

// App is the assembled process.
type App struct {
	Config  Config
	Logger  *slog.Logger
	Metrics *metrics.Provider

	Store        notify.Store
	Queue        QueueBackend
	Enqueuer     *queue.Enqueuer
	Inbox        *inbox.Inbox
	Preferences  notify.PreferenceProvider
	Catalog      *notify.Catalog
	Channels     []notify.ChannelSpec
	Gateway      *notify.Gateway
	Orchestrator *notify.Orchestrator
	Dispatchers  []*notify.Dispatcher
	Reconciler   *notify.Reconciler

	pipeline *metrics.Pipeline
	pgPool   *pgxpool.Pool
	redis    *goredis.Client
	checks   []httpserver.Check
	closers  []func(context.Context) error
}

// New connects every backend cfg selects and builds the pipeline. On error
// the already opened backends are closed.
func New(ctx context.Context, cfg Config, log *slog.Logger) (_ *App, err error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.NewProvider(cfg.MetricsNamespace),
		Catalog: notify.DefaultCatalog,
	}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
			err = errors.Join(ErrBuild, err)
		}
	}()

	if a.pipeline, err = metrics.NewPipeline(a.Metrics); err != nil {
		return nil, err
	}
	if err = a.buildStores(ctx); err != nil {
		return nil, err
	}
	if err = a.buildQueue(ctx); err != nil {
		return nil, err
	}
	if err = a.buildPreferences(ctx); err != nil {
		return nil, err
	}
	if err = a.buildChannels(); err != nil {
		return nil, err
	}
	a.buildPipeline()
	return a, nil
}

func (a *App) buildStores(ctx context.Context) error {
	var inboxStorage inbox.Storage
	switch a.Config.StoreDriver {
	case DriverMongo:
		client, err := mongo.New(ctx, a.Config.Mongo)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Disconnect)
		a.checks = append(a.checks, httpserver.Check{Name: "mongo", Fn: mongo.Healthcheck(client)})

		db := client.Database(a.Config.Mongo.Database)
		store := mongostore.New(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("ensure store indexes: %w", err)
		}
		mongoInbox := inbox.NewMongoStorage(db)
		if err := mongoInbox.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("ensure inbox indexes: %w", err)
		}
		a.Store = store
		inboxStorage = mongoInbox

	case DriverPostgres:
		pool, err := pg.Connect(ctx, a.Config.PG)
		if err != nil {
			return err
		}
		a.pgPool = pool
		db := stdlib.OpenDBFromPool(pool)
		a.closers = append(a.closers, func(context.Context) error {
			err := db.Close()
			pool.Close()
			return err
		})
		a.checks = append(a.checks, httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)})
		a.Store = pgstore.New(db)
		inboxStorage = inbox.NewPostgresStorage(db)

	default:
		a.Store = notify.NewMemoryStore()
		inboxStorage = inbox.NewMemoryStorage()
	}

	opts := []inbox.Option{inbox.WithLogger(a.Logger)}
	if a.Config.InboxPushDriver == DriverRedis {
		client, err := a.redisClient(ctx)
		if err != nil {
			return err
		}
		opts = append(opts, inbox.WithDeliverer(inbox.NewRedisPublisher(client, a.Config.ServiceName+":inbox")))
	}
	a.Inbox = inbox.New(inboxStorage, opts...)
	return nil
}

func (a *App) buildQueue(ctx context.Context) error {
	switch a.Config.QueueDriver {
	case DriverRedis:
		client, err := a.redisClient(ctx)
		if err != nil {
			return err
		}
		a.Queue = queue.NewRedisStorage(client, queue.WithKeyPrefix(a.Config.Queue.RedisKeyPrefix))
	case DriverMemory, "":
		storage := queue.NewMemoryStorage()
		a.closers = append(a.closers, func(context.Context) error { return storage.Close() })
		a.Queue = storage
	default:
		return errors.Join(ErrQueueBackend, errors.New(a.Config.QueueDriver))
	}

	enq, err := queue.NewEnqueuer(a.Queue, queue.WithDefaultMaxAttempts(a.Config.Queue.MaxAttempts))
	if err != nil {
		return err
	}
	a.Enqueuer = enq
	return nil
}

func (a *App) buildPreferences(ctx context.Context) error {
	static := notify.NewStaticPreferences(notify.DefaultPreferences(""))
	if a.Config.PreferencesFile != "" {
		var err error
		if static, err = notify.LoadStaticPreferencesFile(a.Config.PreferencesFile); err != nil {
			return err
		}
	}

	if a.Config.PreferencesDriver != DriverRedis {
		a.Preferences = static
		return nil
	}
	client, err := a.redisClient(ctx)
	if err != nil {
		return err
	}
	a.Preferences = redisprefs.New(client,
		redisprefs.WithKeyPrefix(a.Config.ServiceName+":prefs"),
		redisprefs.WithTTL(a.Config.PreferencesTTL),
		redisprefs.WithFallback(static),
	)
	return nil
}

func (a *App) buildChannels() error {
	mailer, err := email.New(a.Config.Email)
	if err != nil {
		return err
	}
	a.Channels = []notify.ChannelSpec{
		{Channel: notify.ChannelEmail, Sender: notify.NewEmailSender(mailer)},
		{Channel: notify.ChannelInApp, Sender: notify.NewInboxSender(a.Inbox), Sync: true},
	}
	return nil
}

func (a *App) buildPipeline() {
	attempts := a.Config.Queue.MaxAttempts
	a.Gateway = notify.NewGateway(a.Store, a.Enqueuer,
		notify.WithGatewayLogger(a.Logger),
		notify.WithGatewayCatalog(a.Catalog),
		notify.WithGatewayMetrics(a.pipeline),
		notify.WithOrchestrationAttempts(attempts),
	)
	a.Orchestrator = notify.NewOrchestrator(a.Store, a.Preferences, a.Enqueuer, a.Channels,
		notify.WithOrchestratorLogger(a.Logger),
		notify.WithOrchestratorCatalog(a.Catalog),
		notify.WithOrchestratorMetrics(a.pipeline),
		notify.WithDeliveryAttempts(attempts),
	)
	a.Dispatchers = notify.NewDispatchers(a.Channels, a.Store,
		notify.WithDispatcherLogger(a.Logger),
		notify.WithDispatcherMetrics(a.pipeline),
	)
	a.Reconciler = notify.NewReconciler(a.Store, a.Enqueuer,
		notify.WithReconcileAfter(a.Config.ReconcileAfter),
		notify.WithRetryFailed(a.Config.ReconcileRetryFailed),
		notify.WithReconcileAttempts(attempts),
		notify.WithReconcilerLogger(a.Logger),
	)
}

// redisClient connects once and shares the client between the queue, the
// preference cache and inbox push.
func (a *App) redisClient(ctx context.Context) (*goredis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	client, err := redis.Connect(ctx, a.Config.Redis)
	if err != nil {
		return nil, err
	}
	a.redis = client
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	a.checks = append(a.checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
	return client, nil
}

// Handler builds the HTTP API.
func (a *App) Handler() (http.Handler, error) {
	mw, err := metrics.HTTPMiddleware(a.Metrics)
	if err != nil {
		return nil, err
	}
	api := httpapi.New(a.Gateway, a.Store,
		httpapi.WithLogger(a.Logger),
		httpapi.WithInbox(a.Inbox),
		httpapi.WithReadinessChecks(a.checks...),
		httpapi.WithMetricsHandler(a.Metrics.Handler()),
		httpapi.WithMiddleware(mw),
	)
	return api.Router(), nil
}

// Server returns the HTTP server configured from Config.HTTP.
func (a *App) Server() *httpserver.Server {
	return httpserver.NewFromConfig(a.Config.HTTP, httpserver.WithLogger(a.Logger))
}

// Worker returns a queue worker consuming the orchestration queue and one
// queue per asynchronous channel, with every pipeline handler registered.
func (a *App) Worker() (*queue.Worker, error) {
	opts := append(a.Config.Queue.WorkerOptions(),
		queue.WithQueues(notify.Queues(a.Channels)...),
		queue.WithTaskObserver(a.pipeline.ObserveTask),
		queue.WithWorkerLogger(a.Logger.With(logger.Component("worker"))),
	)
	w, err := queue.NewWorker(a.Queue, opts...)
	if err != nil {
		return nil, err
	}
	handlers := append(notify.Handlers(a.Orchestrator, a.Dispatchers...), a.Reconciler.Handler())
	if err := w.RegisterHandlers(handlers...); err != nil {
		return nil, err
	}
	return w, nil
}

// Scheduler enqueues the reconcile sweep on Config.ReconcileSchedule.
func (a *App) Scheduler() (*queue.Scheduler, error) {
	sched, err := queue.Cron(a.Config.ReconcileSchedule)
	if err != nil {
		return nil, err
	}
	s, err := queue.NewScheduler(a.Queue, queue.WithSchedulerLogger(a.Logger.With(logger.Component("scheduler"))))
	if err != nil {
		return nil, err
	}
	if err := s.AddTask(notify.ReconcileTask, sched, queue.WithTaskQueue(notify.OrchestrationQueue)); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate applies the Postgres schema.
func (a *App) Migrate(ctx context.Context) error {
	if a.pgPool == nil {
		return ErrNotPostgres
	}
	return pg.Migrate(ctx, a.pgPool, a.Config.PG, pgstore.Migrations, a.Logger)
}

// Archiver returns the S3 dead-letter exporter.
func (a *App) Archiver(ctx context.Context, opts ...dlqarchive.Option) (*dlqarchive.Archiver, error) {
	if a.Config.DLQ.Bucket == "" {
		return nil, ErrNoDLQBucket
	}
	return dlqarchive.New(ctx, a.Config.DLQ, append([]dlqarchive.Option{dlqarchive.WithLogger(a.Logger)}, opts...)...)
}

// LogQueueStats logs pending, processing and dead counts of every queue.
func (a *App) LogQueueStats(ctx context.Context) {
	for _, q := range notify.Queues(a.Channels) {
		stats, err := a.Queue.Stats(ctx, q)
		if err != nil {
			a.Logger.WarnContext(ctx, "queue stats unavailable", slog.String("queue", q), logger.Error(err))
			continue
		}
		a.Logger.InfoContext(ctx, "queue stats",
			slog.String("queue", q),
			slog.Int("pending", stats.Pending),
			slog.Int("processing", stats.Processing),
			slog.Int("dead", stats.Dead),
		)
	}
}

// Close releases backends in reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for _, c := range slices.Backward(a.closers) {
		if err := c(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
