package app

import (
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/config"
	"github.com/dmitrymomot/notifyhub/pkg/email"
	"github.com/dmitrymomot/notifyhub/pkg/httpserver"
	"github.com/dmitrymomot/notifyhub/pkg/mongo"
	"github.com/dmitrymomot/notifyhub/pkg/pg"
	"github.com/dmitrymomot/notifyhub/pkg/queue"
	"github.com/dmitrymomot/notifyhub/pkg/redis"
	"github.com/dmitrymomot/notifyhub/pkg/validator"
	"github.com/dmitrymomot/notifyhub/svc/notify/dlqarchive"
)

// Backend drivers.
const (
	DriverMemory   = "memory"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverStatic   = "static"
	DriverNone     = "none"
)

// Config is the process configuration, read from the environment.
type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"notifyhub"`

	StoreDriver       string        `env:"STORE_DRIVER" envDefault:"memory"`       // memory | mongo | postgres
	QueueDriver       string        `env:"QUEUE_DRIVER" envDefault:"memory"`       // memory | redis
	PreferencesDriver string        `env:"PREFERENCES_DRIVER" envDefault:"static"` // static | redis
	PreferencesFile   string        `env:"PREFERENCES_FILE"`
	PreferencesTTL    time.Duration `env:"PREFERENCES_CACHE_TTL" envDefault:"10m"`
	InboxPushDriver   string        `env:"INBOX_PUSH_DRIVER" envDefault:"none"` // none | redis

	ReconcileAfter       time.Duration `env:"RECONCILE_AFTER" envDefault:"5m"`
	ReconcileSchedule    string        `env:"RECONCILE_SCHEDULE" envDefault:"@every 1m"`
	ReconcileRetryFailed bool          `env:"RECONCILE_RETRY_FAILED" envDefault:"false"`

	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"notifyhub"`

	Mongo mongo.Config
	PG    pg.Config
	Redis redis.Config
	Email email.Config
	Queue queue.Config
	HTTP  httpserver.Config
	DLQ   dlqarchive.Config
}

// LoadConfig reads Config from the environment and validates it.
func LoadConfig(opts ...config.Option) (Config, error) {
	var cfg Config
	if err := config.Load(&cfg, opts...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks driver selections and the settings they require.
func (c Config) Validate() error {
	return validator.Apply(
		validator.OneOf("STORE_DRIVER", c.StoreDriver, []string{DriverMemory, DriverMongo, DriverPostgres}),
		validator.OneOf("QUEUE_DRIVER", c.QueueDriver, []string{DriverMemory, DriverRedis}),
		validator.OneOf("PREFERENCES_DRIVER", c.PreferencesDriver, []string{DriverStatic, DriverRedis}),
		validator.OneOf("INBOX_PUSH_DRIVER", c.InboxPushDriver, []string{DriverNone, DriverRedis}),
		validator.OneOf("EMAIL_DRIVER", c.Email.Driver, []string{email.DriverDev, email.DriverPostmark}),
		validator.When(c.StoreDriver == DriverMongo, validator.Required("MONGODB_URL", c.Mongo.ConnectionURL)),
		validator.When(c.StoreDriver == DriverPostgres, validator.Required("PG_CONN_URL", c.PG.ConnectionString)),
		validator.When(c.Email.Driver == email.DriverPostmark, validator.Required("POSTMARK_SERVER_TOKEN", c.Email.PostmarkServerToken)),
	)
}
