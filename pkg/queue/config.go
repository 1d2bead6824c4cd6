package queue

import "time"

// Config holds the configuration for workers and the enqueuer
type Config struct {
	PollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	LockTimeout        time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	ShutdownTimeout    time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxConcurrentTasks int           `env:"QUEUE_CONCURRENCY" envDefault:"5"`
	MaxAttempts        int           `env:"QUEUE_MAX_ATTEMPTS" envDefault:"3"`
	BackoffBase        time.Duration `env:"QUEUE_BACKOFF_BASE" envDefault:"1s"`
	BackoffMax         time.Duration `env:"QUEUE_BACKOFF_MAX" envDefault:"10m"`
	RedisKeyPrefix     string        `env:"QUEUE_REDIS_PREFIX" envDefault:"notifyhub:queue"`
}

// Backoff returns the strategy described by the config.
func (c Config) Backoff() BackoffStrategy {
	return ExponentialBackoff{
		InitialInterval: c.BackoffBase,
		MaxInterval:     c.BackoffMax,
		Multiplier:      2,
	}
}

// WorkerOptions returns the worker options described by the config.
func (c Config) WorkerOptions() []WorkerOption {
	return []WorkerOption{
		WithPullInterval(c.PollInterval),
		WithLockTimeout(c.LockTimeout),
		WithMaxConcurrentTasks(c.MaxConcurrentTasks),
		WithBackoff(c.Backoff()),
	}
}
