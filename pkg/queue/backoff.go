package queue

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy calculates the delay before the next attempt of a failed task.
// Attempt is the 1-based number of the attempt that just failed.
// Implementations must be safe for concurrent use.
type BackoffStrategy interface {
	NextInterval(attempt int) time.Duration
}

// ExponentialBackoff grows the delay as InitialInterval * Multiplier^(attempt-1),
// capped at MaxInterval, with optional ± JitterFactor spread.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

// NextInterval implements BackoffStrategy.
func (e ExponentialBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := e.InitialInterval
	if initial <= 0 {
		initial = time.Second
	}

	maxInterval := e.MaxInterval
	if maxInterval <= 0 {
		maxInterval = 10 * time.Minute
	}

	multiplier := e.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}

	interval := float64(initial) * math.Pow(multiplier, float64(attempt-1))

	if e.JitterFactor > 0 {
		interval *= 1 + (rand.Float64()*2-1)*e.JitterFactor
	}

	if interval > float64(maxInterval) {
		interval = float64(maxInterval)
	}

	return time.Duration(interval)
}

// FixedBackoff waits the same interval after every attempt.
type FixedBackoff struct {
	Interval time.Duration
}

// NextInterval implements BackoffStrategy.
func (f FixedBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return f.Interval
}

// Exponential returns the deterministic base * 2^(attempt-1) policy used by default.
func Exponential(base time.Duration) BackoffStrategy {
	return ExponentialBackoff{InitialInterval: base, Multiplier: 2}
}

// DefaultBackoffStrategy returns exponential backoff starting at one second.
func DefaultBackoffStrategy() BackoffStrategy {
	return Exponential(time.Second)
}
