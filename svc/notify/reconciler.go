package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/queue"
)

// Reconciler re-enqueues orchestration for events whose task was lost: events
// stuck at RECEIVED past a grace period, and optionally FAILED events whose
// orchestration task was dead lettered. Keyed enqueue makes a sweep safe to
// repeat while the original task is still live.
type Reconciler struct {
	events      EventStore
	enqueuer    TaskEnqueuer
	logger      *slog.Logger
	after       time.Duration
	retryFailed bool
	dryRun      bool
	batch       int
	maxAttempts int
	now         func() time.Time
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Scanned  int      `json:"scanned"`
	Requeued int      `json:"requeued"`
	Failed   int      `json:"failed"`
	EventIDs []string `json:"eventIds,omitempty"`
	DryRun   bool     `json:"dryRun"`
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcileAfter sets how old a RECEIVED event must be to count as
// orphaned. Default 5m.
func WithReconcileAfter(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.after = d
		}
	}
}

// WithRetryFailed includes FAILED events in the sweep.
func WithRetryFailed(enabled bool) ReconcilerOption {
	return func(r *Reconciler) { r.retryFailed = enabled }
}

// WithDryRun reports candidates without enqueuing.
func WithDryRun(enabled bool) ReconcilerOption {
	return func(r *Reconciler) { r.dryRun = enabled }
}

// WithReconcileBatch caps the events handled per sweep.
func WithReconcileBatch(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.batch = n
		}
	}
}

// WithReconcileAttempts sets the attempt budget of re-enqueued tasks.
func WithReconcileAttempts(n int) ReconcilerOption {
	return func(r *Reconciler) { r.maxAttempts = n }
}

// WithReconcilerLogger sets the reconciler logger.
func WithReconcilerLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = l }
}

// WithReconcilerClock overrides time.Now.
func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler creates a Reconciler.
func NewReconciler(events EventStore, enqueuer TaskEnqueuer, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		events:   events,
		enqueuer: enqueuer,
		logger:   slog.Default(),
		after:    5 * time.Minute,
		batch:    DefaultListLimit,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handler returns the periodic queue handler running Sweep.
func (r *Reconciler) Handler() queue.Handler {
	return queue.NewPeriodicTaskHandler(ReconcileTask, func(ctx context.Context) error {
		_, err := r.Sweep(ctx)
		return err
	})
}

// Sweep runs one reconciliation pass. Enqueue failures are counted and
// logged; the next sweep retries them.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	res := SweepResult{DryRun: r.dryRun}

	statuses := []EventStatus{EventReceived}
	if r.retryFailed {
		statuses = append(statuses, EventFailed)
	}
	events, err := r.events.ListEvents(ctx, EventFilter{
		Statuses:      statuses,
		CreatedBefore: r.now().Add(-r.after),
		Limit:         r.batch,
	})
	if err != nil {
		return res, err
	}

	for _, e := range events {
		res.Scanned++
		res.EventIDs = append(res.EventIDs, e.EventID)
		if r.dryRun {
			continue
		}
		if err := EnqueueOrchestration(ctx, r.enqueuer, e, r.maxAttempts); err != nil {
			res.Failed++
			r.logger.LogAttrs(ctx, slog.LevelError, "failed to requeue event",
				logger.EventID(e.EventID),
				logger.Status(string(e.Status)),
				logger.Error(err),
			)
			continue
		}
		res.Requeued++
	}

	if res.Scanned > 0 {
		r.logger.LogAttrs(ctx, slog.LevelInfo, "reconcile sweep finished",
			slog.Int("scanned", res.Scanned),
			slog.Int("requeued", res.Requeued),
			slog.Int("failed", res.Failed),
			slog.Bool("dry_run", res.DryRun),
		)
	}
	return res, nil
}
