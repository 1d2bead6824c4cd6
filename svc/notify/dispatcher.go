package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/queue"
)

// Dispatcher delivers the channel jobs of one asynchronous channel.
type Dispatcher struct {
	channel       Channel
	sender        Sender
	notifications NotificationStore
	deadLetters   DeadLetterStore
	logger        *slog.Logger
	metrics       Recorder
	now           func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the dispatcher logger.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithDispatcherMetrics sets the metrics recorder.
func WithDispatcherMetrics(r Recorder) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = r }
}

// WithDispatcherClock overrides time.Now.
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates the dispatcher of spec.Channel.
func NewDispatcher(spec ChannelSpec, store Store, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		channel:       spec.Channel,
		sender:        spec.Sender,
		notifications: store,
		deadLetters:   store,
		logger:        slog.Default(),
		metrics:       noopRecorder{},
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(logger.Channel(string(spec.Channel)))
	return d
}

// Channel returns the channel the dispatcher serves.
func (d *Dispatcher) Channel() Channel { return d.channel }

// Queue returns the queue the dispatcher consumes.
func (d *Dispatcher) Queue() string { return d.channel.Queue() }

// Handler returns the queue handler, with dead letter escalation wired to the
// queue's exhaustion signal.
func (d *Dispatcher) Handler() queue.Handler {
	return queue.NewTaskHandler(d.Handle,
		queue.WithHandlerName(d.channel.TaskName()),
		queue.OnExhausted(d.Escalate),
	)
}

// Handle runs one delivery attempt. A notification that is already SENT or
// DEAD_LETTERED is not delivered again. A failed send that will be retried is
// recorded on the notification and returned so the queue applies its
// backoff; a failure the queue escalates is left to Escalate.
func (d *Dispatcher) Handle(ctx context.Context, job ChannelJob) error {
	attempt := attemptOf(ctx)
	log := d.logger.With(logger.EventID(job.EventID), logger.Attempt(attempt, maxAttemptsOf(ctx)))

	current, err := d.notifications.GetNotification(ctx, job.EventID, d.channel)
	switch {
	case errors.Is(err, ErrNotificationNotFound):
		return queue.Permanent(fmt.Errorf("deliver %s: %w", d.channel.TaskKey(job.EventID), err))
	case err != nil:
		return fmt.Errorf("load notification: %w", err)
	case NotificationLifecycle.IsTerminal(current.Status):
		d.metrics.RecordNotification(string(d.channel), NotificationOutcomeSkipped)
		log.DebugContext(ctx, "notification already resolved", logger.Status(string(current.Status)))
		return nil
	}

	sendErr := d.sender.Send(ctx, job.delivery())
	if sendErr == nil {
		_, err := d.notifications.TransitionNotification(ctx, job.EventID, d.channel, NotificationUpdate{
			Trigger:  NotificationMarkSent,
			Attempts: attempt,
			At:       d.now(),
		})
		if err != nil && !errors.Is(err, ErrStaleTransition) {
			// The send happened. Retrying would send again, so only log.
			log.ErrorContext(ctx, "notification sent but status not recorded", logger.Error(err))
		}
		d.metrics.RecordNotification(string(d.channel), NotificationOutcomeSent)
		log.InfoContext(ctx, "notification sent")
		return nil
	}

	d.metrics.RecordNotification(string(d.channel), NotificationOutcomeFailed)
	if queue.IsPermanent(sendErr) || lastAttempt(ctx) {
		// The queue escalates next; Escalate records the final error.
		return sendErr
	}
	_, err = d.notifications.TransitionNotification(ctx, job.EventID, d.channel, NotificationUpdate{
		Trigger:   NotificationRecordFailure,
		Attempts:  attempt,
		LastError: sendErr.Error(),
		At:        d.now(),
	})
	switch {
	case errors.Is(err, ErrStaleTransition):
		log.DebugContext(ctx, "notification resolved concurrently")
		return nil
	case err != nil:
		return errors.Join(sendErr, fmt.Errorf("record failure: %w", err))
	}
	return sendErr
}

// Escalate is the terminal handling of a job whose attempts are exhausted:
// the notification becomes DEAD_LETTERED and one DeadLetterRecord is
// written. Both steps tolerate a previous partial escalation.
func (d *Dispatcher) Escalate(ctx context.Context, job ChannelJob, cause error) error {
	info, _ := queue.TaskInfoFromContext(ctx)
	attempts := attemptOf(ctx)
	if info.MaxAttempts > 0 {
		attempts = min(attempts, info.MaxAttempts)
	}
	reason := "attempts exhausted"
	if cause != nil {
		reason = cause.Error()
	}
	log := d.logger.With(logger.EventID(job.EventID), logger.Attempt(attempts, info.MaxAttempts))

	_, err := d.notifications.TransitionNotification(ctx, job.EventID, d.channel, NotificationUpdate{
		Trigger:   NotificationMarkDeadLetter,
		Attempts:  attempts,
		LastError: reason,
		At:        d.now(),
	})
	switch {
	case errors.Is(err, ErrStaleTransition):
		current, gerr := d.notifications.GetNotification(ctx, job.EventID, d.channel)
		if gerr != nil {
			return fmt.Errorf("load notification: %w", gerr)
		}
		if current.Status != NotificationDeadLettered {
			log.InfoContext(ctx, "exhausted job for resolved notification", logger.Status(string(current.Status)))
			return nil
		}
	case errors.Is(err, ErrNotificationNotFound):
		log.WarnContext(ctx, "dead lettering job without notification")
	case err != nil:
		return fmt.Errorf("mark dead lettered: %w", err)
	}

	taskKey := info.Key
	if taskKey == "" {
		taskKey = d.channel.TaskKey(job.EventID)
	}
	now := d.now()
	err = d.deadLetters.CreateDeadLetter(ctx, &DeadLetterRecord{
		EventID:       job.EventID,
		UserID:        job.UserID,
		Channel:       d.channel,
		Recipient:     job.Recipient,
		Subject:       job.Subject,
		Content:       job.Content,
		ErrorReason:   reason,
		FailedAt:      now,
		OriginalJobID: taskKey,
		Attempts:      attempts,
		CreatedAt:     now,
	})
	switch {
	case errors.Is(err, ErrDeadLetterExists):
		return nil
	case err != nil:
		return fmt.Errorf("create dead letter: %w", err)
	}

	d.metrics.RecordNotification(string(d.channel), NotificationOutcomeDead)
	d.metrics.RecordDeadLetter(string(d.channel))
	log.WarnContext(ctx, "notification dead lettered", slog.String("reason", reason))
	return nil
}

func lastAttempt(ctx context.Context) bool {
	info, ok := queue.TaskInfoFromContext(ctx)
	return ok && info.MaxAttempts > 0 && info.Attempt >= info.MaxAttempts
}

func attemptOf(ctx context.Context) int {
	if info, ok := queue.TaskInfoFromContext(ctx); ok && info.Attempt > 0 {
		return info.Attempt
	}
	return 1
}

func maxAttemptsOf(ctx context.Context) int {
	info, _ := queue.TaskInfoFromContext(ctx)
	return info.MaxAttempts
}
