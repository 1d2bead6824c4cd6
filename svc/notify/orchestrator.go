package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/queue"
)

// Orchestrator turns one event into one notification per resolved channel.
type Orchestrator struct {
	events        EventStore
	notifications NotificationStore
	prefs         PreferenceProvider
	enqueuer      TaskEnqueuer
	channels      map[Channel]ChannelSpec
	catalog       *Catalog
	logger        *slog.Logger
	metrics       Recorder
	maxAttempts   int
	now           func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger sets the orchestrator logger.
func WithOrchestratorLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// WithOrchestratorCatalog sets the templates used to render messages.
func WithOrchestratorCatalog(c *Catalog) OrchestratorOption {
	return func(o *Orchestrator) { o.catalog = c }
}

// WithOrchestratorMetrics sets the metrics recorder.
func WithOrchestratorMetrics(r Recorder) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = r }
}

// WithDeliveryAttempts sets the attempt budget of channel tasks.
func WithDeliveryAttempts(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithOrchestratorClock overrides time.Now.
func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an Orchestrator. Channels resolved by prefs that
// have no spec fail the fan-out with ErrUnknownChannel.
func NewOrchestrator(store Store, prefs PreferenceProvider, enqueuer TaskEnqueuer, channels []ChannelSpec, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		events:        store,
		notifications: store,
		prefs:         prefs,
		enqueuer:      enqueuer,
		channels:      make(map[Channel]ChannelSpec, len(channels)),
		catalog:       DefaultCatalog,
		logger:        slog.Default(),
		metrics:       noopRecorder{},
		maxAttempts:   queue.DefaultMaxAttempts,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, c := range channels {
		o.channels[c.Channel] = c
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handler returns the queue handler of orchestration tasks.
func (o *Orchestrator) Handler() queue.Handler {
	return queue.NewTaskHandler(o.Handle,
		queue.WithHandlerName(OrchestrationTask),
		queue.OnExhausted(o.onExhausted),
	)
}

// onExhausted moves an event still PROCESSING to FAILED. This covers a worker
// that died during the last attempt: the redelivered task is escalated
// without running Handle, so nothing else would leave PROCESSING. A FAILED
// event is then eligible for the Reconciler's failed sweep.
func (o *Orchestrator) onExhausted(ctx context.Context, job OrchestrationJob, cause error) error {
	log := o.logger.With(logger.EventID(job.EventID), logger.EventType(string(job.Type)))

	_, err := o.events.TransitionEvent(ctx, job.EventID, EventFail, o.now())
	switch {
	case err == nil, errors.Is(err, ErrStaleTransition), errors.Is(err, ErrEventNotFound):
	default:
		return fmt.Errorf("fail exhausted event: %w", err)
	}

	log.ErrorContext(ctx, "orchestration attempts exhausted", logger.Error(cause))
	return nil
}

// Handle runs one orchestration attempt. A redelivered job for a COMPLETED
// event is acknowledged without work. Any fan-out error moves the event to
// FAILED and is returned so the queue retries; the retry skips channels that
// already have a notification.
func (o *Orchestrator) Handle(ctx context.Context, job OrchestrationJob) error {
	log := o.logger.With(logger.EventID(job.EventID), logger.EventType(string(job.Type)))

	e, err := o.events.TransitionEvent(ctx, job.EventID, EventStart, o.now())
	switch {
	case errors.Is(err, ErrEventNotFound):
		return queue.Permanent(fmt.Errorf("orchestrate %s: %w", job.EventID, err))
	case errors.Is(err, ErrStaleTransition):
		current, gerr := o.events.GetEvent(ctx, job.EventID)
		if gerr == nil && current.Status == EventCompleted {
			log.DebugContext(ctx, "event already completed")
			return nil
		}
		return fmt.Errorf("start event: %w", err)
	case err != nil:
		return fmt.Errorf("start event: %w", err)
	}

	if err := o.fanOut(ctx, e, log); err != nil {
		if _, ferr := o.events.TransitionEvent(ctx, e.EventID, EventFail, o.now()); ferr != nil {
			log.ErrorContext(ctx, "failed to mark event failed", logger.Error(ferr))
		}
		log.ErrorContext(ctx, "event fan-out failed", logger.Error(err))
		return err
	}

	if _, err := o.events.TransitionEvent(ctx, e.EventID, EventComplete, o.now()); err != nil {
		// A concurrent redelivery may have completed the event first.
		if current, gerr := o.events.GetEvent(ctx, e.EventID); gerr == nil && current.Status == EventCompleted {
			return nil
		}
		return fmt.Errorf("complete event: %w", err)
	}
	log.InfoContext(ctx, "event completed")
	return nil
}

func (o *Orchestrator) fanOut(ctx context.Context, e *Event, log *slog.Logger) error {
	channels, err := o.prefs.ResolveChannels(ctx, e.UserID, e.Type)
	if err != nil {
		return errors.Join(ErrPreferencesFailed, err)
	}

	for _, ch := range channels {
		spec, ok := o.channels[ch]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
		}
		if err := o.fanOutChannel(ctx, e, spec, log.With(logger.Channel(string(ch)))); err != nil {
			return fmt.Errorf("fan out %s: %w", ch, err)
		}
	}
	return nil
}

func (o *Orchestrator) fanOutChannel(ctx context.Context, e *Event, spec ChannelSpec, log *slog.Logger) error {
	msg, err := o.catalog.Render(spec.Channel, e.Type, e.Payload)
	if err != nil {
		return err
	}
	recipient, err := o.resolveRecipient(ctx, e, spec.Channel)
	if err != nil {
		return err
	}

	now := o.now()
	n := &Notification{
		EventID:   e.EventID,
		UserID:    e.UserID,
		Channel:   spec.Channel,
		Recipient: recipient,
		Subject:   msg.Subject,
		Content:   msg.Content,
		Status:    NotificationPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if spec.Sync {
		return o.deliverSync(ctx, e, spec, n, log)
	}

	if err := o.notifications.CreateNotification(ctx, n); err != nil {
		if !errors.Is(err, ErrNotificationExists) {
			return fmt.Errorf("create notification: %w", err)
		}
		existing, gerr := o.notifications.GetNotification(ctx, e.EventID, spec.Channel)
		if gerr != nil {
			return fmt.Errorf("load notification: %w", gerr)
		}
		if existing.Status != NotificationPending {
			o.metrics.RecordNotification(string(spec.Channel), NotificationOutcomeSkipped)
			log.DebugContext(ctx, "channel already fanned out", logger.Status(string(existing.Status)))
			return nil
		}
		// A pending record may have lost its enqueue. The keyed enqueue below
		// is a no-op when the task is still live.
		n = existing
	}

	return o.enqueueDelivery(ctx, n)
}

// deliverSync performs the channel side effect inline and records the
// notification as SENT. Sync senders must be idempotent per event, so a
// redelivered job may repeat the send.
func (o *Orchestrator) deliverSync(ctx context.Context, e *Event, spec ChannelSpec, n *Notification, log *slog.Logger) error {
	if _, err := o.notifications.GetNotification(ctx, e.EventID, spec.Channel); err == nil {
		o.metrics.RecordNotification(string(spec.Channel), NotificationOutcomeSkipped)
		return nil
	} else if !errors.Is(err, ErrNotificationNotFound) {
		return fmt.Errorf("load notification: %w", err)
	}

	d := Delivery{
		EventID:   n.EventID,
		UserID:    n.UserID,
		Channel:   n.Channel,
		Recipient: n.Recipient,
		Subject:   n.Subject,
		Content:   n.Content,
		Data:      e.Payload,
	}
	if err := spec.Sender.Send(ctx, d); err != nil {
		o.metrics.RecordNotification(string(spec.Channel), NotificationOutcomeFailed)
		return fmt.Errorf("deliver: %w", err)
	}

	sentAt := o.now()
	n.Status = NotificationSent
	n.Attempts = 1
	n.SentAt = &sentAt
	n.UpdatedAt = sentAt
	if err := o.notifications.CreateNotification(ctx, n); err != nil && !errors.Is(err, ErrNotificationExists) {
		return fmt.Errorf("create notification: %w", err)
	}
	o.metrics.RecordNotification(string(spec.Channel), NotificationOutcomeSent)
	log.InfoContext(ctx, "notification delivered")
	return nil
}

func (o *Orchestrator) enqueueDelivery(ctx context.Context, n *Notification) error {
	err := o.enqueuer.Enqueue(ctx, ChannelJob{
		EventID:   n.EventID,
		UserID:    n.UserID,
		Channel:   n.Channel,
		Recipient: n.Recipient,
		Subject:   n.Subject,
		Content:   n.Content,
	},
		queue.WithQueue(n.Channel.Queue()),
		queue.WithTaskName(n.Channel.TaskName()),
		queue.WithKey(n.Channel.TaskKey(n.EventID)),
		queue.WithMaxAttempts(o.maxAttempts),
	)
	if err != nil {
		return fmt.Errorf("enqueue delivery: %w", err)
	}
	return nil
}

// resolveRecipient picks the address for channel. EMAIL prefers the payload
// email, then the stored preference address, then a placeholder derived from
// the user id. Other channels address the user id.
func (o *Orchestrator) resolveRecipient(ctx context.Context, e *Event, channel Channel) (string, error) {
	if channel != ChannelEmail {
		return e.UserID, nil
	}
	if addr, ok := e.Payload["email"].(string); ok && strings.TrimSpace(addr) != "" {
		return strings.TrimSpace(addr), nil
	}
	if src, ok := o.prefs.(PreferenceSource); ok {
		p, err := src.Lookup(ctx, e.UserID)
		if err != nil {
			return "", errors.Join(ErrPreferencesFailed, err)
		}
		if p.EmailAddress != "" {
			return p.EmailAddress, nil
		}
	}
	return fmt.Sprintf("user-%s@example.com", e.UserID), nil
}
