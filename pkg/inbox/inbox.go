package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
)

// Deliverer pushes a stored message to a connected client. Delivery is best
// effort; the stored message is the source of truth.
type Deliverer interface {
	Deliver(ctx context.Context, msg Message) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, msg Message) error

// Deliver calls f(ctx, msg).
func (f DelivererFunc) Deliver(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Inbox stores in-app messages and optionally pushes them in real time.
type Inbox struct {
	storage   Storage
	deliverer Deliverer
	logger    *slog.Logger
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithDeliverer pushes every newly stored message through d.
func WithDeliverer(d Deliverer) Option {
	return func(i *Inbox) { i.deliverer = d }
}

// WithLogger sets the logger used to report failed pushes.
func WithLogger(l *slog.Logger) Option {
	return func(i *Inbox) { i.logger = l }
}

// New creates an Inbox on storage. Without WithDeliverer messages are only
// stored.
func New(storage Storage, opts ...Option) *Inbox {
	i := &Inbox{storage: storage, logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Send stores msg. A message whose ID is already stored is treated as
// delivered, so Send is safe to repeat with a deterministic ID. It reports
// whether the message was newly created.
func (i *Inbox) Send(ctx context.Context, msg Message) (bool, error) {
	if err := i.storage.Create(ctx, msg); err != nil {
		if errors.Is(err, ErrMessageExists) {
			return false, nil
		}
		return false, fmt.Errorf("store inbox message: %w", err)
	}

	if i.deliverer != nil {
		if err := i.deliverer.Deliver(ctx, msg); err != nil {
			i.logger.LogAttrs(ctx, slog.LevelWarn, "inbox push failed, message stored",
				slog.String("message_id", msg.ID),
				logger.UserID(msg.UserID),
				logger.Error(err),
			)
		}
	}
	return true, nil
}

// List returns the user's messages, newest first.
func (i *Inbox) List(ctx context.Context, userID string, opts ListOptions) ([]Message, error) {
	return i.storage.List(ctx, userID, opts)
}

// MarkRead marks the listed messages of userID read and returns how many
// changed. Unknown and already read ids are skipped.
func (i *Inbox) MarkRead(ctx context.Context, userID string, ids ...string) (int, error) {
	return i.storage.MarkRead(ctx, userID, ids...)
}

// MarkAllRead marks every unread message of userID read.
func (i *Inbox) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return i.storage.MarkAllRead(ctx, userID)
}

// CountUnread returns the number of unread messages of userID.
func (i *Inbox) CountUnread(ctx context.Context, userID string) (int, error) {
	return i.storage.CountUnread(ctx, userID)
}

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*MongoStorage)(nil)
	_ Storage = (*PostgresStorage)(nil)

	_ Deliverer = (*RedisPublisher)(nil)
)
