package notify

import (
	"context"
	"time"
)

// EventStore persists events. Implementations enforce eventId uniqueness with
// a unique index and apply transitions as conditional updates on status.
type EventStore interface {
	// CreateEvent inserts e. An existing eventId returns ErrEventExists.
	CreateEvent(ctx context.Context, e *Event) error
	// GetEvent returns ErrEventNotFound for unknown ids.
	GetEvent(ctx context.Context, eventID string) (*Event, error)
	// TransitionEvent fires trigger against the stored status and returns the
	// updated event. A status the trigger cannot fire from returns
	// ErrStaleTransition.
	TransitionEvent(ctx context.Context, eventID string, trigger EventTrigger, at time.Time) (*Event, error)
	// ListEvents returns events matching filter, oldest first.
	ListEvents(ctx context.Context, filter EventFilter) ([]*Event, error)
}

// EventFilter narrows ListEvents. Zero fields match everything.
type EventFilter struct {
	Statuses      []EventStatus
	CreatedBefore time.Time
	Limit         int
}

// NotificationStore persists notifications. (EventID, Channel) is unique.
type NotificationStore interface {
	// CreateNotification inserts n. An existing (eventId, channel) pair
	// returns ErrNotificationExists.
	CreateNotification(ctx context.Context, n *Notification) error
	GetNotification(ctx context.Context, eventID string, channel Channel) (*Notification, error)
	ListNotifications(ctx context.Context, eventID string) ([]*Notification, error)
	// TransitionNotification applies u only while the stored status allows
	// u.Trigger. A resolved notification returns ErrStaleTransition.
	TransitionNotification(ctx context.Context, eventID string, channel Channel, u NotificationUpdate) (*Notification, error)
}

// DeadLetterStore persists dead letter records. (EventID, Channel) is unique.
type DeadLetterStore interface {
	// CreateDeadLetter returns ErrDeadLetterExists when the pair is recorded.
	CreateDeadLetter(ctx context.Context, r *DeadLetterRecord) error
	// ListDeadLetters returns records newest first.
	ListDeadLetters(ctx context.Context, filter DeadLetterFilter) ([]*DeadLetterRecord, error)
}

// DeadLetterFilter narrows ListDeadLetters. Zero fields match everything.
type DeadLetterFilter struct {
	Channel Channel
	Since   time.Time
	Limit   int
}

// Store bundles the three stores. Every backend implements all of them.
type Store interface {
	EventStore
	NotificationStore
	DeadLetterStore
}

// DefaultListLimit caps list queries that set no limit.
const DefaultListLimit = 100

// ListLimit normalizes a caller supplied limit for store backends.
func ListLimit(n int) int {
	if n <= 0 || n > 1000 {
		return DefaultListLimit
	}
	return n
}
