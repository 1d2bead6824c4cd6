package notify

import "errors"

var (
	ErrEventExists          = errors.New("event already exists")
	ErrEventNotFound        = errors.New("event not found")
	ErrNotificationExists   = errors.New("notification already exists for event and channel")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrDeadLetterExists     = errors.New("dead letter already recorded for event and channel")

	// ErrStaleTransition means the record is no longer in a status the
	// trigger may fire from, usually because another attempt resolved it.
	ErrStaleTransition = errors.New("stale status transition")

	ErrEnqueueFailed      = errors.New("event stored but orchestration enqueue failed")
	ErrUnknownEventType   = errors.New("unknown event type")
	ErrUnknownChannel     = errors.New("no sender configured for channel")
	ErrPreferencesFailed  = errors.New("failed to resolve channel preferences")
	ErrInvalidPreferences = errors.New("invalid preferences document")
)
