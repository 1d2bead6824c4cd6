package notify

import (
	"errors"
	"strings"
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/statemachine"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelInApp Channel = "IN_APP"
)

// Queue is the job queue that carries deliveries for the channel.
func (c Channel) Queue() string {
	return strings.ToLower(string(c)) + "_queue"
}

// TaskKey is the dedupe key of the delivery job for eventID on this channel.
func (c Channel) TaskKey(eventID string) string {
	return string(c) + ":" + eventID
}

// TaskName is the handler name of the channel's delivery jobs.
func (c Channel) TaskName() string {
	return "notify.deliver." + strings.ToLower(string(c))
}

// NotificationStatus is the delivery state of one (event, channel) pair.
type NotificationStatus string

const (
	NotificationPending      NotificationStatus = "PENDING"
	NotificationSent         NotificationStatus = "SENT"
	NotificationFailed       NotificationStatus = "FAILED"
	NotificationDeadLettered NotificationStatus = "DEAD_LETTERED"
)

// NotificationTrigger moves a notification between statuses.
type NotificationTrigger string

const (
	NotificationMarkSent       NotificationTrigger = "sent"
	NotificationRecordFailure  NotificationTrigger = "failed"
	NotificationMarkDeadLetter NotificationTrigger = "dead_letter"
)

// NotificationLifecycle is the notification state machine. SENT and
// DEAD_LETTERED are terminal, so a stale retry can never move a resolved
// notification backwards.
var NotificationLifecycle = statemachine.Must(statemachine.NewBuilder[NotificationStatus, NotificationTrigger]().
	From(NotificationPending, NotificationFailed).When(NotificationMarkSent).To(NotificationSent).
	From(NotificationPending, NotificationFailed).When(NotificationRecordFailure).To(NotificationFailed).
	From(NotificationPending, NotificationFailed).When(NotificationMarkDeadLetter).To(NotificationDeadLettered).
	Build())

// Notification is the delivery lineage of one event on one channel.
// (EventID, Channel) is unique.
type Notification struct {
	EventID   string             `json:"eventId" bson:"eventId"`
	UserID    string             `json:"userId" bson:"userId"`
	Channel   Channel            `json:"channel" bson:"channel"`
	Recipient string             `json:"recipient" bson:"recipient"`
	Subject   string             `json:"subject,omitempty" bson:"subject,omitempty"`
	Content   string             `json:"content" bson:"content"`
	Status    NotificationStatus `json:"status" bson:"status"`
	Attempts  int                `json:"attempts" bson:"attempts"`
	LastError string             `json:"lastError,omitempty" bson:"lastError,omitempty"`
	SentAt    *time.Time         `json:"sentAt,omitempty" bson:"sentAt,omitempty"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// NotificationUpdate is one attempt's outcome applied through the lifecycle.
type NotificationUpdate struct {
	Trigger   NotificationTrigger
	Attempts  int    // attempt number that produced the outcome
	LastError string // recorded for failed and dead_letter
	At        time.Time
}

// ApplyNotificationUpdate mutates n in place. Attempts never decrease.
// Store backends call it after loading the stored record.
func ApplyNotificationUpdate(n *Notification, u NotificationUpdate) error {
	to, err := NotificationLifecycle.Fire(n.Status, u.Trigger)
	if err != nil {
		return errors.Join(ErrStaleTransition, err)
	}
	n.Status = to
	n.Attempts = max(n.Attempts, u.Attempts)
	n.UpdatedAt = u.At
	switch u.Trigger {
	case NotificationMarkSent:
		n.SentAt = &u.At
	case NotificationRecordFailure, NotificationMarkDeadLetter:
		if u.LastError != "" {
			n.LastError = u.LastError
		}
	}
	return nil
}
