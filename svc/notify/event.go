package notify

import (
	"errors"
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/statemachine"
)

// EventType names a kind of domain event. The set is closed per Catalog and
// extended with Catalog.Register.
type EventType string

const (
	EventUserSignup     EventType = "USER_SIGNUP"
	EventOrderPlaced    EventType = "ORDER_PLACED"
	EventPaymentSuccess EventType = "PAYMENT_SUCCESS"
	EventPasswordReset  EventType = "PASSWORD_RESET"
)

// EventStatus is the processing state of an ingested event.
type EventStatus string

const (
	EventReceived   EventStatus = "RECEIVED"
	EventProcessing EventStatus = "PROCESSING"
	EventCompleted  EventStatus = "COMPLETED"
	EventFailed     EventStatus = "FAILED"
)

// EventTrigger moves an event between statuses.
type EventTrigger string

const (
	EventStart    EventTrigger = "start"
	EventComplete EventTrigger = "complete"
	EventFail     EventTrigger = "fail"
)

// EventLifecycle is the event state machine. Start may re-enter PROCESSING so
// that a job redelivered after a worker crash can resume the fan-out.
// COMPLETED is terminal.
var EventLifecycle = statemachine.Must(statemachine.NewBuilder[EventStatus, EventTrigger]().
	From(EventReceived, EventFailed, EventProcessing).When(EventStart).To(EventProcessing).
	From(EventProcessing).When(EventComplete).To(EventCompleted).
	From(EventProcessing).When(EventFail).To(EventFailed).
	Build())

// Event is one ingested occurrence. Events are never deleted.
type Event struct {
	EventID     string         `json:"eventId" bson:"eventId"`
	Type        EventType      `json:"type" bson:"type"`
	UserID      string         `json:"userId" bson:"userId"`
	Payload     map[string]any `json:"data" bson:"data"`
	Status      EventStatus    `json:"status" bson:"status"`
	CreatedAt   time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt" bson:"updatedAt"`
	ProcessedAt *time.Time     `json:"processedAt,omitempty" bson:"processedAt,omitempty"`
}

// ApplyEventTrigger mutates e in place. Store backends call it after loading
// the stored record.
func ApplyEventTrigger(e *Event, trigger EventTrigger, at time.Time) error {
	to, err := EventLifecycle.Fire(e.Status, trigger)
	if err != nil {
		return errors.Join(ErrStaleTransition, err)
	}
	e.Status = to
	e.UpdatedAt = at
	if to == EventCompleted {
		e.ProcessedAt = &at
	}
	return nil
}
