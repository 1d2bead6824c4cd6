// Package mongostore implements notify.Store on MongoDB.
//
// Uniqueness of eventId and of (eventId, channel) is enforced by unique
// indexes created in EnsureIndexes; status transitions are single
// findOneAndUpdate calls filtered on the allowed source statuses.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/notifyhub/pkg/statemachine"
	"github.com/dmitrymomot/notifyhub/svc/notify"
)

// Collection names.
const (
	EventsCollection        = "events"
	NotificationsCollection = "notifications"
	DeadLettersCollection   = "failed_notifications"
)

// Store is a notify.Store backed by three MongoDB collections.
type Store struct {
	events        *mongo.Collection
	notifications *mongo.Collection
	deadLetters   *mongo.Collection
}

var _ notify.Store = (*Store)(nil)

// New returns a Store on db. Call EnsureIndexes before use.
func New(db *mongo.Database) *Store {
	return &Store{
		events:        db.Collection(EventsCollection),
		notifications: db.Collection(NotificationsCollection),
		deadLetters:   db.Collection(DeadLettersCollection),
	}
}

// EnsureIndexes creates the unique and listing indexes. It is idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "eventId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("mongostore: events indexes: %w", err)
	}
	if _, err := s.notifications.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "eventId", Value: 1}, {Key: "channel", Value: 1}}, Options: options.Index().SetUnique(true)},
	}); err != nil {
		return fmt.Errorf("mongostore: notifications indexes: %w", err)
	}
	if _, err := s.deadLetters.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "eventId", Value: 1}, {Key: "channel", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "failedAt", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("mongostore: dead letter indexes: %w", err)
	}
	return nil
}

func (s *Store) CreateEvent(ctx context.Context, e *notify.Event) error {
	if _, err := s.events.InsertOne(ctx, e); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return notify.ErrEventExists
		}
		return fmt.Errorf("mongostore: insert event: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, eventID string) (*notify.Event, error) {
	var e notify.Event
	err := s.events.FindOne(ctx, bson.D{{Key: "eventId", Value: eventID}}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notify.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: get event: %w", err)
	}
	return &e, nil
}

func (s *Store) TransitionEvent(ctx context.Context, eventID string, trigger notify.EventTrigger, at time.Time) (*notify.Event, error) {
	to, ok := notify.EventLifecycle.Target(trigger)
	if !ok {
		return nil, fmt.Errorf("mongostore: %w: %s", statemachine.ErrInvalidTransition, trigger)
	}

	set := bson.D{{Key: "status", Value: to}, {Key: "updatedAt", Value: at}}
	if to == notify.EventCompleted {
		set = append(set, bson.E{Key: "processedAt", Value: at})
	}

	var e notify.Event
	err := s.events.FindOneAndUpdate(ctx,
		bson.D{
			{Key: "eventId", Value: eventID},
			{Key: "status", Value: bson.D{{Key: "$in", Value: notify.EventLifecycle.Sources(trigger)}}},
		},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.explainEventMiss(ctx, eventID, trigger)
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: transition event: %w", err)
	}
	return &e, nil
}

func (s *Store) explainEventMiss(ctx context.Context, eventID string, trigger notify.EventTrigger) error {
	current, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	return errors.Join(notify.ErrStaleTransition,
		statemachine.NewErrNoTransitionAvailable(string(current.Status), string(trigger)))
}

func (s *Store) ListEvents(ctx context.Context, filter notify.EventFilter) ([]*notify.Event, error) {
	q := bson.D{}
	if len(filter.Statuses) > 0 {
		q = append(q, bson.E{Key: "status", Value: bson.D{{Key: "$in", Value: filter.Statuses}}})
	}
	if !filter.CreatedBefore.IsZero() {
		q = append(q, bson.E{Key: "createdAt", Value: bson.D{{Key: "$lt", Value: filter.CreatedBefore}}})
	}

	cur, err := s.events.Find(ctx, q, options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "eventId", Value: 1}}).
		SetLimit(int64(notify.ListLimit(filter.Limit))))
	if err != nil {
		return nil, fmt.Errorf("mongostore: list events: %w", err)
	}
	out := []*notify.Event{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongostore: decode events: %w", err)
	}
	return out, nil
}

func (s *Store) CreateNotification(ctx context.Context, n *notify.Notification) error {
	if _, err := s.notifications.InsertOne(ctx, n); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return notify.ErrNotificationExists
		}
		return fmt.Errorf("mongostore: insert notification: %w", err)
	}
	return nil
}

func (s *Store) GetNotification(ctx context.Context, eventID string, channel notify.Channel) (*notify.Notification, error) {
	var n notify.Notification
	err := s.notifications.FindOne(ctx, notificationKey(eventID, channel)).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notify.ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: get notification: %w", err)
	}
	return &n, nil
}

func (s *Store) ListNotifications(ctx context.Context, eventID string) ([]*notify.Notification, error) {
	cur, err := s.notifications.Find(ctx, bson.D{{Key: "eventId", Value: eventID}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "channel", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongostore: list notifications: %w", err)
	}
	out := []*notify.Notification{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongostore: decode notifications: %w", err)
	}
	return out, nil
}

func (s *Store) TransitionNotification(ctx context.Context, eventID string, channel notify.Channel, u notify.NotificationUpdate) (*notify.Notification, error) {
	to, ok := notify.NotificationLifecycle.Target(u.Trigger)
	if !ok {
		return nil, fmt.Errorf("mongostore: %w: %s", statemachine.ErrInvalidTransition, u.Trigger)
	}

	set := bson.D{{Key: "status", Value: to}, {Key: "updatedAt", Value: u.At}}
	switch u.Trigger {
	case notify.NotificationMarkSent:
		set = append(set, bson.E{Key: "sentAt", Value: u.At})
	default:
		if u.LastError != "" {
			set = append(set, bson.E{Key: "lastError", Value: u.LastError})
		}
	}

	filter := append(notificationKey(eventID, channel),
		bson.E{Key: "status", Value: bson.D{{Key: "$in", Value: notify.NotificationLifecycle.Sources(u.Trigger)}}})

	var n notify.Notification
	err := s.notifications.FindOneAndUpdate(ctx, filter,
		bson.D{
			{Key: "$set", Value: set},
			{Key: "$max", Value: bson.D{{Key: "attempts", Value: u.Attempts}}},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		current, gerr := s.GetNotification(ctx, eventID, channel)
		if gerr != nil {
			return nil, gerr
		}
		return nil, errors.Join(notify.ErrStaleTransition,
			statemachine.NewErrNoTransitionAvailable(string(current.Status), string(u.Trigger)))
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: transition notification: %w", err)
	}
	return &n, nil
}

func (s *Store) CreateDeadLetter(ctx context.Context, r *notify.DeadLetterRecord) error {
	if _, err := s.deadLetters.InsertOne(ctx, r); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return notify.ErrDeadLetterExists
		}
		return fmt.Errorf("mongostore: insert dead letter: %w", err)
	}
	return nil
}

func (s *Store) ListDeadLetters(ctx context.Context, filter notify.DeadLetterFilter) ([]*notify.DeadLetterRecord, error) {
	q := bson.D{}
	if filter.Channel != "" {
		q = append(q, bson.E{Key: "channel", Value: filter.Channel})
	}
	if !filter.Since.IsZero() {
		q = append(q, bson.E{Key: "failedAt", Value: bson.D{{Key: "$gte", Value: filter.Since}}})
	}

	cur, err := s.deadLetters.Find(ctx, q, options.Find().
		SetSort(bson.D{{Key: "failedAt", Value: -1}, {Key: "eventId", Value: 1}}).
		SetLimit(int64(notify.ListLimit(filter.Limit))))
	if err != nil {
		return nil, fmt.Errorf("mongostore: list dead letters: %w", err)
	}
	out := []*notify.DeadLetterRecord{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongostore: decode dead letters: %w", err)
	}
	return out, nil
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.events.Database().Client().Ping(ctx, nil)
}

func notificationKey(eventID string, channel notify.Channel) bson.D {
	return bson.D{{Key: "eventId", Value: eventID}, {Key: "channel", Value: channel}}
}
