package notify

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-node development.
// Records are copied on the way in and out.
type MemoryStore struct {
	mu            sync.RWMutex
	events        map[string]*Event
	notifications map[notificationKey]*Notification
	deadLetters   map[notificationKey]*DeadLetterRecord
}

type notificationKey struct {
	eventID string
	channel Channel
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:        make(map[string]*Event),
		notifications: make(map[notificationKey]*Notification),
		deadLetters:   make(map[notificationKey]*DeadLetterRecord),
	}
}

func (s *MemoryStore) CreateEvent(ctx context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[e.EventID]; ok {
		return ErrEventExists
	}
	s.events[e.EventID] = cloneEvent(e)
	return nil
}

func (s *MemoryStore) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	return cloneEvent(e), nil
}

func (s *MemoryStore) TransitionEvent(ctx context.Context, eventID string, trigger EventTrigger, at time.Time) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	next := cloneEvent(e)
	if err := ApplyEventTrigger(next, trigger, at); err != nil {
		return nil, err
	}
	s.events[eventID] = next
	return cloneEvent(next), nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Event
	for _, e := range s.events {
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, e.Status) {
			continue
		}
		if !filter.CreatedBefore.IsZero() && !e.CreatedAt.Before(filter.CreatedBefore) {
			continue
		}
		out = append(out, cloneEvent(e))
	}
	slices.SortFunc(out, func(a, b *Event) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.EventID, b.EventID))
	})
	if limit := ListLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CreateNotification(ctx context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := notificationKey{n.EventID, n.Channel}
	if _, ok := s.notifications[key]; ok {
		return ErrNotificationExists
	}
	cp := *n
	s.notifications[key] = &cp
	return nil
}

func (s *MemoryStore) GetNotification(ctx context.Context, eventID string, channel Channel) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[notificationKey{eventID, channel}]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *MemoryStore) ListNotifications(ctx context.Context, eventID string) ([]*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Notification
	for key, n := range s.notifications {
		if key.eventID == eventID {
			cp := *n
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *Notification) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.Channel, b.Channel))
	})
	return out, nil
}

func (s *MemoryStore) TransitionNotification(ctx context.Context, eventID string, channel Channel, u NotificationUpdate) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := notificationKey{eventID, channel}
	n, ok := s.notifications[key]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	next := *n
	if err := ApplyNotificationUpdate(&next, u); err != nil {
		return nil, err
	}
	s.notifications[key] = &next
	out := next
	return &out, nil
}

func (s *MemoryStore) CreateDeadLetter(ctx context.Context, r *DeadLetterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := notificationKey{r.EventID, r.Channel}
	if _, ok := s.deadLetters[key]; ok {
		return ErrDeadLetterExists
	}
	cp := *r
	s.deadLetters[key] = &cp
	return nil
}

func (s *MemoryStore) ListDeadLetters(ctx context.Context, filter DeadLetterFilter) ([]*DeadLetterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*DeadLetterRecord
	for _, r := range s.deadLetters {
		if filter.Channel != "" && r.Channel != filter.Channel {
			continue
		}
		if !filter.Since.IsZero() && r.FailedAt.Before(filter.Since) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *DeadLetterRecord) int {
		return cmp.Or(b.FailedAt.Compare(a.FailedAt), cmp.Compare(a.EventID, b.EventID))
	})
	if limit := ListLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneEvent(e *Event) *Event {
	cp := *e
	cp.Payload = maps.Clone(e.Payload)
	if e.ProcessedAt != nil {
		t := *e.ProcessedAt
		cp.ProcessedAt = &t
	}
	return &cp
}
