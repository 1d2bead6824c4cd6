package inbox

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStorage keeps messages in process memory.
type MemoryStorage struct {
	mu       sync.RWMutex
	messages map[string][]Message // userID -> messages
	ids      map[string]struct{}
	now      func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		messages: make(map[string][]Message),
		ids:      make(map[string]struct{}),
		now:      time.Now,
	}
}

func (s *MemoryStorage) Create(ctx context.Context, msg Message) error {
	if msg.ID == "" || msg.UserID == "" {
		return ErrInvalidMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[msg.ID]; ok {
		return ErrMessageExists
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	s.ids[msg.ID] = struct{}{}
	s.messages[msg.UserID] = append(s.messages[msg.UserID], msg)
	return nil
}

func (s *MemoryStorage) Get(ctx context.Context, userID, id string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.messages[userID] {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, ErrMessageNotFound
}

func (s *MemoryStorage) List(ctx context.Context, userID string, opts ListOptions) ([]Message, error) {
	s.mu.RLock()
	out := make([]Message, 0, len(s.messages[userID]))
	for _, m := range s.messages[userID] {
		if opts.OnlyUnread && m.Read {
			continue
		}
		out = append(out, m)
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b Message) int { return b.CreatedAt.Compare(a.CreatedAt) })

	if opts.Offset >= len(out) {
		return []Message{}, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MemoryStorage) MarkRead(ctx context.Context, userID string, ids ...string) (int, error) {
	return s.markRead(userID, func(m Message) bool { return slices.Contains(ids, m.ID) }), nil
}

func (s *MemoryStorage) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.markRead(userID, func(Message) bool { return true }), nil
}

func (s *MemoryStorage) markRead(userID string, match func(Message) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	msgs := s.messages[userID]
	for i := range msgs {
		if msgs[i].Read || !match(msgs[i]) {
			continue
		}
		msgs[i].Read = true
		msgs[i].ReadAt = &now
		n++
	}
	return n
}

func (s *MemoryStorage) CountUnread(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, m := range s.messages[userID] {
		if !m.Read {
			n++
		}
	}
	return n, nil
}
