package inbox

import (
	"context"
	"errors"
	"time"
)

var (
	ErrMessageNotFound = errors.New("inbox message not found")
	ErrMessageExists   = errors.New("inbox message already exists")
	ErrInvalidMessage  = errors.New("inbox message requires id and user id")
)

// Message is one entry in a user's in-app inbox.
type Message struct {
	ID        string         `json:"id" bson:"_id"`
	UserID    string         `json:"userId" bson:"userId"`
	Title     string         `json:"title,omitempty" bson:"title,omitempty"`
	Body      string         `json:"body" bson:"body"`
	Data      map[string]any `json:"data,omitempty" bson:"data,omitempty"`
	Read      bool           `json:"read" bson:"read"`
	ReadAt    *time.Time     `json:"readAt,omitempty" bson:"readAt,omitempty"`
	CreatedAt time.Time      `json:"createdAt" bson:"createdAt"`
}

// Storage persists inbox messages. Create must reject a second message with
// the same ID with ErrMessageExists.
type Storage interface {
	Create(ctx context.Context, msg Message) error
	Get(ctx context.Context, userID, id string) (*Message, error)
	List(ctx context.Context, userID string, opts ListOptions) ([]Message, error)
	MarkRead(ctx context.Context, userID string, ids ...string) (int, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

// ListOptions filters and paginates List. Results are newest first.
type ListOptions struct {
	Limit      int // 0 means no limit
	Offset     int
	OnlyUnread bool
}
