package inbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PostgresStorage keeps messages in the inbox_messages table. The schema
// ships with the notify pgstore migrations.
type PostgresStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStorage returns a PostgresStorage using db.
func NewPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db, now: time.Now}
}

const messageColumns = `id, user_id, title, body, data, read, read_at, created_at`

func (s *PostgresStorage) Create(ctx context.Context, msg Message) error {
	if msg.ID == "" || msg.UserID == "" {
		return ErrInvalidMessage
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	var data []byte
	if msg.Data != nil {
		var err error
		if data, err = json.Marshal(msg.Data); err != nil {
			return fmt.Errorf("inbox: encode message data: %w", err)
		}
	}
	var readAt sql.NullTime
	if msg.ReadAt != nil {
		readAt = sql.NullTime{Time: *msg.ReadAt, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO inbox_messages (`+messageColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		msg.ID, msg.UserID, msg.Title, msg.Body, data, msg.Read, readAt, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inbox: insert message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inbox: insert message: %w", err)
	}
	if n == 0 {
		return ErrMessageExists
	}
	return nil
}

func (s *PostgresStorage) Get(ctx context.Context, userID, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM inbox_messages WHERE user_id = $1 AND id = $2`, userID, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("inbox: get message: %w", err)
	}
	return &m, nil
}

func (s *PostgresStorage) List(ctx context.Context, userID string, opts ListOptions) ([]Message, error) {
	query := `SELECT ` + messageColumns + ` FROM inbox_messages WHERE user_id = $1`
	args := []any{userID}
	if opts.OnlyUnread {
		query += ` AND NOT read`
	}
	query += ` ORDER BY created_at DESC, id`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inbox: list messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("inbox: scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inbox: list messages: %w", err)
	}
	return out, nil
}

func (s *PostgresStorage) MarkRead(ctx context.Context, userID string, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := []any{s.now(), userID}
	ph := make([]string, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
		ph = append(ph, fmt.Sprintf("$%d", len(args)))
	}
	return s.markRead(ctx, ` AND id IN (`+strings.Join(ph, ", ")+`)`, args...)
}

func (s *PostgresStorage) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.markRead(ctx, "", s.now(), userID)
}

func (s *PostgresStorage) markRead(ctx context.Context, filter string, args ...any) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE inbox_messages SET read = TRUE, read_at = $1 WHERE user_id = $2 AND NOT read`+filter, args...)
	if err != nil {
		return 0, fmt.Errorf("inbox: mark read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("inbox: mark read: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStorage) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inbox_messages WHERE user_id = $1 AND NOT read`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("inbox: count unread: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (Message, error) {
	var (
		m      Message
		data   []byte
		readAt sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.UserID, &m.Title, &m.Body, &data, &m.Read, &readAt, &m.CreatedAt); err != nil {
		return Message{}, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &m.Data); err != nil {
			return Message{}, fmt.Errorf("inbox: decode message data: %w", err)
		}
	}
	if readAt.Valid {
		t := readAt.Time
		m.ReadAt = &t
	}
	return m, nil
}
