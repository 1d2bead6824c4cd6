// Package pgstore implements notify.Store on PostgreSQL through database/sql.
//
// Open the handle from a pgx pool with stdlib.OpenDBFromPool and apply
// Migrations with pg.Migrate before use. Primary keys enforce the uniqueness
// of events and of (event_id, channel); transitions are single UPDATE
// statements filtered on the allowed source statuses.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/pg"
	"github.com/dmitrymomot/notifyhub/pkg/statemachine"
	"github.com/dmitrymomot/notifyhub/svc/notify"
)

// Store is a notify.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ notify.Store = (*Store)(nil)

// New returns a Store using db.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const eventColumns = `event_id, type, user_id, data, status, created_at, updated_at, processed_at`

func (s *Store) CreateEvent(ctx context.Context, e *notify.Event) error {
	data, err := encodePayload(e.Payload)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.EventID, string(e.Type), e.UserID, data, string(e.Status), e.CreatedAt, e.UpdatedAt, nullTime(e.ProcessedAt),
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return notify.ErrEventExists
		}
		return fmt.Errorf("pgstore: insert event: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, eventID string) (*notify.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE event_id = $1`, eventID)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notify.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get event: %w", err)
	}
	return e, nil
}

func (s *Store) TransitionEvent(ctx context.Context, eventID string, trigger notify.EventTrigger, at time.Time) (*notify.Event, error) {
	to, ok := notify.EventLifecycle.Target(trigger)
	if !ok {
		return nil, fmt.Errorf("pgstore: %w: %s", statemachine.ErrInvalidTransition, trigger)
	}

	var processedAt any
	if to == notify.EventCompleted {
		processedAt = at
	}
	sources := notify.EventLifecycle.Sources(trigger)
	args := []any{string(to), at, processedAt, eventID}
	in, args := inClause(args, sources)

	row := s.db.QueryRowContext(ctx,
		`UPDATE events SET status = $1, updated_at = $2, processed_at = COALESCE($3, processed_at)
		 WHERE event_id = $4 AND status IN (`+in+`)
		 RETURNING `+eventColumns,
		args...,
	)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		current, gerr := s.GetEvent(ctx, eventID)
		if gerr != nil {
			return nil, gerr
		}
		return nil, errors.Join(notify.ErrStaleTransition,
			statemachine.NewErrNoTransitionAvailable(string(current.Status), string(trigger)))
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: transition event: %w", err)
	}
	return e, nil
}

func (s *Store) ListEvents(ctx context.Context, filter notify.EventFilter) ([]*notify.Event, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		var in string
		in, args = inClause(args, filter.Statuses)
		where = append(where, "status IN ("+in+")")
	}
	if !filter.CreatedBefore.IsZero() {
		args = append(args, filter.CreatedBefore)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	args = append(args, notify.ListLimit(filter.Limit))

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY created_at, event_id LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list events: %w", err)
	}
	defer rows.Close()

	out := []*notify.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const notificationColumns = `event_id, channel, user_id, recipient, subject, content, status, attempts, last_error, sent_at, created_at, updated_at`

func (s *Store) CreateNotification(ctx context.Context, n *notify.Notification) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (`+notificationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		n.EventID, string(n.Channel), n.UserID, n.Recipient, n.Subject, n.Content, string(n.Status),
		n.Attempts, n.LastError, nullTime(n.SentAt), n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return notify.ErrNotificationExists
		}
		return fmt.Errorf("pgstore: insert notification: %w", err)
	}
	return nil
}

func (s *Store) GetNotification(ctx context.Context, eventID string, channel notify.Channel) (*notify.Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE event_id = $1 AND channel = $2`,
		eventID, string(channel),
	)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notify.ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get notification: %w", err)
	}
	return n, nil
}

func (s *Store) ListNotifications(ctx context.Context, eventID string) ([]*notify.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE event_id = $1 ORDER BY created_at, channel`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list notifications: %w", err)
	}
	defer rows.Close()

	out := []*notify.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) TransitionNotification(ctx context.Context, eventID string, channel notify.Channel, u notify.NotificationUpdate) (*notify.Notification, error) {
	to, ok := notify.NotificationLifecycle.Target(u.Trigger)
	if !ok {
		return nil, fmt.Errorf("pgstore: %w: %s", statemachine.ErrInvalidTransition, u.Trigger)
	}

	var sentAt any
	if u.Trigger == notify.NotificationMarkSent {
		sentAt = u.At
	}
	var lastError any
	if u.Trigger != notify.NotificationMarkSent && u.LastError != "" {
		lastError = u.LastError
	}

	args := []any{string(to), u.Attempts, lastError, sentAt, u.At, eventID, string(channel)}
	in, args := inClause(args, notify.NotificationLifecycle.Sources(u.Trigger))

	row := s.db.QueryRowContext(ctx,
		`UPDATE notifications SET status = $1, attempts = GREATEST(attempts, $2),
		 last_error = COALESCE($3, last_error), sent_at = COALESCE($4, sent_at), updated_at = $5
		 WHERE event_id = $6 AND channel = $7 AND status IN (`+in+`)
		 RETURNING `+notificationColumns,
		args...,
	)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		current, gerr := s.GetNotification(ctx, eventID, channel)
		if gerr != nil {
			return nil, gerr
		}
		return nil, errors.Join(notify.ErrStaleTransition,
			statemachine.NewErrNoTransitionAvailable(string(current.Status), string(u.Trigger)))
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: transition notification: %w", err)
	}
	return n, nil
}

const deadLetterColumns = `event_id, channel, user_id, recipient, subject, content, error_reason, failed_at, original_job_id, attempts, created_at`

func (s *Store) CreateDeadLetter(ctx context.Context, r *notify.DeadLetterRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO failed_notifications (`+deadLetterColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.EventID, string(r.Channel), r.UserID, r.Recipient, r.Subject, r.Content,
		r.ErrorReason, r.FailedAt, r.OriginalJobID, r.Attempts, r.CreatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return notify.ErrDeadLetterExists
		}
		return fmt.Errorf("pgstore: insert dead letter: %w", err)
	}
	return nil
}

func (s *Store) ListDeadLetters(ctx context.Context, filter notify.DeadLetterFilter) ([]*notify.DeadLetterRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.Channel != "" {
		args = append(args, string(filter.Channel))
		where = append(where, fmt.Sprintf("channel = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		where = append(where, fmt.Sprintf("failed_at >= $%d", len(args)))
	}
	args = append(args, notify.ListLimit(filter.Limit))

	query := `SELECT ` + deadLetterColumns + ` FROM failed_notifications`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY failed_at DESC, event_id LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list dead letters: %w", err)
	}
	defer rows.Close()

	out := []*notify.DeadLetterRecord{}
	for rows.Next() {
		var (
			r       notify.DeadLetterRecord
			channel string
		)
		if err := rows.Scan(&r.EventID, &channel, &r.UserID, &r.Recipient, &r.Subject, &r.Content,
			&r.ErrorReason, &r.FailedAt, &r.OriginalJobID, &r.Attempts, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgstore: scan dead letter: %w", err)
		}
		r.Channel = notify.Channel(channel)
		out = append(out, &r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*notify.Event, error) {
	var (
		e           notify.Event
		typ, status string
		data        []byte
		processedAt sql.NullTime
	)
	if err := row.Scan(&e.EventID, &typ, &e.UserID, &data, &status, &e.CreatedAt, &e.UpdatedAt, &processedAt); err != nil {
		return nil, err
	}
	e.Type = notify.EventType(typ)
	e.Status = notify.EventStatus(status)
	if processedAt.Valid {
		t := processedAt.Time
		e.ProcessedAt = &t
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &e.Payload); err != nil {
			return nil, fmt.Errorf("decode event data: %w", err)
		}
	}
	return &e, nil
}

func scanNotification(row scanner) (*notify.Notification, error) {
	var (
		n               notify.Notification
		channel, status string
		sentAt          sql.NullTime
	)
	if err := row.Scan(&n.EventID, &channel, &n.UserID, &n.Recipient, &n.Subject, &n.Content, &status,
		&n.Attempts, &n.LastError, &sentAt, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	n.Channel = notify.Channel(channel)
	n.Status = notify.NotificationStatus(status)
	if sentAt.Valid {
		t := sentAt.Time
		n.SentAt = &t
	}
	return &n, nil
}

func encodePayload(p map[string]any) ([]byte, error) {
	if p == nil {
		p = map[string]any{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("pgstore: encode event data: %w", err)
	}
	return b, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// inClause appends values to args and returns their positional placeholders.
func inClause[T ~string](args []any, values []T) (string, []any) {
	ph := make([]string, 0, len(values))
	for _, v := range values {
		args = append(args, string(v))
		ph = append(ph, fmt.Sprintf("$%d", len(args)))
	}
	return strings.Join(ph, ", "), args
}
