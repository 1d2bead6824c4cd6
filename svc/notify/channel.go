package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/email"
	"github.com/dmitrymomot/notifyhub/pkg/inbox"
	"github.com/dmitrymomot/notifyhub/pkg/queue"
)

// Delivery is one rendered message handed to a Sender.
type Delivery struct {
	EventID   string
	UserID    string
	Channel   Channel
	Recipient string
	Subject   string
	Content   string
	Data      map[string]any
}

// Sender performs the external side effect of a channel. Errors wrapped with
// queue.Permanent skip the remaining retries.
type Sender interface {
	Send(ctx context.Context, d Delivery) error
}

// SenderFunc adapts a function into a Sender.
type SenderFunc func(ctx context.Context, d Delivery) error

func (f SenderFunc) Send(ctx context.Context, d Delivery) error { return f(ctx, d) }

// ChannelSpec binds a channel to its Sender. Sync channels are delivered by
// the orchestrator inline and recorded directly as SENT; the rest go through
// their own queue and Dispatcher.
type ChannelSpec struct {
	Channel Channel
	Sender  Sender
	Sync    bool
}

// EmailSender delivers EMAIL notifications through an email.EmailSender.
type EmailSender struct {
	sender email.EmailSender
}

// NewEmailSender wraps s.
func NewEmailSender(s email.EmailSender) *EmailSender {
	return &EmailSender{sender: s}
}

func (s *EmailSender) Send(ctx context.Context, d Delivery) error {
	err := s.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   d.Recipient,
		Subject:  d.Subject,
		BodyHTML: plainToHTML(d.Content),
		Tag:      strings.ToLower(string(d.Channel)),
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, email.ErrInvalidParams), errors.Is(err, email.ErrRecipientRejected):
		return queue.Permanent(err)
	default:
		return err
	}
}

// InboxSender delivers IN_APP notifications into the user's inbox. The
// message id is derived from the event so a repeated send stores nothing new.
type InboxSender struct {
	inbox *inbox.Inbox
}

// NewInboxSender wraps ib.
func NewInboxSender(ib *inbox.Inbox) *InboxSender {
	return &InboxSender{inbox: ib}
}

func (s *InboxSender) Send(ctx context.Context, d Delivery) error {
	_, err := s.inbox.Send(ctx, inbox.Message{
		ID:        InboxMessageID(d.EventID, d.Channel),
		UserID:    d.Recipient,
		Title:     d.Subject,
		Body:      d.Content,
		Data:      d.Data,
		CreatedAt: time.Now().UTC(),
	})
	if errors.Is(err, inbox.ErrInvalidMessage) {
		return queue.Permanent(err)
	}
	return err
}

// InboxMessageID is the deterministic inbox id of an event's in-app message.
func InboxMessageID(eventID string, channel Channel) string {
	return fmt.Sprintf("%s:%s", eventID, channel)
}

func plainToHTML(s string) string {
	return "<p>" + strings.ReplaceAll(html.EscapeString(s), "\n", "<br>") + "</p>"
}
