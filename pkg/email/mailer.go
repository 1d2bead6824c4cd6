package email

import (
	"context"
	"errors"

	"github.com/dmitrymomot/notifyhub/pkg/validator"
)

// EmailSender delivers a single rendered email.
type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

// SendEmailParams is one outbound message.
type SendEmailParams struct {
	SendTo   string `json:"send_to"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	Tag      string `json:"tag,omitempty"`
}

// Validate checks the message before it reaches a provider.
// The returned error wraps ErrInvalidParams and validator.ValidationErrors.
func (p SendEmailParams) Validate() error {
	if err := validator.Apply(
		validator.Required("send_to", p.SendTo),
		validator.When(p.SendTo != "", validator.ValidEmail("send_to", p.SendTo)),
		validator.Required("subject", p.Subject),
		validator.Required("body_html", p.BodyHTML),
	); err != nil {
		return errors.Join(ErrInvalidParams, err)
	}
	return nil
}

// New builds the sender selected by cfg.Driver, wrapped in a rate limiter
// when cfg.RatePerSecond is positive.
func New(cfg Config) (EmailSender, error) {
	var (
		sender EmailSender
		err    error
	)
	switch cfg.Driver {
	case DriverPostmark:
		sender, err = NewPostmarkClient(cfg)
	case DriverDev, "":
		sender = NewDevSender(cfg.DevDir)
	default:
		return nil, errors.Join(ErrInvalidConfig, errors.New("unknown driver "+cfg.Driver))
	}
	if err != nil {
		return nil, err
	}

	if cfg.RatePerSecond > 0 {
		sender = NewRateLimited(sender, cfg.RatePerSecond, cfg.Burst)
	}
	return sender, nil
}
