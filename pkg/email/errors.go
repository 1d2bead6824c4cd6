package email

import "errors"

var (
	ErrFailedToSendEmail = errors.New("failed to send email")
	ErrInvalidConfig     = errors.New("invalid email config")
	ErrInvalidParams     = errors.New("invalid email params")
	// ErrRecipientRejected means the provider refused the recipient address.
	// Retrying the same message will not succeed.
	ErrRecipientRejected = errors.New("email recipient rejected")
)
