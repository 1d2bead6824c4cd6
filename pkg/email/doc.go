// Package email sends transactional email for the EMAIL channel.
//
// Senders:
//
//   - Postmark (production) through github.com/mrz1836/postmark
//   - DevSender, which writes each message to disk for local inspection
//   - RateLimited, a decorator that throttles any sender with x/time/rate
//
// New picks one from Config.Driver:
//
//	sender, err := email.New(cfg)
//	if err != nil {
//		return err
//	}
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//		SendTo:   "u1@example.com",
//		Subject:  "Welcome to Our Platform!",
//		BodyHTML: "<p>Hello</p>",
//	})
//
// ErrInvalidParams and ErrRecipientRejected describe messages that will
// never succeed; callers can stop retrying them.
package email
