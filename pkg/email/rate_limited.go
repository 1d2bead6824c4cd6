package email

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// RateLimited throttles an EmailSender to a steady send rate shared by all
// callers. Waiting honours the caller's context.
type RateLimited struct {
	next    EmailSender
	limiter *rate.Limiter
}

// NewRateLimited allows perSecond sends on average with bursts of up to burst.
func NewRateLimited(next EmailSender, perSecond float64, burst int) *RateLimited {
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), max(burst, 1)),
	}
}

func (r *RateLimited) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	return r.next.SendEmail(ctx, params)
}
