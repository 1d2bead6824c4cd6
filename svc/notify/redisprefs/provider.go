// Package redisprefs serves notify preferences from Redis.
//
// Preferences are stored as JSON under "<prefix>:<userId>". A miss falls
// back to an optional notify.PreferenceSource, whose answer is cached with a
// TTL, and finally to notify.DefaultPreferences. Redis errors are returned
// to the caller so the orchestrator retries instead of resolving no channels.
package redisprefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifyhub/svc/notify"
)

// DefaultKeyPrefix namespaces preference keys.
const DefaultKeyPrefix = "notifyhub:prefs"

// Provider implements notify.PreferenceProvider and notify.PreferenceSource.
type Provider struct {
	client   redis.UniversalClient
	prefix   string
	ttl      time.Duration
	fallback notify.PreferenceSource
}

var (
	_ notify.PreferenceProvider = (*Provider)(nil)
	_ notify.PreferenceSource   = (*Provider)(nil)
)

// Option configures a Provider.
type Option func(*Provider)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(p *Provider) {
		if prefix != "" {
			p.prefix = prefix
		}
	}
}

// WithTTL sets how long fallback answers stay cached. Default 10m.
func WithTTL(ttl time.Duration) Option {
	return func(p *Provider) { p.ttl = ttl }
}

// WithFallback consults src on a cache miss.
func WithFallback(src notify.PreferenceSource) Option {
	return func(p *Provider) { p.fallback = src }
}

// New creates a Provider.
func New(client redis.UniversalClient, opts ...Option) *Provider {
	p := &Provider{client: client, prefix: DefaultKeyPrefix, ttl: 10 * time.Minute}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Lookup(ctx context.Context, userID string) (notify.Preferences, error) {
	raw, err := p.client.Get(ctx, p.key(userID)).Bytes()
	switch {
	case err == nil:
		var prefs notify.Preferences
		if err := json.Unmarshal(raw, &prefs); err != nil {
			return notify.Preferences{}, errors.Join(notify.ErrInvalidPreferences, err)
		}
		prefs.UserID = userID
		return prefs, nil
	case !errors.Is(err, redis.Nil):
		return notify.Preferences{}, fmt.Errorf("redisprefs: get: %w", err)
	}

	if p.fallback == nil {
		return notify.DefaultPreferences(userID), nil
	}
	prefs, err := p.fallback.Lookup(ctx, userID)
	if err != nil {
		return notify.Preferences{}, err
	}
	if err := p.store(ctx, prefs, p.ttl); err != nil {
		return notify.Preferences{}, err
	}
	return prefs, nil
}

func (p *Provider) ResolveChannels(ctx context.Context, userID string, eventType notify.EventType) ([]notify.Channel, error) {
	return notify.ChannelsFromSource(ctx, p, userID, eventType)
}

// Set stores prefs without expiry.
func (p *Provider) Set(ctx context.Context, prefs notify.Preferences) error {
	return p.store(ctx, prefs, 0)
}

// Delete removes the stored preferences of userID.
func (p *Provider) Delete(ctx context.Context, userID string) error {
	if err := p.client.Del(ctx, p.key(userID)).Err(); err != nil {
		return fmt.Errorf("redisprefs: delete: %w", err)
	}
	return nil
}

func (p *Provider) store(ctx context.Context, prefs notify.Preferences, ttl time.Duration) error {
	b, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("redisprefs: encode: %w", err)
	}
	if err := p.client.Set(ctx, p.key(prefs.UserID), b, ttl).Err(); err != nil {
		return fmt.Errorf("redisprefs: set: %w", err)
	}
	return nil
}

func (p *Provider) key(userID string) string {
	return p.prefix + ":" + userID
}
