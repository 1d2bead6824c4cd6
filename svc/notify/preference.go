package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// PreferenceProvider resolves the channels a user receives for an event type.
// Transient unavailability must be reported as an error, never as an empty
// channel list.
type PreferenceProvider interface {
	ResolveChannels(ctx context.Context, userID string, eventType EventType) ([]Channel, error)
}

// PreferenceSource returns the stored preferences of a user. Providers that
// also implement it let the orchestrator fall back to a stored email address.
type PreferenceSource interface {
	Lookup(ctx context.Context, userID string) (Preferences, error)
}

// Preferences is a user's channel opt-in.
type Preferences struct {
	UserID       string      `yaml:"userId" json:"userId"`
	Email        bool        `yaml:"email" json:"email"`
	InApp        bool        `yaml:"inApp" json:"inApp"`
	EmailAddress string      `yaml:"emailAddress,omitempty" json:"emailAddress,omitempty"`
	Muted        []EventType `yaml:"muted,omitempty" json:"muted,omitempty"`
}

// DefaultPreferences enables every built-in channel.
func DefaultPreferences(userID string) Preferences {
	return Preferences{UserID: userID, Email: true, InApp: true}
}

// Channels returns the enabled channels for eventType in delivery order:
// EMAIL before IN_APP.
func (p Preferences) Channels(eventType EventType) []Channel {
	if slices.Contains(p.Muted, eventType) {
		return nil
	}
	var out []Channel
	if p.Email {
		out = append(out, ChannelEmail)
	}
	if p.InApp {
		out = append(out, ChannelInApp)
	}
	return out
}

// StaticPreferences serves preferences from memory with a default applied to
// unknown users.
type StaticPreferences struct {
	mu       sync.RWMutex
	defaults Preferences
	users    map[string]Preferences
}

var (
	_ PreferenceProvider = (*StaticPreferences)(nil)
	_ PreferenceSource   = (*StaticPreferences)(nil)
)

// NewStaticPreferences creates a provider answering defaults for users not
// listed.
func NewStaticPreferences(defaults Preferences, users ...Preferences) *StaticPreferences {
	sp := &StaticPreferences{defaults: defaults, users: make(map[string]Preferences, len(users))}
	for _, u := range users {
		sp.users[u.UserID] = u
	}
	return sp
}

type preferencesDocument struct {
	Default *Preferences  `yaml:"default"`
	Users   []Preferences `yaml:"users"`
}

// LoadStaticPreferences reads a YAML document of the form
//
//	default: {email: true, inApp: true}
//	users:
//	  - userId: u1
//	    email: false
//	    inApp: true
//
// A missing default enables every channel.
func LoadStaticPreferences(r io.Reader) (*StaticPreferences, error) {
	var doc preferencesDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrInvalidPreferences, err)
	}

	defaults := DefaultPreferences("")
	if doc.Default != nil {
		defaults = *doc.Default
	}
	for i, u := range doc.Users {
		if u.UserID == "" {
			return nil, fmt.Errorf("%w: users[%d] has no userId", ErrInvalidPreferences, i)
		}
	}
	return NewStaticPreferences(defaults, doc.Users...), nil
}

// LoadStaticPreferencesFile opens path and calls LoadStaticPreferences.
func LoadStaticPreferencesFile(path string) (*StaticPreferences, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open preferences file: %w", err)
	}
	defer f.Close()
	return LoadStaticPreferences(f)
}

// Set stores p for p.UserID.
func (sp *StaticPreferences) Set(p Preferences) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.users[p.UserID] = p
}

func (sp *StaticPreferences) Lookup(ctx context.Context, userID string) (Preferences, error) {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	if p, ok := sp.users[userID]; ok {
		return p, nil
	}
	p := sp.defaults
	p.UserID = userID
	return p, nil
}

func (sp *StaticPreferences) ResolveChannels(ctx context.Context, userID string, eventType EventType) ([]Channel, error) {
	p, err := sp.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.Channels(eventType), nil
}

// ChannelsFromSource adapts a PreferenceSource into channel resolution.
func ChannelsFromSource(ctx context.Context, src PreferenceSource, userID string, eventType EventType) ([]Channel, error) {
	p, err := src.Lookup(ctx, userID)
	if err != nil {
		return nil, errors.Join(ErrPreferencesFailed, err)
	}
	return p.Channels(eventType), nil
}
