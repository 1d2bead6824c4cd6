package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
	"text/template"
)

// Rendered is the subject and body produced for one channel.
type Rendered struct {
	Subject string
	Content string
}

// Catalog holds the registered event types and their message templates.
type Catalog struct {
	mu        sync.RWMutex
	templates map[EventType]eventTemplates
	fallback  eventTemplates
}

type eventTemplates struct {
	subject *template.Template
	content *template.Template
}

var funcs = template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}

// NewCatalog returns a catalog with the built-in event types.
func NewCatalog() *Catalog {
	c := &Catalog{
		templates: make(map[EventType]eventTemplates),
		fallback:  mustTemplates("default", "Notification", "You have a new notification."),
	}
	c.MustRegister(EventUserSignup, "Welcome to Our Platform!",
		"Hello! Welcome to our platform. Your account has been created successfully.")
	c.MustRegister(EventOrderPlaced, "Order Confirmation",
		"Your order has been placed successfully. Order details: {{ json . }}")
	c.MustRegister(EventPaymentSuccess, "Payment Successful",
		`Your payment has been processed successfully. Amount: {{ or .amount "N/A" }}`)
	c.MustRegister(EventPasswordReset, "Password Reset Request",
		"A password reset has been requested for your account. If this wasn't you, please ignore this email.")
	return c
}

// Register adds or replaces the templates of t. Templates use text/template
// with the event payload as dot and a json function.
func (c *Catalog) Register(t EventType, subject, content string) error {
	if t == "" {
		return fmt.Errorf("%w: empty event type", ErrUnknownEventType)
	}
	tpl, err := parseTemplates(string(t), subject, content)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.templates[t] = tpl
	return nil
}

// MustRegister is Register that panics on a template error.
func (c *Catalog) MustRegister(t EventType, subject, content string) {
	if err := c.Register(t, subject, content); err != nil {
		panic(err)
	}
}

// Known reports whether t is registered.
func (c *Catalog) Known(t EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.templates[t]
	return ok
}

// Types lists the registered event types, sorted.
func (c *Catalog) Types() []EventType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.templates))
}

// Render produces the message of eventType for channel. IN_APP messages carry
// no subject and embed the payload as JSON.
func (c *Catalog) Render(channel Channel, eventType EventType, payload map[string]any) (Rendered, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	if channel == ChannelInApp {
		b, err := json.Marshal(payload)
		if err != nil {
			return Rendered{}, fmt.Errorf("render in-app content: %w", err)
		}
		return Rendered{Content: fmt.Sprintf("Notification for %s: %s", eventType, b)}, nil
	}

	c.mu.RLock()
	tpl, ok := c.templates[eventType]
	c.mu.RUnlock()
	if !ok {
		tpl = c.fallback
	}

	subject, err := execute(tpl.subject, payload)
	if err != nil {
		return Rendered{}, err
	}
	content, err := execute(tpl.content, payload)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Subject: subject, Content: content}, nil
}

// DefaultCatalog is used by components constructed without WithCatalog.
var DefaultCatalog = NewCatalog()

// RegisterEventType extends DefaultCatalog.
func RegisterEventType(t EventType, subject, content string) error {
	return DefaultCatalog.Register(t, subject, content)
}

func parseTemplates(name, subject, content string) (eventTemplates, error) {
	s, err := template.New(name + ".subject").Funcs(funcs).Option("missingkey=zero").Parse(subject)
	if err != nil {
		return eventTemplates{}, fmt.Errorf("parse %s subject template: %w", name, err)
	}
	b, err := template.New(name + ".content").Funcs(funcs).Option("missingkey=zero").Parse(content)
	if err != nil {
		return eventTemplates{}, fmt.Errorf("parse %s content template: %w", name, err)
	}
	return eventTemplates{subject: s, content: b}, nil
}

func mustTemplates(name, subject, content string) eventTemplates {
	t, err := parseTemplates(name, subject, content)
	if err != nil {
		panic(err)
	}
	return t
}

func execute(t *template.Template, payload map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, payload); err != nil {
		return "", fmt.Errorf("execute %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
