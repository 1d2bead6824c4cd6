package queue

import (
	"context"
	"encoding/json"
)

type (
	Handler interface {
		Name() string
		Handle(ctx context.Context, payload json.RawMessage) error
	}

	// ExhaustionHandler is implemented by handlers that want to be told when a
	// task ran out of attempts. OnExhausted runs before the task is moved to the
	// dead letter set; if it returns an error the escalation is retried later,
	// so it must be idempotent.
	ExhaustionHandler interface {
		OnExhausted(ctx context.Context, payload json.RawMessage, cause error) error
	}

	TaskHandlerFunc[T any]      func(ctx context.Context, payload T) error
	ExhaustedHandlerFunc[T any] func(ctx context.Context, payload T, cause error) error
	PeriodicTaskHandlerFunc     func(ctx context.Context) error
)

// HandlerOption configures a handler built by NewTaskHandler.
type HandlerOption func(*handlerOptions)

type handlerOptions struct {
	name      string
	exhausted func(ctx context.Context, payload json.RawMessage, cause error) error
}

// WithHandlerName overrides the task name the handler is registered under.
func WithHandlerName(name string) HandlerOption {
	return func(o *handlerOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// OnExhausted attaches an exhaustion callback decoding the payload into T.
func OnExhausted[T any](fn ExhaustedHandlerFunc[T]) HandlerOption {
	return func(o *handlerOptions) {
		if fn == nil {
			return
		}
		o.exhausted = func(ctx context.Context, payload json.RawMessage, cause error) error {
			var t T
			if err := json.Unmarshal(payload, &t); err != nil {
				return err
			}
			return fn(ctx, t, cause)
		}
	}
}

func NewTaskHandler[T any](handler TaskHandlerFunc[T], opts ...HandlerOption) Handler {
	var payload T
	options := &handlerOptions{name: taskNameOf(payload)}
	for _, opt := range opts {
		opt(options)
	}
	return &oneTimeTaskHandler[T]{
		name:      options.name,
		handler:   handler,
		exhausted: options.exhausted,
	}
}

func NewPeriodicTaskHandler(name string, handler PeriodicTaskHandlerFunc) Handler {
	return &periodicTaskHandler{
		name:    name,
		handler: handler,
	}
}

type oneTimeTaskHandler[T any] struct {
	name      string
	handler   TaskHandlerFunc[T]
	exhausted func(ctx context.Context, payload json.RawMessage, cause error) error
}

func (h *oneTimeTaskHandler[T]) Name() string {
	return h.name
}

func (h *oneTimeTaskHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		// A payload that doesn't decode now never will.
		return Permanent(err)
	}
	return h.handler(ctx, t)
}

func (h *oneTimeTaskHandler[T]) OnExhausted(ctx context.Context, payload json.RawMessage, cause error) error {
	if h.exhausted == nil {
		return nil
	}
	return h.exhausted(ctx, payload, cause)
}

type periodicTaskHandler struct {
	name    string
	handler PeriodicTaskHandlerFunc
}

func (h *periodicTaskHandler) Name() string {
	return h.name
}

func (h *periodicTaskHandler) Handle(ctx context.Context, _ json.RawMessage) error {
	return h.handler(ctx)
}
