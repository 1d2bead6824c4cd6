// Package httpapi exposes the notification pipeline over HTTP: event
// ingestion and status, per-event notifications, the dead-letter list and
// the in-app inbox.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/notifyhub/pkg/binder"
	"github.com/dmitrymomot/notifyhub/pkg/handler"
	"github.com/dmitrymomot/notifyhub/pkg/httpserver"
	"github.com/dmitrymomot/notifyhub/pkg/inbox"
	"github.com/dmitrymomot/notifyhub/pkg/requestid"
	"github.com/dmitrymomot/notifyhub/svc/notify"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Ingester admits events. *notify.Gateway implements it.
type Ingester interface {
	Ingest(ctx context.Context, req notify.IngestRequest) (notify.IngestResult, error)
	GetStatus(ctx context.Context, eventID string) (*notify.Event, error)
}

// Reader is the read side of the notification stores.
type Reader interface {
	ListNotifications(ctx context.Context, eventID string) ([]*notify.Notification, error)
	ListDeadLetters(ctx context.Context, filter notify.DeadLetterFilter) ([]*notify.DeadLetterRecord, error)
}

// API holds the handlers.
type API struct {
	ingester     Ingester
	reader       Reader
	inbox        *inbox.Inbox
	logger       *slog.Logger
	checks       []httpserver.Check
	checkTimeout time.Duration
	metrics      http.Handler
	middlewares  []func(http.Handler) http.Handler
}

// Option configures an API.
type Option func(*API)

// WithInbox enables the inbox routes.
func WithInbox(i *inbox.Inbox) Option {
	return func(a *API) { a.inbox = i }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithReadinessChecks adds dependencies probed by GET /health/ready.
func WithReadinessChecks(checks ...httpserver.Check) Option {
	return func(a *API) { a.checks = append(a.checks, checks...) }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *API) { a.metrics = h }
}

// WithMiddleware appends router middleware, applied after the built-in ones.
func WithMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(a *API) { a.middlewares = append(a.middlewares, mw...) }
}

// New creates the API.
func New(ingester Ingester, reader Reader, opts ...Option) *API {
	a := &API{
		ingester:     ingester,
		reader:       reader,
		logger:       slog.Default(),
		checkTimeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router returns the HTTP handler with every route mounted.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		requestid.Middleware,
		middleware.RealIP,
		middleware.Recoverer,
		a.logRequests,
	)
	r.Use(a.middlewares...)

	r.Get("/health/live", httpserver.Liveness())
	r.Get("/health/ready", httpserver.Readiness(a.logger, a.checkTimeout, a.checks...))
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics)
	}

	events := binder.BindJSON(binder.WithMaxBodySize(maxBodyBytes))
	path := binder.BindPath(chi.URLParam)

	r.Route("/events", func(r chi.Router) {
		r.Post("/", wrap(a, a.ingest, events))
		r.Get("/{eventId}", wrap(a, a.eventStatus, path))
		r.Get("/{eventId}/notifications", wrap(a, a.eventNotifications, path))
	})
	r.Get("/dead-letters", wrap(a, a.deadLetters, binder.BindQuery()))

	if a.inbox != nil {
		r.Route("/users/{userId}/inbox", func(r chi.Router) {
			r.Get("/", wrap(a, a.listInbox, path, binder.BindQuery()))
			r.Post("/read", wrap(a, a.markInboxRead,
				binder.BindJSON(binder.WithMaxBodySize(maxBodyBytes), binder.AllowEmptyBody()),
				path,
			))
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = handler.JSONError(handler.NotFound("Route not found")).Render(w, r)
	})
	return r
}
