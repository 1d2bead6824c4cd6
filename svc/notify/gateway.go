package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/queue"
	"github.com/dmitrymomot/notifyhub/pkg/validator"
)

// TaskEnqueuer is the part of queue.Enqueuer the pipeline needs.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) error
}

// IngestRequest is an event submitted by a caller. EventID is optional.
type IngestRequest struct {
	EventID string         `json:"eventId,omitempty"`
	Type    EventType      `json:"type"`
	UserID  string         `json:"userId"`
	Payload map[string]any `json:"data"`
}

// IngestResult reports the admitted event. Replayed is set when the event id
// was already known and nothing was written.
type IngestResult struct {
	EventID  string      `json:"eventId"`
	Status   EventStatus `json:"status"`
	Replayed bool        `json:"-"`
}

// Gateway validates and idempotently admits events.
type Gateway struct {
	events      EventStore
	enqueuer    TaskEnqueuer
	catalog     *Catalog
	logger      *slog.Logger
	metrics     Recorder
	maxAttempts int
	now         func() time.Time
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithGatewayLogger sets the gateway logger.
func WithGatewayLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// WithGatewayCatalog sets the catalog whose event types are accepted.
func WithGatewayCatalog(c *Catalog) GatewayOption {
	return func(g *Gateway) { g.catalog = c }
}

// WithGatewayMetrics sets the metrics recorder.
func WithGatewayMetrics(r Recorder) GatewayOption {
	return func(g *Gateway) { g.metrics = r }
}

// WithOrchestrationAttempts sets the attempt budget of orchestration tasks.
func WithOrchestrationAttempts(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithGatewayClock overrides time.Now.
func WithGatewayClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) { g.now = now }
}

// NewGateway creates a Gateway.
func NewGateway(events EventStore, enqueuer TaskEnqueuer, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		events:      events,
		enqueuer:    enqueuer,
		catalog:     DefaultCatalog,
		logger:      slog.Default(),
		metrics:     noopRecorder{},
		maxAttempts: queue.DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Validate checks req without touching any store.
func (g *Gateway) Validate(req IngestRequest) error {
	return validator.Apply(
		validator.When(req.EventID != "", validator.ValidUUID("eventId", req.EventID)),
		validator.Required("type", string(req.Type)),
		validator.When(req.Type != "", validator.OneOf("type", req.Type, g.catalog.Types())),
		validator.Required("userId", req.UserID),
		validator.MaxLen("userId", req.UserID, 256),
		validator.NotNilMap("data", req.Payload),
	)
}

// Ingest admits req. A known event id returns the stored status with
// Replayed set and has no side effects. A new event is stored at RECEIVED and
// one orchestration task keyed by its id is enqueued.
//
// When the enqueue fails the event stays RECEIVED and the returned error wraps
// ErrEnqueueFailed. Resubmitting the same id replays, and the Reconciler
// re-enqueues the orphan.
func (g *Gateway) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	if err := g.Validate(req); err != nil {
		g.metrics.RecordIngest(IngestInvalid)
		return IngestResult{}, err
	}

	if req.EventID != "" {
		existing, err := g.events.GetEvent(ctx, req.EventID)
		switch {
		case err == nil:
			return g.replay(ctx, existing), nil
		case !errors.Is(err, ErrEventNotFound):
			g.metrics.RecordIngest(IngestFailed)
			return IngestResult{}, fmt.Errorf("lookup event: %w", err)
		}
	} else {
		req.EventID = uuid.NewString()
	}

	now := g.now()
	e := &Event{
		EventID:   req.EventID,
		Type:      req.Type,
		UserID:    req.UserID,
		Payload:   req.Payload,
		Status:    EventReceived,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := g.events.CreateEvent(ctx, e); err != nil {
		if errors.Is(err, ErrEventExists) {
			// Lost a race with a concurrent submission of the same id.
			existing, gerr := g.events.GetEvent(ctx, req.EventID)
			if gerr != nil {
				g.metrics.RecordIngest(IngestFailed)
				return IngestResult{}, fmt.Errorf("lookup event: %w", gerr)
			}
			return g.replay(ctx, existing), nil
		}
		g.metrics.RecordIngest(IngestFailed)
		return IngestResult{}, fmt.Errorf("store event: %w", err)
	}

	if err := EnqueueOrchestration(ctx, g.enqueuer, e, g.maxAttempts); err != nil {
		g.metrics.RecordIngest(IngestFailed)
		g.logger.LogAttrs(ctx, slog.LevelError, "event stored but not enqueued",
			logger.EventID(e.EventID),
			logger.EventType(string(e.Type)),
			logger.Error(err),
		)
		return IngestResult{EventID: e.EventID, Status: e.Status}, errors.Join(ErrEnqueueFailed, err)
	}

	g.metrics.RecordIngest(IngestAccepted)
	g.logger.LogAttrs(ctx, slog.LevelInfo, "event received",
		logger.EventID(e.EventID),
		logger.EventType(string(e.Type)),
		logger.UserID(e.UserID),
	)
	return IngestResult{EventID: e.EventID, Status: e.Status}, nil
}

// GetStatus returns the stored event. Unknown ids return ErrEventNotFound.
func (g *Gateway) GetStatus(ctx context.Context, eventID string) (*Event, error) {
	return g.events.GetEvent(ctx, eventID)
}

func (g *Gateway) replay(ctx context.Context, e *Event) IngestResult {
	g.metrics.RecordIngest(IngestReplayed)
	g.logger.LogAttrs(ctx, slog.LevelDebug, "event replayed",
		logger.EventID(e.EventID),
		logger.Status(string(e.Status)),
	)
	return IngestResult{EventID: e.EventID, Status: e.Status, Replayed: true}
}

// EnqueueOrchestration enqueues the orchestration task of e keyed by its id.
// A live task with the same key makes it a no-op.
func EnqueueOrchestration(ctx context.Context, enq TaskEnqueuer, e *Event, maxAttempts int) error {
	opts := []queue.EnqueueOption{
		queue.WithQueue(OrchestrationQueue),
		queue.WithTaskName(OrchestrationTask),
		queue.WithKey(e.EventID),
	}
	if maxAttempts > 0 {
		opts = append(opts, queue.WithMaxAttempts(maxAttempts))
	}
	return enq.Enqueue(ctx, OrchestrationJob{
		EventID: e.EventID,
		Type:    e.Type,
		UserID:  e.UserID,
		Payload: e.Payload,
	}, opts...)
}
