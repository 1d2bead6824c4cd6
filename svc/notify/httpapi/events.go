package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/handler"
	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/validator"
	"github.com/dmitrymomot/notifyhub/svc/notify"
)

const (
	msgEventQueued   = "Event received and queued for processing"
	msgEventReplayed = "Event already processed (idempotent)"
)

// ingestRequest accepts "payload" as an alias of "data".
type ingestRequest struct {
	EventID string           `json:"eventId"`
	Type    notify.EventType `json:"type"`
	UserID  string           `json:"userId"`
	Data    map[string]any   `json:"data"`
	Payload map[string]any   `json:"payload"`
}

func (b ingestRequest) toIngest() notify.IngestRequest {
	data := b.Data
	if data == nil {
		data = b.Payload
	}
	return notify.IngestRequest{EventID: b.EventID, Type: b.Type, UserID: b.UserID, Payload: data}
}

type eventRequest struct {
	EventID string `path:"eventId"`
}

type deadLettersRequest struct {
	Limit   *int   `query:"limit"`
	Channel string `query:"channel"`
}

// eventView is the public shape of an event status.
type eventView struct {
	EventID     string             `json:"eventId"`
	Type        notify.EventType   `json:"type"`
	UserID      string             `json:"userId"`
	Status      notify.EventStatus `json:"status"`
	CreatedAt   time.Time          `json:"createdAt"`
	ProcessedAt *time.Time         `json:"processedAt,omitempty"`
}

func (a *API) ingest(ctx handler.Context, req ingestRequest) handler.Response {
	res, err := a.ingester.Ingest(ctx, req.toIngest())
	switch {
	case err != nil && validator.IsValidationError(err):
		return handler.JSONError(err)
	case err != nil:
		a.logger.LogAttrs(ctx, slog.LevelError, "ingest failed", logger.EventID(res.EventID), logger.Error(err))
		return handler.JSONError(err, handler.WithMessage("Failed to process event"))
	case res.Replayed:
		return handler.JSON(res, handler.WithMessage(msgEventReplayed))
	default:
		return handler.JSON(res, handler.WithStatus(http.StatusAccepted), handler.WithMessage(msgEventQueued))
	}
}

func (a *API) eventStatus(ctx handler.Context, req eventRequest) handler.Response {
	e, err := a.ingester.GetStatus(ctx, req.EventID)
	if err != nil {
		return a.fail(ctx, notFound(err, "Event not found"), logger.EventID(req.EventID))
	}
	return handler.JSON(eventView{
		EventID:     e.EventID,
		Type:        e.Type,
		UserID:      e.UserID,
		Status:      e.Status,
		CreatedAt:   e.CreatedAt,
		ProcessedAt: e.ProcessedAt,
	})
}

func (a *API) eventNotifications(ctx handler.Context, req eventRequest) handler.Response {
	if _, err := a.ingester.GetStatus(ctx, req.EventID); err != nil {
		return a.fail(ctx, notFound(err, "Event not found"), logger.EventID(req.EventID))
	}
	list, err := a.reader.ListNotifications(ctx, req.EventID)
	if err != nil {
		return a.fail(ctx, err, logger.EventID(req.EventID))
	}
	if list == nil {
		list = []*notify.Notification{}
	}
	return handler.JSON(list)
}

func (a *API) deadLetters(ctx handler.Context, req deadLettersRequest) handler.Response {
	filter := notify.DeadLetterFilter{Channel: notify.Channel(strings.ToUpper(req.Channel))}
	if req.Limit != nil {
		if err := validator.Apply(validator.Min("limit", *req.Limit, 0)); err != nil {
			return handler.JSONError(err)
		}
		filter.Limit = *req.Limit
	}

	list, err := a.reader.ListDeadLetters(ctx, filter)
	if err != nil {
		return a.fail(ctx, err)
	}
	if list == nil {
		list = []*notify.DeadLetterRecord{}
	}
	return handler.JSON(list)
}
