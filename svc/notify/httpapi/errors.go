package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/notifyhub/pkg/handler"
	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/svc/notify"
)

// Response is the envelope of every API answer.
type Response = handler.JSONResponse

// notFound turns the store lookup sentinels into a 404 with msg.
func notFound(err error, msg string) error {
	if errors.Is(err, notify.ErrEventNotFound) || errors.Is(err, notify.ErrNotificationNotFound) {
		return handler.NotFound(msg)
	}
	return err
}

// fail renders err and logs it when it is the server's fault.
func (a *API) fail(ctx handler.Context, err error, attrs ...slog.Attr) handler.Response {
	if handler.StatusOf(err) >= http.StatusInternalServerError {
		a.logger.LogAttrs(ctx, slog.LevelError, "request failed", append(attrs, logger.Error(err))...)
	}
	return handler.JSONError(err)
}

// renderError is the handler.ErrorHandler of every route.
func (a *API) renderError(ctx handler.Context, err error) {
	_ = a.fail(ctx, err).Render(ctx.ResponseWriter(), ctx.Request())
}

// wrap adapts h with the binders and the API's error handler.
func wrap[R any](a *API, h handler.HandlerFunc[R], binders ...handler.Bind) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithBinders[R](binders...),
		handler.WithErrorHandler[R](a.renderError),
	)
}
