// Package handler adapts typed request handlers to net/http.
//
// A HandlerFunc receives a Context and a request value already decoded by
// the binders passed to Wrap, and returns a Response:
//
//	type statusRequest struct {
//		EventID string `path:"eventId"`
//	}
//
//	r.Get("/events/{eventId}", handler.Wrap(
//		func(ctx handler.Context, req statusRequest) handler.Response {
//			e, err := store.GetEvent(ctx, req.EventID)
//			if err != nil {
//				return handler.JSONError(err)
//			}
//			return handler.JSON(e)
//		},
//		handler.WithBinders[statusRequest](binder.BindPath(chi.URLParam)),
//	))
//
// JSON and JSONError render the {success, message, data, error, details}
// envelope. JSONError picks the status from the error: validation and
// binding errors are client errors, HTTPError carries its own status and
// everything else is a 500 whose message does not expose the cause.
package handler
