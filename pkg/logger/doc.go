// Package logger builds *slog.Logger instances for notifyhub services.
//
// New applies functional options (format, level, static attributes, per
// environment defaults) and wraps the handler with LogHandlerDecorator so
// values stored in a context.Context, such as the HTTP request id, are added
// to every record logged with that context.
//
// attr.go holds attribute constructors (EventID, Channel, TaskID, ...) that
// keep key names consistent across packages:
//
//	log := logger.New(logger.WithEnvironment(cfg.Env, "notifyhub"))
//	log.InfoContext(ctx, "event accepted",
//		logger.EventID(evt.ID),
//		logger.EventType(string(evt.Type)),
//		logger.UserID(evt.UserID),
//	)
//
// Error and Errors return an empty attribute for nil errors, so they can be
// passed unconditionally.
package logger
