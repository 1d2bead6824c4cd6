package httpapi

import (
	"github.com/dmitrymomot/notifyhub/pkg/handler"
	"github.com/dmitrymomot/notifyhub/pkg/inbox"
	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/validator"
)

type inboxRequest struct {
	UserID string `path:"userId"`
	Limit  int    `query:"limit"`
	Offset int    `query:"offset"`
	Unread bool   `query:"unread"`
}

type markReadRequest struct {
	UserID string   `path:"userId" json:"-"`
	IDs    []string `path:"-" json:"ids"`
}

type inboxView struct {
	Messages []inbox.Message `json:"messages"`
	Unread   int             `json:"unread"`
}

func (a *API) listInbox(ctx handler.Context, req inboxRequest) handler.Response {
	if err := validator.Apply(
		validator.Min("limit", req.Limit, 0),
		validator.Min("offset", req.Offset, 0),
	); err != nil {
		return handler.JSONError(err)
	}

	msgs, err := a.inbox.List(ctx, req.UserID, inbox.ListOptions{
		Limit:      req.Limit,
		Offset:     req.Offset,
		OnlyUnread: req.Unread,
	})
	if err != nil {
		return a.fail(ctx, err, logger.UserID(req.UserID))
	}
	unread, err := a.inbox.CountUnread(ctx, req.UserID)
	if err != nil {
		return a.fail(ctx, err, logger.UserID(req.UserID))
	}
	if msgs == nil {
		msgs = []inbox.Message{}
	}
	return handler.JSON(inboxView{Messages: msgs, Unread: unread})
}

// markInboxRead marks the listed ids read, or every message when the body
// is empty or lists none.
func (a *API) markInboxRead(ctx handler.Context, req markReadRequest) handler.Response {
	var (
		n   int
		err error
	)
	if len(req.IDs) == 0 {
		n, err = a.inbox.MarkAllRead(ctx, req.UserID)
	} else {
		n, err = a.inbox.MarkRead(ctx, req.UserID, req.IDs...)
	}
	if err != nil {
		return a.fail(ctx, err, logger.UserID(req.UserID))
	}
	return handler.JSON(map[string]int{"updated": n})
}
