package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/binder"
	"github.com/dmitrymomot/notifyhub/pkg/handler"
	"github.com/dmitrymomot/notifyhub/pkg/validator"
)

type greetRequest struct {
	Name  string `json:"name"`
	Loud  bool   `query:"loud" json:"-"`
	Limit int    `query:"limit" json:"-"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) handler.JSONResponse {
	t.Helper()
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	var resp handler.JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestWrap(t *testing.T) {
	t.Parallel()

	greet := handler.Wrap(func(ctx handler.Context, req greetRequest) handler.Response {
		if req.Name == "" {
			return handler.JSONError(validator.Apply(validator.Required("name", req.Name)))
		}
		msg := "hello " + req.Name
		if req.Loud {
			msg = strings.ToUpper(msg)
		}
		return handler.JSON(map[string]string{"greeting": msg}, handler.WithStatus(http.StatusCreated), handler.WithMessage("greeted"))
	}, handler.WithBinders[greetRequest](binder.BindJSON(), binder.BindQuery()))

	t.Run("binds every source", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		greet(rec, httptest.NewRequest(http.MethodPost, "/?loud=true", strings.NewReader(`{"name":"ann"}`)))

		require.Equal(t, http.StatusCreated, rec.Code)
		resp := decode(t, rec)
		assert.True(t, resp.Success)
		assert.Equal(t, "greeted", resp.Message)
		assert.Equal(t, map[string]any{"greeting": "HELLO ANN"}, resp.Data)
	})

	t.Run("validation errors carry details", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		greet(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decode(t, rec)
		assert.False(t, resp.Success)
		assert.Equal(t, "Validation failed", resp.Message)
		assert.Contains(t, resp.Details, "name")
	})

	t.Run("binding errors skip the handler", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		greet(rec, httptest.NewRequest(http.MethodPost, "/?limit=many", strings.NewReader(`{"name":"ann"}`)))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode(t, rec).Details, "limit")

		rec = httptest.NewRecorder()
		greet(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`)))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid JSON body", decode(t, rec).Message)
	})

	t.Run("custom error handler", func(t *testing.T) {
		t.Parallel()
		var seen error
		h := handler.Wrap(func(ctx handler.Context, req greetRequest) handler.Response { return nil },
			handler.WithErrorHandler[greetRequest](func(ctx handler.Context, err error) {
				seen = err
				ctx.ResponseWriter().WriteHeader(http.StatusTeapot)
			}))
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.ErrorIs(t, seen, handler.ErrNilResponse)
	})
}

func TestJSONError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"http error", handler.NotFound("Event not found"), http.StatusNotFound, "Event not found"},
		{"wrapped http error", fmt.Errorf("lookup: %w", handler.BadRequest("bad id")), http.StatusBadRequest, "bad id"},
		{"media type", fmt.Errorf("%w: text/plain", binder.ErrUnsupportedMediaType), http.StatusUnsupportedMediaType, "Content-Type must be application/json"},
		{"too large", binder.ErrBodyTooLarge, http.StatusRequestEntityTooLarge, "Request body too large"},
		{"internal", errors.New("connection refused"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			require.NoError(t, handler.JSONError(tt.err).Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.status, handler.StatusOf(tt.err))
			resp := decode(t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.message, resp.Message)
			assert.Equal(t, http.StatusText(tt.status), resp.Error)
			assert.NotContains(t, rec.Body.String(), "connection refused")
		})
	}
}

func TestContextDelegatesToRequest(t *testing.T) {
	t.Parallel()

	type key struct{}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(context.WithValue(r.Context(), key{}, "v"))
	ctx := handler.NewContext(httptest.NewRecorder(), r)

	assert.Equal(t, "v", ctx.Value(key{}))
	assert.Same(t, r, ctx.Request())
	assert.NoError(t, ctx.Err())
}
