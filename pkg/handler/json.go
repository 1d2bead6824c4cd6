package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrymomot/notifyhub/pkg/binder"
	"github.com/dmitrymomot/notifyhub/pkg/validator"
)

// JSONResponse is the envelope of every JSON answer.
type JSONResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Data    any                 `json:"data,omitempty"`
	Error   string              `json:"error,omitempty"`
	Details map[string][]string `json:"details,omitempty"`
}

type jsonResponse struct {
	status int
	body   JSONResponse
}

func (j *jsonResponse) Render(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSONOption configures a JSON response.
type JSONOption func(*jsonResponse)

// WithStatus overrides the status code.
func WithStatus(status int) JSONOption {
	return func(j *jsonResponse) { j.status = status }
}

// WithMessage sets the human-readable message.
func WithMessage(msg string) JSONOption {
	return func(j *jsonResponse) { j.body.Message = msg }
}

// JSON answers 200 with data in a successful envelope.
func JSON(data any, opts ...JSONOption) Response {
	j := &jsonResponse{status: http.StatusOK, body: JSONResponse{Success: true, Data: data}}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// HTTPError is an error with a status code and a client-facing message.
type HTTPError struct {
	Status  int
	Message string
}

func (e HTTPError) Error() string { return e.Message }

// NotFound returns a 404 HTTPError.
func NotFound(msg string) HTTPError { return HTTPError{Status: http.StatusNotFound, Message: msg} }

// BadRequest returns a 400 HTTPError.
func BadRequest(msg string) HTTPError { return HTTPError{Status: http.StatusBadRequest, Message: msg} }

// JSONError renders err in a failed envelope. The status follows the error:
//   - validator.ValidationErrors: 400 with per-field details
//   - *binder.FieldError: 400 with the parameter in details
//   - binder body errors: 400, 413 or 415
//   - HTTPError: its status and message
//   - anything else: 500 without leaking err
func JSONError(err error, opts ...JSONOption) Response {
	j := &jsonResponse{body: JSONResponse{Success: false}}
	j.status, j.body.Message, j.body.Details = classify(err)
	j.body.Error = http.StatusText(j.status)
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// StatusOf returns the status JSONError would answer err with.
func StatusOf(err error) int {
	status, _, _ := classify(err)
	return status
}

func classify(err error) (int, string, map[string][]string) {
	if ve := validator.ExtractValidationErrors(err); ve != nil {
		return http.StatusBadRequest, "Validation failed", ve.Fields()
	}
	if fe, ok := binder.IsFieldError(err); ok {
		return http.StatusBadRequest, "Validation failed", map[string][]string{fe.Field: {fe.Err.Error()}}
	}

	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.Status, he.Message, nil
	case errors.Is(err, binder.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil
	case errors.Is(err, binder.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge, "Request body too large", nil
	case errors.Is(err, binder.ErrInvalidJSON):
		return http.StatusBadRequest, "Invalid JSON body", nil
	default:
		return http.StatusInternalServerError, "Internal server error", nil
	}
}
