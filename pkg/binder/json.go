package binder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// DefaultMaxBodySize bounds JSON bodies when no WithMaxBodySize is given.
const DefaultMaxBodySize int64 = 1 << 20

// JSONOption configures BindJSON.
type JSONOption func(*jsonConfig)

type jsonConfig struct {
	maxBytes   int64
	allowEmpty bool
	strict     bool
}

// WithMaxBodySize caps the number of bytes read from the body.
func WithMaxBodySize(n int64) JSONOption {
	return func(c *jsonConfig) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// AllowEmptyBody leaves the target untouched when the body is empty instead
// of failing with ErrInvalidJSON.
func AllowEmptyBody() JSONOption {
	return func(c *jsonConfig) { c.allowEmpty = true }
}

// Strict rejects bodies with fields the target does not declare.
func Strict() JSONOption {
	return func(c *jsonConfig) { c.strict = true }
}

// BindJSON decodes a single JSON document from the request body. A missing
// Content-Type is accepted; any media type other than application/json is
// rejected with ErrUnsupportedMediaType.
//
//	r.Post("/events", handler.Wrap(ingest,
//		handler.WithBinders[IngestBody](binder.BindJSON()),
//	))
func BindJSON(opts ...JSONOption) func(r *http.Request, v any) error {
	cfg := jsonConfig{maxBytes: DefaultMaxBodySize}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(r *http.Request, v any) error {
		if ct := r.Header.Get("Content-Type"); ct != "" {
			mediaType, _, err := mime.ParseMediaType(ct)
			if err != nil || mediaType != "application/json" {
				return fmt.Errorf("%w: %q, expected application/json", ErrUnsupportedMediaType, ct)
			}
		}
		if r.Body == nil {
			if cfg.allowEmpty {
				return nil
			}
			return fmt.Errorf("%w: empty body", ErrInvalidJSON)
		}

		body := &io.LimitedReader{R: r.Body, N: cfg.maxBytes + 1}
		dec := json.NewDecoder(body)
		if cfg.strict {
			dec.DisallowUnknownFields()
		}

		if err := dec.Decode(v); err != nil {
			switch {
			case errors.Is(err, io.EOF) && cfg.allowEmpty:
				return nil
			case errors.Is(err, io.EOF):
				return fmt.Errorf("%w: empty body", ErrInvalidJSON)
			case body.N <= 0:
				return fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, cfg.maxBytes)
			default:
				return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
			}
		}

		var trailing json.RawMessage
		if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
			if body.N <= 0 {
				return fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, cfg.maxBytes)
			}
			return fmt.Errorf("%w: unexpected data after JSON document", ErrInvalidJSON)
		}
		return nil
	}
}
