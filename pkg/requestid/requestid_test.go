package requestid_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/requestid"
)

func serve(t *testing.T, headers map[string]string) (seen string, echoed string) {
	t.Helper()

	h := requestid.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestid.FromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPost, "/events", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return seen, rec.Header().Get(requestid.Header)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("generates", func(t *testing.T) {
		t.Parallel()
		seen, echoed := serve(t, nil)
		require.NotEmpty(t, seen)
		assert.Equal(t, seen, echoed)
		_, err := uuid.Parse(seen)
		assert.NoError(t, err)
	})

	t.Run("reuses request id", func(t *testing.T) {
		t.Parallel()
		seen, echoed := serve(t, map[string]string{requestid.Header: "req-123"})
		assert.Equal(t, "req-123", seen)
		assert.Equal(t, "req-123", echoed)
	})

	t.Run("falls back to correlation id", func(t *testing.T) {
		t.Parallel()
		seen, _ := serve(t, map[string]string{
			requestid.Header:            "bad id!",
			requestid.CorrelationHeader: "order:42",
		})
		assert.Equal(t, "order:42", seen)
	})

	t.Run("replaces invalid ids", func(t *testing.T) {
		t.Parallel()
		for _, id := range []string{"<script>", "a b", strings.Repeat("x", 129)} {
			seen, _ := serve(t, map[string]string{requestid.Header: id})
			assert.NotEqual(t, id, seen)
			assert.True(t, requestid.Valid(seen))
		}
	})
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	extract := requestid.LoggerExtractor()
	_, ok := extract(context.Background())
	assert.False(t, ok)

	attr, ok := extract(requestid.WithContext(context.Background(), "r1"))
	require.True(t, ok)
	assert.Equal(t, "request_id", attr.Key)
	assert.Equal(t, "r1", attr.Value.String())
}
