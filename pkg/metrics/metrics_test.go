package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/metrics"
	"github.com/dmitrymomot/notifyhub/pkg/queue"
)

func scrape(t *testing.T, p *metrics.Provider) string {
	t.Helper()

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestPipeline(t *testing.T) {
	t.Parallel()

	p := metrics.NewProvider("test_app")
	m, err := metrics.NewPipeline(p)
	require.NoError(t, err)

	m.RecordIngest("accepted")
	m.RecordIngest("accepted")
	m.RecordIngest("replayed")
	m.RecordNotification("EMAIL", "sent")
	m.RecordDeadLetter("EMAIL")
	m.ObserveTask(queue.TaskInfo{Queue: "events", Name: "orchestrate"}, queue.OutcomeCompleted, 20*time.Millisecond)

	out := scrape(t, p)
	assert.Contains(t, out, `test_app_events_ingested_total{outcome="accepted"} 2`)
	assert.Contains(t, out, `test_app_events_ingested_total{outcome="replayed"} 1`)
	assert.Contains(t, out, `test_app_notifications_total{channel="EMAIL",outcome="sent"} 1`)
	assert.Contains(t, out, `test_app_dead_letters_total{channel="EMAIL"} 1`)
	assert.Contains(t, out, `test_app_queue_tasks_total{outcome="completed",queue="events",task="orchestrate"} 1`)
	assert.Contains(t, out, `test_app_queue_task_duration_seconds_count{queue="events",task="orchestrate"} 1`)

	_, err = metrics.NewPipeline(p)
	assert.Error(t, err, "collectors register once per provider")
}

func TestHTTPMiddleware(t *testing.T) {
	t.Parallel()

	p := metrics.NewProvider("test_app")
	mw, err := metrics.HTTPMiddleware(p)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(mw)
	r.Get("/events/{eventId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/events/"+id, nil))
	}

	out := scrape(t, p)
	assert.Contains(t, out, `test_app_http_requests_total{method="GET",route="/events/{eventId}",status_code="404"} 2`)
}
