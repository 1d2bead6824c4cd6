package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/notifyhub/pkg/queue"
)

// Pipeline records ingestion, delivery and queue outcomes.
type Pipeline struct {
	ingested      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	deadLetters   *prometheus.CounterVec
	tasks         *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
}

// NewPipeline registers the pipeline collectors on the provider's registry.
func NewPipeline(p *Provider) (*Pipeline, error) {
	ns := p.Namespace()
	m := &Pipeline{
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_ingested_total",
			Help:      "Ingestion requests by outcome (accepted, replayed, invalid, error).",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "notifications_total",
			Help:      "Notification bookkeeping outcomes by channel.",
		}, []string{"channel", "outcome"}),
		deadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "dead_letters_total",
			Help:      "Notifications escalated to the dead-letter store.",
		}, []string{"channel"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "queue_tasks_total",
			Help:      "Processed queue tasks by queue, task and outcome.",
		}, []string{"queue", "task", "outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "queue_task_duration_seconds",
			Help:      "Handler execution time of queue tasks.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"queue", "task"}),
	}

	for _, c := range []prometheus.Collector{m.ingested, m.notifications, m.deadLetters, m.tasks, m.taskDuration} {
		if err := p.Registry().Register(c); err != nil {
			return nil, fmt.Errorf("register pipeline metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Pipeline) RecordIngest(outcome string) {
	m.ingested.WithLabelValues(outcome).Inc()
}

func (m *Pipeline) RecordNotification(channel, outcome string) {
	m.notifications.WithLabelValues(channel, outcome).Inc()
}

func (m *Pipeline) RecordDeadLetter(channel string) {
	m.deadLetters.WithLabelValues(channel).Inc()
}

// ObserveTask matches queue.TaskObserver.
func (m *Pipeline) ObserveTask(info queue.TaskInfo, outcome string, d time.Duration) {
	m.tasks.WithLabelValues(info.Queue, info.Name, outcome).Inc()
	m.taskDuration.WithLabelValues(info.Queue, info.Name).Observe(d.Seconds())
}

var _ queue.TaskObserver = (*Pipeline)(nil).ObserveTask
