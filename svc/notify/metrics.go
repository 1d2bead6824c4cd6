package notify

// Recorder receives pipeline counters. metrics.Pipeline implements it.
type Recorder interface {
	RecordIngest(outcome string)
	RecordNotification(channel, outcome string)
	RecordDeadLetter(channel string)
}

// Ingest outcomes.
const (
	IngestAccepted = "accepted"
	IngestReplayed = "replayed"
	IngestInvalid  = "invalid"
	IngestFailed   = "failed"
)

// Notification outcomes.
const (
	NotificationOutcomeSent    = "sent"
	NotificationOutcomeFailed  = "failed"
	NotificationOutcomeDead    = "dead_lettered"
	NotificationOutcomeSkipped = "skipped"
)

type noopRecorder struct{}

func (noopRecorder) RecordIngest(string)               {}
func (noopRecorder) RecordNotification(string, string) {}
func (noopRecorder) RecordDeadLetter(string)           {}
