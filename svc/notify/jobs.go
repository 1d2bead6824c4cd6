package notify

// OrchestrationQueue carries one orchestration job per event.
const OrchestrationQueue = "event_queue"

// OrchestrationTask is the handler name of orchestration jobs.
const OrchestrationTask = "notify.orchestrate"

// ReconcileTask is the handler name of the periodic reconciliation sweep.
const ReconcileTask = "notify.reconcile"

// OrchestrationJob is the payload of an orchestration task. Its queue key is
// the event id.
type OrchestrationJob struct {
	EventID string         `json:"eventId"`
	Type    EventType      `json:"type"`
	UserID  string         `json:"userId"`
	Payload map[string]any `json:"data"`
}

// ChannelJob is the payload of a delivery task. Its queue key is
// Channel.TaskKey(EventID).
type ChannelJob struct {
	EventID   string  `json:"eventId"`
	UserID    string  `json:"userId"`
	Channel   Channel `json:"channel"`
	Recipient string  `json:"recipient"`
	Subject   string  `json:"subject,omitempty"`
	Content   string  `json:"content"`
}

func (j ChannelJob) delivery() Delivery {
	return Delivery{
		EventID:   j.EventID,
		UserID:    j.UserID,
		Channel:   j.Channel,
		Recipient: j.Recipient,
		Subject:   j.Subject,
		Content:   j.Content,
	}
}
