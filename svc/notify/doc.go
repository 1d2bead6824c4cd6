// Package notify implements the event to notification pipeline.
//
// A Gateway admits events idempotently: a known event id replays the stored
// status, a new one is stored at RECEIVED and one orchestration task keyed by
// the event id is enqueued on OrchestrationQueue.
//
// The Orchestrator consumes that queue. It resolves the user's channels
// through a PreferenceProvider and creates one Notification per channel. The
// (eventId, channel) uniqueness of the NotificationStore is the idempotency
// guard, so a redelivered orchestration job never fans out twice.
// Asynchronous channels get a delivery task keyed by Channel.TaskKey.
// Synchronous channels are delivered inline and recorded as SENT.
//
// A Dispatcher per asynchronous channel performs the send, records each
// failure on the notification and lets the queue retry with backoff. When the
// queue reports the attempts exhausted, Escalate moves the notification to
// DEAD_LETTERED and writes one DeadLetterRecord.
//
// Status changes follow EventLifecycle and NotificationLifecycle and are
// applied by the stores as conditional updates, so a stale retry can never
// move a SENT or DEAD_LETTERED notification backwards.
//
// Wiring a worker:
//
//	channels := []notify.ChannelSpec{
//		{Channel: notify.ChannelEmail, Sender: notify.NewEmailSender(mailer)},
//		{Channel: notify.ChannelInApp, Sender: notify.NewInboxSender(box), Sync: true},
//	}
//	orch := notify.NewOrchestrator(store, prefs, enqueuer, channels)
//	w, _ := queue.NewWorker(repo, queue.WithQueues(notify.Queues(channels)...))
//	_ = w.RegisterHandlers(notify.Handlers(orch, notify.NewDispatchers(channels, store)...)...)
//
// Backends live in the mongostore and pgstore subpackages; MemoryStore serves
// tests.
package notify
