package notify

import "github.com/dmitrymomot/notifyhub/pkg/queue"

// Queues lists the queues a worker must consume to run the pipeline for
// channels: the orchestration queue plus one per asynchronous channel.
func Queues(channels []ChannelSpec) []string {
	out := []string{OrchestrationQueue}
	for _, c := range channels {
		if !c.Sync {
			out = append(out, c.Channel.Queue())
		}
	}
	return out
}

// NewDispatchers creates one Dispatcher per asynchronous channel.
func NewDispatchers(channels []ChannelSpec, store Store, opts ...DispatcherOption) []*Dispatcher {
	var out []*Dispatcher
	for _, c := range channels {
		if !c.Sync {
			out = append(out, NewDispatcher(c, store, opts...))
		}
	}
	return out
}

// Handlers collects the queue handlers of o and ds.
func Handlers(o *Orchestrator, ds ...*Dispatcher) []queue.Handler {
	out := []queue.Handler{o.Handler()}
	for _, d := range ds {
		out = append(out, d.Handler())
	}
	return out
}
