// Package statemachine provides small, immutable transition tables for
// records whose status lives in a database.
//
// Unlike an in-memory machine, a Table never holds the current state. It
// answers two questions: which state an event leads to, and which states
// the event may fire from. The second answer is what a store needs to
// apply a transition as a single conditional update, so concurrent
// writers cannot move a record backwards:
//
//	var orders = statemachine.Must(statemachine.NewBuilder[Status, Event]().
//		From(Pending).When(Pay).To(Paid).
//		From(Pending, Paid).When(Cancel).To(Cancelled).
//		Build())
//
//	to, _ := orders.Target(Cancel)
//	// UPDATE orders SET status = $to WHERE id = $1 AND status = ANY($2)
//	// with $2 = orders.Sources(Cancel)
//
// Fire validates a transition in memory; IsTerminal reports states with no
// outgoing events.
package statemachine
