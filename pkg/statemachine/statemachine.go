package statemachine

import "slices"

// Table is an immutable transition table: each event moves a record from
// one of a set of source states to a single target state.
//
// The table itself holds no current state. Stores use Sources to build
// conditional updates (`status IN (...)`) so a transition is applied
// atomically against whatever state is persisted.
type Table[S ~string, E ~string] struct {
	rules  map[E]rule[S]
	states []S
}

type rule[S ~string] struct {
	from []S
	to   S
}

// Fire returns the state reached by applying event to from.
func (t *Table[S, E]) Fire(from S, event E) (S, error) {
	r, ok := t.rules[event]
	if !ok || !slices.Contains(r.from, from) {
		return from, NewErrNoTransitionAvailable(string(from), string(event))
	}
	return r.to, nil
}

// CanFire reports whether event is allowed from state from.
func (t *Table[S, E]) CanFire(from S, event E) bool {
	_, err := t.Fire(from, event)
	return err == nil
}

// Sources returns the states event may be fired from, in declaration order.
func (t *Table[S, E]) Sources(event E) []S {
	return slices.Clone(t.rules[event].from)
}

// Target returns the state event leads to and whether event is known.
func (t *Table[S, E]) Target(event E) (S, bool) {
	r, ok := t.rules[event]
	return r.to, ok
}

// IsTerminal reports whether no event leaves s.
func (t *Table[S, E]) IsTerminal(s S) bool {
	for _, r := range t.rules {
		if slices.Contains(r.from, s) {
			return false
		}
	}
	return true
}

// States lists every state mentioned by the table in declaration order.
func (t *Table[S, E]) States() []S {
	return slices.Clone(t.states)
}

// Must panics if err is not nil. Intended for package-level tables.
func Must[S ~string, E ~string](t *Table[S, E], err error) *Table[S, E] {
	if err != nil {
		panic(err)
	}
	return t
}
