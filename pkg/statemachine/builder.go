package statemachine

import "slices"

// Builder declares transitions with a fluent API:
//
//	table, err := statemachine.NewBuilder[Status, Event]().
//		From(Pending, Failed).When(Sent).To(Delivered).
//		Build()
type Builder[S ~string, E ~string] struct {
	rules map[E]rule[S]
	order []S
	err   error
}

// Step is a transition under construction.
type Step[S ~string, E ~string] struct {
	b     *Builder[S, E]
	from  []S
	event E
}

func NewBuilder[S ~string, E ~string]() *Builder[S, E] {
	return &Builder[S, E]{rules: make(map[E]rule[S])}
}

// From starts a transition allowed from any of states.
func (b *Builder[S, E]) From(states ...S) *Step[S, E] {
	return &Step[S, E]{b: b, from: states}
}

// When sets the event that triggers the transition.
func (s *Step[S, E]) When(event E) *Step[S, E] {
	s.event = event
	return s
}

// To finishes the transition and returns the builder.
// Declaring the same event twice with a different target is an error;
// with the same target the source sets are merged.
func (s *Step[S, E]) To(to S) *Builder[S, E] {
	b := s.b
	if b.err != nil {
		return b
	}
	if len(s.from) == 0 || s.event == "" || to == "" {
		b.err = ErrInvalidTransition
		return b
	}

	r, exists := b.rules[s.event]
	if exists && r.to != to {
		b.err = NewErrConflictingTransition(string(s.event), string(r.to), string(to))
		return b
	}
	r.to = to
	for _, from := range s.from {
		if !slices.Contains(r.from, from) {
			r.from = append(r.from, from)
		}
		b.track(from)
	}
	b.track(to)
	b.rules[s.event] = r
	return b
}

// Build returns the table or the first declaration error.
func (b *Builder[S, E]) Build() (*Table[S, E], error) {
	if b.err != nil {
		return nil, b.err
	}
	rules := make(map[E]rule[S], len(b.rules))
	for e, r := range b.rules {
		rules[e] = rule[S]{from: slices.Clone(r.from), to: r.to}
	}
	return &Table[S, E]{rules: rules, states: slices.Clone(b.order)}, nil
}

func (b *Builder[S, E]) track(s S) {
	if !slices.Contains(b.order, s) {
		b.order = append(b.order, s)
	}
}
