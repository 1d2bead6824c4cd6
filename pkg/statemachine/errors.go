package statemachine

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid transition: from, to, and event are required")

// ErrNoTransitionAvailable is returned when the event is not allowed from the state.
type ErrNoTransitionAvailable struct {
	StateName string
	EventName string
}

func (e *ErrNoTransitionAvailable) Error() string {
	return fmt.Sprintf("no transition available from state '%s' for event '%s'", e.StateName, e.EventName)
}

func NewErrNoTransitionAvailable(stateName, eventName string) *ErrNoTransitionAvailable {
	return &ErrNoTransitionAvailable{StateName: stateName, EventName: eventName}
}

// ErrConflictingTransition is returned by Build when one event is declared
// with two different targets.
type ErrConflictingTransition struct {
	EventName string
	First     string
	Second    string
}

func (e *ErrConflictingTransition) Error() string {
	return fmt.Sprintf("event '%s' already leads to '%s', cannot also lead to '%s'", e.EventName, e.First, e.Second)
}

func NewErrConflictingTransition(event, first, second string) *ErrConflictingTransition {
	return &ErrConflictingTransition{EventName: event, First: first, Second: second}
}

func IsNoTransitionAvailableError(err error) bool {
	var e *ErrNoTransitionAvailable
	return errors.As(err, &e)
}
