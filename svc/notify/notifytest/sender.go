// Package notifytest provides senders for exercising the retry and dead
// letter paths of the notify pipeline. It is meant for tests and local
// chaos runs, never for production wiring.
package notifytest

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/dmitrymomot/notifyhub/svc/notify"
)

// ErrInjected is returned by FaultySender when it decides to fail.
var ErrInjected = errors.New("injected delivery failure")

// RecordingSender stores every delivery it receives.
type RecordingSender struct {
	mu         sync.Mutex
	deliveries []notify.Delivery
}

// NewRecordingSender creates an empty RecordingSender.
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{}
}

func (s *RecordingSender) Send(ctx context.Context, d notify.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, d)
	return nil
}

// Deliveries returns a copy of the recorded deliveries.
func (s *RecordingSender) Deliveries() []notify.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Delivery(nil), s.deliveries...)
}

// Count returns the number of deliveries recorded for eventID.
func (s *RecordingSender) Count(eventID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.deliveries {
		if d.EventID == eventID {
			n++
		}
	}
	return n
}

// FaultySender wraps a Sender and fails some calls before they reach it.
type FaultySender struct {
	next      notify.Sender
	err       error
	failFirst int
	rate      float64
	rand      func() float64

	mu       sync.Mutex
	calls    int
	failures int
}

// Option configures a FaultySender.
type Option func(*FaultySender)

// FailFirst fails the first n calls.
func FailFirst(n int) Option {
	return func(s *FaultySender) { s.failFirst = n }
}

// FailAlways fails every call.
func FailAlways() Option {
	return func(s *FaultySender) { s.rate = 1 }
}

// FailRate fails each call with probability p after FailFirst is spent.
func FailRate(p float64) Option {
	return func(s *FaultySender) { s.rate = p }
}

// WithError sets the returned error. Defaults to ErrInjected.
func WithError(err error) Option {
	return func(s *FaultySender) { s.err = err }
}

// WithRand overrides the random source used by FailRate.
func WithRand(fn func() float64) Option {
	return func(s *FaultySender) { s.rand = fn }
}

// NewFaultySender wraps next. A nil next succeeds silently.
func NewFaultySender(next notify.Sender, opts ...Option) *FaultySender {
	s := &FaultySender{next: next, err: ErrInjected, rand: rand.Float64}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FaultySender) Send(ctx context.Context, d notify.Delivery) error {
	s.mu.Lock()
	s.calls++
	fail := s.calls <= s.failFirst || (s.rate > 0 && s.rand() < s.rate)
	if fail {
		s.failures++
	}
	s.mu.Unlock()

	if fail {
		return s.err
	}
	if s.next == nil {
		return nil
	}
	return s.next.Send(ctx, d)
}

// Calls returns the number of Send calls.
func (s *FaultySender) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Failures returns the number of injected failures.
func (s *FaultySender) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}
