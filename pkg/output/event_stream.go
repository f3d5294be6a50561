// Copyright 2025 Verba Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package output

import "sync"

// OutputSubscriber receives output events from an OutputEventStream.
// Subscribers render events (to a terminal, a log, a JSON stream) and
// must not return errors; rendering failures are swallowed.
type OutputSubscriber interface {
	// Name returns a stable identifier for the subscriber.
	Name() string

	// ShouldHandle decides whether this subscriber cares about the event.
	// Returning false skips Handle entirely.
	ShouldHandle(event OutputEvent) bool

	// Handle processes a single event.
	Handle(event OutputEvent)
}

// OutputEventStream fans output events out to registered subscribers.
// Emit delivers synchronously, in subscription order, so subscribers
// observe events in the order business logic produced them.
type OutputEventStream struct {
	mu          sync.RWMutex
	subscribers []OutputSubscriber
}

// NewOutputEventStream creates an empty event stream.
func NewOutputEventStream() *OutputEventStream {
	return &OutputEventStream{}
}

// Subscribe registers a subscriber. Subscribing the same name twice
// replaces the previous registration.
func (s *OutputEventStream) Subscribe(sub OutputSubscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.subscribers {
		if existing.Name() == sub.Name() {
			s.subscribers[i] = sub
			return
		}
	}
	s.subscribers = append(s.subscribers, sub)
}

// Unsubscribe removes the subscriber with the given name, if present.
func (s *OutputEventStream) Unsubscribe(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.subscribers {
		if existing.Name() == name {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns the number of registered subscribers.
func (s *OutputEventStream) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

// Emit delivers the event to every subscriber whose ShouldHandle accepts it.
func (s *OutputEventStream) Emit(event OutputEvent) {
	s.mu.RLock()
	subs := make([]OutputSubscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.RUnlock()

	for _, sub := range subs {
		if sub.ShouldHandle(event) {
			sub.Handle(event)
		}
	}
}
