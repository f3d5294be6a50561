package event

import (
	"context"
	"sync"
)

// Handler is invoked asynchronously for every published event it is
// subscribed to. Handlers must be safe for concurrent invocation.
type Handler func(ctx context.Context, data any)

// Well-known event names published by the job registry.
const (
	JobCreated   = "job.created"
	JobCompleted = "job.completed"
	JobFailed    = "job.failed"
)

// Manager is a minimal in-process publish/subscribe bus. It decouples the
// job registry from consumers like the retention reaper and access logging:
// publishers never block on subscribers.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewManager creates an empty event bus.
func NewManager() *Manager {
	return &Manager{
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for the named event. There is no
// unsubscribe; subscriptions live for the process lifetime.
func (m *Manager) Subscribe(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = append(m.handlers[name], handler)
}

// Publish dispatches the event to all subscribed handlers, each on its own
// goroutine. Publishing to an event with no subscribers is a no-op.
func (m *Manager) Publish(ctx context.Context, name string, data any) {
	m.mu.RLock()
	handlers := m.handlers[name]
	m.mu.RUnlock()

	for _, h := range handlers {
		go h(ctx, data)
	}
}
