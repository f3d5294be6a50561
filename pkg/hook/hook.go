package hook

import (
	"context"
	"sync"
)

// Func is a callback bound to a named lifecycle point (e.g. "onShutdown").
type Func func(ctx context.Context)

// Manager collects named lifecycle hooks and triggers them on demand.
// The serve command uses it to tear down the worker pool, watcher, and
// reaper in registration order when the process receives a signal.
type Manager struct {
	mu        sync.Mutex
	hooks     map[string][]Func
	triggered map[string]bool
}

// NewManager creates an empty hook manager.
func NewManager() *Manager {
	return &Manager{
		hooks:     make(map[string][]Func),
		triggered: make(map[string]bool),
	}
}

// Register adds a hook to the named lifecycle point.
func (m *Manager) Register(name string, fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[name] = append(m.hooks[name], fn)
}

// Trigger runs all hooks registered under name, each on its own goroutine.
// The context is passed through as-is; hooks run even if it is already
// canceled so teardown work always gets a chance to execute.
func (m *Manager) Trigger(ctx context.Context, name string) {
	m.mu.Lock()
	m.triggered[name] = true
	hooks := make([]Func, len(m.hooks[name]))
	copy(hooks, m.hooks[name])
	m.mu.Unlock()

	for _, fn := range hooks {
		go fn(ctx)
	}
}

// IsTriggered reports whether Trigger has been called for name.
func (m *Manager) IsTriggered(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggered[name]
}
