package api

import (
	"maps"
	"sync"
)

// SettingsStore holds the mutable runtime defaults applied to new jobs
// (whisper model, markdown style, ...). A request's own settings always
// win over these defaults. Safe for concurrent use.
type SettingsStore struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewSettingsStore seeds the store with the given defaults.
func NewSettingsStore(defaults map[string]any) *SettingsStore {
	return &SettingsStore{values: maps.Clone(defaults)}
}

// All returns a copy of the current settings.
func (s *SettingsStore) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Update merges the patch into the settings and returns the new state.
// A nil value removes the key.
func (s *SettingsStore) Update(patch map[string]any) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string]any)
	}
	for key, value := range patch {
		if value == nil {
			delete(s.values, key)
			continue
		}
		s.values[key] = value
	}
	return maps.Clone(s.values)
}

// Merge overlays request settings on the stored defaults. The request
// settings take precedence.
func (s *SettingsStore) Merge(request map[string]any) map[string]any {
	merged := s.All()
	if merged == nil {
		merged = make(map[string]any)
	}
	maps.Copy(merged, request)
	return merged
}
