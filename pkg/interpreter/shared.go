package interpreter

import (
	"fmt"
	"sort"
	"sync"
)

// Shared is the process-wide namespace every session can read and write
// through the "globals" package. Writes by one session are visible to all
// others.
type Shared struct {
	mu   sync.RWMutex
	vals map[string]any
}

// NewShared creates an empty shared namespace.
func NewShared() *Shared {
	return &Shared{vals: make(map[string]any)}
}

var processShared = NewShared()

// ProcessShared returns the namespace shared by every Context in this
// process that was not given its own.
func ProcessShared() *Shared {
	return processShared
}

// Set stores a value under key.
func (s *Shared) Set(key string, value any) {
	s.mu.Lock()
	s.vals[key] = value
	s.mu.Unlock()
}

// Get returns the value stored under key, or nil.
func (s *Shared) Get(key string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vals[key]
}

// Delete removes key.
func (s *Shared) Delete(key string) {
	s.mu.Lock()
	delete(s.vals, key)
	s.mu.Unlock()
}

// Keys returns the sorted keys currently stored.
func (s *Shared) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.vals))
	for k := range s.vals {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Snapshot returns every entry rendered with fmt.Sprint.
func (s *Shared) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.vals))
	for k, v := range s.vals {
		out[k] = fmt.Sprint(v)
	}
	return out
}
