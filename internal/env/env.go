package env

import (
	"slices"
	"sync"
)

// Env is the shared mutable key-value context actions read from and write
// to during exploration (resource ids, session tokens, captured response
// fields). It is checkpointed and rolled back alongside the systems under
// test, so exploration branches never see another branch's captures.
//
// All methods are safe for concurrent use.
type Env struct {
	mu     sync.RWMutex
	values map[string]any
}

// New creates an empty Env.
func New() *Env {
	return &Env{values: make(map[string]any)}
}

// NewFrom creates an Env seeded with a deep copy of the given values.
func NewFrom(values map[string]any) *Env {
	return &Env{values: cloneMap(values)}
}

// Get returns the value for key.
func (e *Env) Get(key string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.values[key]
	return v, ok
}

// GetString returns the value for key when it is a string.
func (e *Env) GetString(key string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.values[key].(string)
	return s, ok
}

// Set stores a value under key.
func (e *Env) Set(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.values[key] = value
}

// Delete removes key.
func (e *Env) Delete(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.values, key)
}

// Has reports whether every listed key is set.
func (e *Env) Has(keys ...string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, k := range keys {
		if _, ok := e.values[k]; !ok {
			return false
		}
	}
	return true
}

// Len returns the number of stored keys.
func (e *Env) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.values)
}

// Keys returns all stored keys, sorted.
func (e *Env) Keys() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := make([]string, 0, len(e.values))
	for k := range e.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Snapshot returns a deep copy of the current contents, suitable for
// storing inside a world checkpoint.
func (e *Env) Snapshot() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneMap(e.values)
}

// Restore replaces the contents with a deep copy of the snapshot.
func (e *Env) Restore(snapshot map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.values = cloneMap(snapshot)
}

// Pick returns a map holding deep copies of the listed keys, skipping
// any that are unset. Used to fold configured env keys into state
// identity as a synthetic observation.
func (e *Env) Pick(keys ...string) map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := e.values[k]; ok {
			out[k] = cloneValue(v)
		}
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}
