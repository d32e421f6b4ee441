// Package memres is an in-memory resource tracker with parent/child
// ownership and cascade deletes. It is the reference rollbackable system:
// checkpoints deep-copy the whole tree, so engine behavior can be tested
// without any external target.
package memres

import (
	"context"
	"fmt"
	"sync"

	"github.com/probemap/probemap/internal/state"
	"github.com/probemap/probemap/internal/world"
)

// Resource is one tracked resource. Parent is empty for roots.
type Resource struct {
	ID     string
	Kind   string
	Parent string
	Attrs  map[string]any
}

// Store tracks resources behind one mutex, held across every operation
// including checkpoint and rollback, so observations never see a tree
// mid-mutation.
type Store struct {
	mu        sync.Mutex
	name      string
	resources map[string]Resource
	saved     map[string]map[string]Resource
	nextToken int
}

// New creates an empty store registered under the given system name.
func New(name string) *Store {
	return &Store{
		name:      name,
		resources: make(map[string]Resource),
		saved:     make(map[string]map[string]Resource),
	}
}

// Name implements world.System.
func (s *Store) Name() string { return s.name }

// Create adds a root resource. Duplicate ids are an error.
func (s *Store) Create(id, kind string, attrs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(id, kind, "", attrs)
}

// CreateChild adds a resource owned by parent. The parent must exist.
func (s *Store) CreateChild(id, kind, parent string, attrs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[parent]; !ok {
		return fmt.Errorf("create %s: parent %q does not exist", id, parent)
	}
	return s.createLocked(id, kind, parent, attrs)
}

func (s *Store) createLocked(id, kind, parent string, attrs map[string]any) error {
	if id == "" {
		return fmt.Errorf("create: empty resource id")
	}
	if _, dup := s.resources[id]; dup {
		return fmt.Errorf("create %s: already exists", id)
	}
	s.resources[id] = Resource{ID: id, Kind: kind, Parent: parent, Attrs: copyAttrs(attrs)}
	return nil
}

// Update merges attrs into an existing resource.
func (s *Store) Update(id string, attrs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.resources[id]
	if !ok {
		return fmt.Errorf("update %s: does not exist", id)
	}
	merged := copyAttrs(res.Attrs)
	for k, v := range attrs {
		merged[k] = v
	}
	res.Attrs = merged
	s.resources[id] = res
	return nil
}

// Delete removes a resource and every transitive descendant, returning
// how many resources went away.
func (s *Store) Delete(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[id]; !ok {
		return 0, fmt.Errorf("delete %s: does not exist", id)
	}

	doomed := []string{id}
	for i := 0; i < len(doomed); i++ {
		for _, res := range s.resources {
			if res.Parent == doomed[i] {
				doomed = append(doomed, res.ID)
			}
		}
	}
	for _, d := range doomed {
		delete(s.resources, d)
	}
	return len(doomed), nil
}

// Get returns a resource copy.
func (s *Store) Get(id string) (Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.resources[id]
	if !ok {
		return Resource{}, false
	}
	res.Attrs = copyAttrs(res.Attrs)
	return res, true
}

// Count returns how many resources exist.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resources)
}

// Observe implements world.System. The observation lists every resource
// keyed by id.
func (s *Store) Observe(ctx context.Context) (state.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resources := make(map[string]any, len(s.resources))
	for id, res := range s.resources {
		entry := map[string]any{"kind": res.Kind}
		if res.Parent != "" {
			entry["parent"] = res.Parent
		}
		if len(res.Attrs) > 0 {
			entry["attrs"] = copyAttrs(res.Attrs)
		}
		resources[id] = entry
	}
	return state.NewObservation(s.name, map[string]any{"resources": resources}), nil
}

// Checkpoint implements world.System by deep-copying the tree.
func (s *Store) Checkpoint(ctx context.Context, name string) (world.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[string]Resource, len(s.resources))
	for id, res := range s.resources {
		res.Attrs = copyAttrs(res.Attrs)
		copied[id] = res
	}

	s.nextToken++
	token := fmt.Sprintf("%s-cp-%d", s.name, s.nextToken)
	s.saved[token] = copied
	return token, nil
}

// Rollback implements world.System.
func (s *Store) Rollback(ctx context.Context, token world.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := token.(string)
	if !ok {
		return fmt.Errorf("rollback %s: foreign token %v", s.name, token)
	}
	copied, ok := s.saved[key]
	if !ok {
		return fmt.Errorf("rollback %s: unknown token %q", s.name, key)
	}

	restored := make(map[string]Resource, len(copied))
	for id, res := range copied {
		res.Attrs = copyAttrs(res.Attrs)
		restored[id] = res
	}
	s.resources = restored
	return nil
}

func copyAttrs(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
