package vfs

import (
	"sort"
	"sync"
)

// Registry maps names to vfs instances. The first registered vfs becomes the
// default unless another one is registered with makeDefault.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]IVFS
	def   string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]IVFS)}
}

// Register adds v under name. A name can only be registered once.
func (r *Registry) Register(name string, v IVFS, makeDefault bool) error {
	if v == nil || name == "" {
		return newError(CodeInvalid, "register", name, nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[name]; ok {
		return newError(CodeExists, "register", name, nil)
	}
	r.byKey[name] = v
	if makeDefault || r.def == "" {
		r.def = name
	}
	log.Debugf("registered vfs %q (default: %t)", name, r.def == name)
	return nil
}

// Find returns the vfs registered under name. An empty name returns the default.
func (r *Registry) Find(name string) (IVFS, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.def
	}
	v, ok := r.byKey[name]
	if !ok {
		return nil, newError(CodeNotFound, "find", name, nil)
	}
	return v, nil
}

// Default returns the default vfs, if there is one.
func (r *Registry) Default() (IVFS, bool) {
	v, err := r.Find("")
	return v, err == nil
}

// Unregister removes name from the registry. The vfs itself is not closed.
// If it was the default there is no default afterwards.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[name]; !ok {
		return newError(CodeNotFound, "unregister", name, nil)
	}
	delete(r.byKey, name)
	if r.def == name {
		r.def = ""
	}
	return nil
}

// Names returns all registered names in ascending order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byKey))
	for name := range r.byKey {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
