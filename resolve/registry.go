package resolve

import (
	"fmt"
	"sync"
)

// Registry is a process-lifetime name → context store. Registration is
// write-once per name; there is no removal. The resolver never consults a
// registry unless one is injected via WithRegistry, so nothing in this
// package hard-wires a singleton.
type Registry struct {
	mu sync.RWMutex
	m  map[string]any
}

// NewRegistry returns an empty context registry.
func NewRegistry() *Registry {
	return &Registry{m: make(map[string]any)}
}

// DefaultRegistry is the process-wide registry used by the package facade.
// Callers who want isolation construct their own with NewRegistry.
var DefaultRegistry = NewRegistry()

// Register associates name with context. Re-registering a name fails with
// ErrAlreadyRegistered, even with an identical context.
func (r *Registry) Register(name string, context any) error {
	if name == "" {
		return ErrEmptyName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[name]; ok {
		return fmt.Errorf("%w: %q", ErrAlreadyRegistered, name)
	}
	r.m[name] = context
	return nil
}

// Lookup returns the context registered under name.
func (r *Registry) Lookup(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.m[name]
	return v, ok
}

// Snapshot returns a copy of the current name → context mapping.
func (r *Registry) Snapshot() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.m))
	for k, v := range r.m {
		out[k] = v
	}
	return out
}

// RegisterContext registers a context on the DefaultRegistry.
func RegisterContext(name string, context any) error {
	return DefaultRegistry.Register(name, context)
}
