package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/mir00r/stand-router/internal/domain"
)

// Sentinel errors for registration.
var (
	ErrEmptyName     = errors.New("backend name is empty")
	ErrNilHandle     = errors.New("backend handle is nil")
	ErrAlreadyExists = errors.New("backend already registered")
	ErrSealed        = errors.New("registry is sealed")
)

// Registry maps logical backend names to handles. It is filled at startup and
// sealed before the first dispatch; after Seal it is read-only and lookups
// take no lock.
type Registry struct {
	handles map[string]domain.BackendHandle
	names   []string
	sealed  atomic.Bool
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		handles: make(map[string]domain.BackendHandle),
	}
}

// Register adds handle under name. It must not be called concurrently with
// itself or with Lookup, and fails once the registry is sealed.
func (r *Registry) Register(name string, handle domain.BackendHandle) error {
	if r.sealed.Load() {
		return fmt.Errorf("%w: cannot register %q", ErrSealed, name)
	}
	if name == "" {
		return ErrEmptyName
	}
	if handle == nil {
		return fmt.Errorf("%w: %s", ErrNilHandle, name)
	}
	if _, exists := r.handles[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}

	r.handles[name] = handle
	return nil
}

// RegisterAll registers every handle under its own name. Nothing is
// registered if any entry is invalid.
func (r *Registry) RegisterAll(handles []domain.BackendHandle) error {
	if r.sealed.Load() {
		return ErrSealed
	}

	seen := make(map[string]bool, len(handles))
	for i, h := range handles {
		if h == nil {
			return fmt.Errorf("handle at index %d: %w", i, ErrNilHandle)
		}
		name := h.Name()
		if name == "" {
			return fmt.Errorf("handle at index %d: %w", i, ErrEmptyName)
		}
		if _, exists := r.handles[name]; exists || seen[name] {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
		}
		seen[name] = true
	}

	for _, h := range handles {
		r.handles[h.Name()] = h
	}
	return nil
}

// Seal freezes the registry. Calling it more than once is harmless.
func (r *Registry) Seal() {
	if r.sealed.Load() {
		return
	}
	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	sort.Strings(names)
	r.names = names
	r.sealed.Store(true)
}

// Sealed reports whether the registry is frozen
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// Lookup returns the handle registered under name
func (r *Registry) Lookup(name string) (domain.BackendHandle, bool) {
	h, ok := r.handles[name]
	return h, ok
}

// Names returns the registered names in sorted order
func (r *Registry) Names() []string {
	if r.sealed.Load() {
		out := make([]string, len(r.names))
		copy(out, r.names)
		return out
	}
	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered backends
func (r *Registry) Count() int {
	return len(r.handles)
}

// Describe returns a view of every handle in name order
func (r *Registry) Describe() []domain.BackendDescription {
	names := r.Names()
	out := make([]domain.BackendDescription, 0, len(names))
	for _, name := range names {
		out = append(out, r.handles[name].Describe())
	}
	return out
}

// GetStats returns registry statistics
func (r *Registry) GetStats() map[string]interface{} {
	replicas := 0
	for _, h := range r.handles {
		replicas += h.Describe().Replicas
	}
	return map[string]interface{}{
		"total_backends": len(r.handles),
		"total_replicas": replicas,
		"sealed":         r.sealed.Load(),
	}
}
