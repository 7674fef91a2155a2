package values

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/c360/visualscript/errors"
)

// Registry maps value type names to ValueType implementations.
type Registry struct {
	mu    sync.RWMutex
	types map[string]ValueType
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]ValueType)}
}

// Register adds value types. A name that is already present fails with
// ErrDuplicateValueType and leaves the registry unchanged for that type.
func (r *Registry) Register(types ...ValueType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, vt := range types {
		if vt == nil || vt.Name() == "" {
			return errors.WrapFatal(errors.ErrInvalidConfig, "ValueRegistry", "Register", "value type name check")
		}
		if vt.Name() == FlowTypeName {
			return errors.WrapFatal(
				fmt.Errorf("%w: %q is reserved", errors.ErrDuplicateValueType, FlowTypeName),
				"ValueRegistry", "Register", "value type registration")
		}
		if _, exists := r.types[vt.Name()]; exists {
			return errors.WrapFatal(
				fmt.Errorf("%w: %s", errors.ErrDuplicateValueType, vt.Name()),
				"ValueRegistry", "Register", "value type registration")
		}
		r.types[vt.Name()] = vt
	}
	return nil
}

// Get returns the value type registered under name. Unknown names fail with
// ErrUnknownValueType and the list of known names.
func (r *Registry) Get(name string) (ValueType, error) {
	r.mu.RLock()
	vt, ok := r.types[name]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: %q (known: %s)", errors.ErrUnknownValueType, name, strings.Join(r.Names(), ", ")),
			"ValueRegistry", "Get", "value type lookup")
	}
	return vt, nil
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[name]
	return ok
}

// Names returns registered type names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a registry holding the same value types
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clone := NewRegistry()
	for name, vt := range r.types {
		clone.types[name] = vt
	}
	return clone
}
