package graph

import (
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/values"
)

// NodeRegistry maps node type names, including alternate names, to descriptions
type NodeRegistry struct {
	mu      sync.RWMutex
	byName  map[string]*Description
	primary map[string]*Description
}

// NewNodeRegistry creates an empty node registry
func NewNodeRegistry() *NodeRegistry {
	return &NodeRegistry{
		byName:  make(map[string]*Description),
		primary: make(map[string]*Description),
	}
}

// Register adds node descriptions. Any name collision, primary or alternate,
// fails with ErrDuplicateNodeType.
func (r *NodeRegistry) Register(descs ...*Description) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range descs {
		if d == nil || d.TypeName == "" {
			return errors.WrapFatal(errors.ErrInvalidConfig, "NodeRegistry", "Register", "node type name check")
		}
		names := append([]string{d.TypeName}, d.OtherTypeNames...)
		for _, name := range names {
			if _, exists := r.byName[name]; exists {
				return errors.WrapFatal(
					fmt.Errorf("%w: %s", errors.ErrDuplicateNodeType, name),
					"NodeRegistry", "Register", "node type registration")
			}
		}
		for _, name := range names {
			r.byName[name] = d
		}
		r.primary[d.TypeName] = d
	}
	return nil
}

// Get looks a description up by primary or alternate name. Unknown names fail with
// ErrUnknownNodeType listing every known type name.
func (r *NodeRegistry) Get(typeName string) (*Description, error) {
	r.mu.RLock()
	d, ok := r.byName[typeName]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: %q (known: %s)", errors.ErrUnknownNodeType, typeName, strings.Join(r.TypeNames(), ", ")),
			"NodeRegistry", "Get", "node type lookup")
	}
	return d, nil
}

// TypeNames returns the sorted primary type names
func (r *NodeRegistry) TypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.primary))
	for name := range r.primary {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptions returns every registered description ordered by type name
func (r *NodeRegistry) Descriptions() []*Description {
	names := r.TypeNames()

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Description, 0, len(names))
	for _, name := range names {
		out = append(out, r.primary[name])
	}
	return out
}

// Clone returns an independent registry with the same descriptions
func (r *NodeRegistry) Clone() *NodeRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &NodeRegistry{
		byName:  maps.Clone(r.byName),
		primary: maps.Clone(r.primary),
	}
}

// Registry bundles everything a graph needs from its host: value types, node types
// and named dependencies handed to node behaviors.
type Registry struct {
	Values       *values.Registry
	Nodes        *NodeRegistry
	Dependencies map[string]any
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		Values:       values.NewRegistry(),
		Nodes:        NewNodeRegistry(),
		Dependencies: make(map[string]any),
	}
}

// Clone returns a registry that can be extended without touching r
func (r *Registry) Clone() *Registry {
	deps := maps.Clone(r.Dependencies)
	if deps == nil {
		deps = make(map[string]any)
	}
	return &Registry{
		Values:       r.Values.Clone(),
		Nodes:        r.Nodes.Clone(),
		Dependencies: deps,
	}
}

// DependencyKeys returns the sorted dependency ids
func (r *Registry) DependencyKeys() []string {
	keys := make([]string, 0, len(r.Dependencies))
	for k := range r.Dependencies {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
