// Package scene provides the scene profile: vector, quaternion, Euler and color
// value types with their math nodes, and nodes that read, write and animate
// properties of a host scene through the IScene dependency.
package scene

import (
	"fmt"
	"sort"
	"sync"

	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/values"
)

// SceneDependency is the registry id of the Scene dependency
const SceneDependency = "IScene"

// Scene is the host scene the scene nodes operate on. Properties are addressed
// by JSON-pointer style paths such as "nodes/0/translation".
type Scene interface {
	GetProperty(jsonPath, valueTypeName string) (any, error)
	SetProperty(jsonPath, valueTypeName string, value any) error
	// AddOnClickedListener calls fn whenever the object at jsonPath is clicked
	AddOnClickedListener(jsonPath string, fn func(jsonPath string)) (remove func())
	// PropertyPaths lists known paths for editor choices
	PropertyPaths() []string
}

// PropertyChange is emitted by MemoryScene after a property was set
type PropertyChange struct {
	Path          string
	ValueTypeName string
	Value         any
}

type property struct {
	valueTypeName string
	value         any
}

// MemoryScene is an in-memory Scene. It type-checks every access against the
// value type name a property was first stored with.
type MemoryScene struct {
	mu         sync.RWMutex
	properties map[string]property
	clicks     map[string]*graph.Emitter[string]

	// OnPropertyChanged fires after every successful SetProperty
	OnPropertyChanged graph.Emitter[PropertyChange]
}

var _ Scene = (*MemoryScene)(nil)

// NewMemoryScene creates an empty scene
func NewMemoryScene() *MemoryScene {
	return &MemoryScene{
		properties: make(map[string]property),
		clicks:     make(map[string]*graph.Emitter[string]),
	}
}

// GetProperty returns the value stored at jsonPath
func (s *MemoryScene) GetProperty(jsonPath, valueTypeName string) (any, error) {
	s.mu.RLock()
	p, ok := s.properties[jsonPath]
	s.mu.RUnlock()

	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: scene property %s", errors.ErrKeyNotFound, jsonPath),
			"MemoryScene", "GetProperty", "property lookup")
	}
	if p.valueTypeName != valueTypeName {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s holds %s, not %s", errors.ErrInvalidData, jsonPath, p.valueTypeName, valueTypeName),
			"MemoryScene", "GetProperty", "type check")
	}
	return p.value, nil
}

// SetProperty stores value at jsonPath. New paths are created; existing paths
// keep their value type.
func (s *MemoryScene) SetProperty(jsonPath, valueTypeName string, value any) error {
	s.mu.Lock()
	if p, ok := s.properties[jsonPath]; ok && p.valueTypeName != valueTypeName {
		s.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s holds %s, not %s", errors.ErrInvalidData, jsonPath, p.valueTypeName, valueTypeName),
			"MemoryScene", "SetProperty", "type check")
	}
	s.properties[jsonPath] = property{valueTypeName: valueTypeName, value: value}
	s.mu.Unlock()

	s.OnPropertyChanged.Emit(PropertyChange{Path: jsonPath, ValueTypeName: valueTypeName, Value: value})
	return nil
}

// Load deserializes raw property values, keyed by path, through the value types
// in registry. types maps each path to its value type name.
func (s *MemoryScene) Load(registry *values.Registry, types map[string]string, raw map[string]any) error {
	for path, typeName := range types {
		vt, err := registry.Get(typeName)
		if err != nil {
			return errors.Wrap(err, "MemoryScene", "Load", "value type lookup")
		}
		v, err := vt.Deserialize(raw[path])
		if err != nil {
			return errors.Wrap(err, "MemoryScene", "Load", "deserialize "+path)
		}
		if err := s.SetProperty(path, typeName, v); err != nil {
			return err
		}
	}
	return nil
}

// AddOnClickedListener subscribes fn to clicks on jsonPath
func (s *MemoryScene) AddOnClickedListener(jsonPath string, fn func(string)) func() {
	s.mu.Lock()
	e, ok := s.clicks[jsonPath]
	if !ok {
		e = &graph.Emitter[string]{}
		s.clicks[jsonPath] = e
	}
	s.mu.Unlock()
	return e.Subscribe(fn)
}

// Click notifies the click listeners of jsonPath
func (s *MemoryScene) Click(jsonPath string) {
	s.mu.RLock()
	e, ok := s.clicks[jsonPath]
	s.mu.RUnlock()
	if ok {
		e.Emit(jsonPath)
	}
}

// ClickListeners returns the number of listeners on jsonPath
func (s *MemoryScene) ClickListeners(jsonPath string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.clicks[jsonPath]; ok {
		return e.Len()
	}
	return 0
}

// PropertyPaths returns the stored paths, sorted
func (s *MemoryScene) PropertyPaths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.properties))
	for p := range s.properties {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
