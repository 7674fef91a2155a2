package scene

import (
	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/values"
)

// Option configures the scene profile
type Option func(*options)

type options struct {
	scene Scene
}

// WithScene sets the IScene dependency. Defaults to an empty MemoryScene.
func WithScene(s Scene) Option {
	return func(o *options) { o.scene = s }
}

// Register returns a copy of reg extended with the scene value types, nodes and
// the IScene dependency. Scene nodes use the core value types, which are added
// when missing. Scene ease nodes also need the core lifecycle dependency.
func Register(reg *graph.Registry, opts ...Option) (*graph.Registry, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.scene == nil {
		o.scene = NewMemoryScene()
	}

	out := reg.Clone()
	for _, vt := range append(values.Core(), ValueTypes()...) {
		if out.Values.Has(vt.Name()) {
			continue
		}
		if err := out.Values.Register(vt); err != nil {
			return nil, errors.Wrap(err, "scene", "Register", "value types")
		}
	}
	if err := out.Nodes.Register(Nodes()...); err != nil {
		return nil, errors.Wrap(err, "scene", "Register", "node descriptions")
	}
	out.Dependencies[SceneDependency] = o.scene
	return out, nil
}

// Nodes returns every scene node description
func Nodes() []*graph.Description {
	return append(mathNodes(), sceneNodes()...)
}
