// Package profiles composes every visual-script profile into one registry.
package profiles

import (
	"github.com/c360/visualscript/ecs"
	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/profiles/core"
	"github.com/c360/visualscript/profiles/ecsprofile"
	"github.com/c360/visualscript/profiles/scene"
	"github.com/c360/visualscript/profiles/script"
	"github.com/c360/visualscript/profiles/structs"
)

// Options carries per-profile options for RegisterAll
type Options struct {
	Core   []core.Option
	Scene  []scene.Option
	Script []script.Option
	// World backs the ECS profile. Nil creates an empty world.
	World *ecs.World
}

// RegisterAll returns a copy of reg extended with the core, scene, struct, script
// and ECS profiles, in that order
func RegisterAll(reg *graph.Registry, opts Options) (*graph.Registry, error) {
	if reg == nil {
		reg = graph.NewRegistry()
	}
	world := opts.World
	if world == nil {
		world = ecs.NewWorld()
	}

	steps := []struct {
		name     string
		register func(*graph.Registry) (*graph.Registry, error)
	}{
		{"core", func(r *graph.Registry) (*graph.Registry, error) { return core.Register(r, opts.Core...) }},
		{"scene", func(r *graph.Registry) (*graph.Registry, error) { return scene.Register(r, opts.Scene...) }},
		{"structs", structs.Register},
		{"script", func(r *graph.Registry) (*graph.Registry, error) { return script.Register(r, opts.Script...) }},
		{"ecs", func(r *graph.Registry) (*graph.Registry, error) { return ecsprofile.Register(r, world) }},
	}

	out := reg
	for _, step := range steps {
		next, err := step.register(out)
		if err != nil {
			return nil, errors.Wrap(err, "profiles", "RegisterAll", step.name+" profile")
		}
		out = next
	}
	return out, nil
}
