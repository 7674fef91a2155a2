// Package ecsprofile binds visual scripts to an ecs.World. Its event nodes
// register a query and a system when the engine initializes them and remove both
// on dispose; its flow and function nodes read and write component data as
// objects.
package ecsprofile

import (
	"strings"

	"github.com/c360/visualscript/ecs"
	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/profiles/structs"
	"github.com/c360/visualscript/values"
)

// WorldDependency is the dependency id of the ecs.World
const WorldDependency = "IWorld"

// Query modes of ecs/onQuery
const (
	ModeEnter = "enter"
	ModeExit  = "exit"
	ModeEach  = "each"
)

// Register returns a copy of reg extended with the ECS nodes and world as the
// IWorld dependency. Core and struct value types are added when missing.
func Register(reg *graph.Registry, world *ecs.World) (*graph.Registry, error) {
	if world == nil {
		return nil, errors.WrapFatal(errors.ErrMissingDependency, "ecsprofile", "Register", "world check")
	}
	out := reg.Clone()
	for _, vt := range append(values.Core(), structs.ValueTypes()...) {
		if out.Values.Has(vt.Name()) {
			continue
		}
		if err := out.Values.Register(vt); err != nil {
			return nil, errors.Wrap(err, "ecsprofile", "Register", "value types")
		}
	}
	if err := out.Nodes.Register(Nodes()...); err != nil {
		return nil, errors.Wrap(err, "ecsprofile", "Register", "node descriptions")
	}
	out.Dependencies[WorldDependency] = world
	return out, nil
}

// Nodes returns every ECS node description
func Nodes() []*graph.Description {
	return append(eventNodes(), componentNodes()...)
}

// worldOf reads the world without logging, for socket factories that may run
// before dependencies are wired
func worldOf(g *graph.Graph) *ecs.World {
	if g == nil {
		return nil
	}
	w, _ := g.Registry().Dependencies[WorldDependency].(*ecs.World)
	return w
}

func world(ctx graph.Context) (*ecs.World, bool) {
	return graph.Dependency[*ecs.World](ctx.Graph(), WorldDependency)
}

// components reads config components as a list or a comma separated string
func components(cfg graph.Configuration) []string {
	raw := cfg.Strings("components", nil)
	var out []string
	for _, item := range raw {
		for _, name := range strings.Split(item, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

func componentChoices(g *graph.Graph) []graph.Choice {
	w := worldOf(g)
	if w == nil {
		return nil
	}
	names := w.ComponentNames()
	choices := make([]graph.Choice, len(names))
	for i, name := range names {
		choices[i] = graph.Choice{Text: name, Value: name}
	}
	return choices
}
