package ecsprofile

import (
	"slices"

	"github.com/c360/visualscript/ecs"
	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/values"
)

// registration is the query and system an event node owns between init and
// dispose
type registration struct {
	world    *ecs.World
	query    *ecs.Query
	system   *ecs.System
	previous []ecs.Entity
}

func newRegistration() any { return &registration{} }

func (r *registration) release() {
	if r.world == nil {
		return
	}
	if r.system != nil {
		r.world.RemoveSystem(r.system)
	}
	if r.query != nil {
		r.world.RemoveQuery(r.query)
	}
	*r = registration{}
}

func disposeRegistration(ctx graph.Context) {
	graph.StateOf[registration](ctx).release()
}

func systemGroup(cfg graph.Configuration) string {
	return cfg.String("systemGroup", ecs.SimulationGroup)
}

// register defines the node's query and installs fn as its system. Failures are
// logged on the graph logger and leave the node inert.
func register(ctx graph.Context, fn func(r *registration, frame ecs.Frame)) {
	w, ok := world(ctx)
	if !ok {
		return
	}
	r := graph.StateOf[registration](ctx)
	r.world = w

	logger := ctx.Graph().Logger()
	q, err := w.DefineQuery(components(ctx.Configuration())...)
	if err != nil {
		logger.Error("ECS query registration failed", "node_id", ctx.Node().ID, "error", err)
		r.release()
		return
	}
	r.query = q

	name := ctx.Node().TypeName() + "#" + ctx.Node().ID
	s, err := w.AddSystem(systemGroup(ctx.Configuration()), name, func(frame ecs.Frame) { fn(r, frame) })
	if err != nil {
		logger.Error("ECS system registration failed", "node_id", ctx.Node().ID, "error", err)
		r.release()
		return
	}
	r.system = s
}

var groupConfig = graph.ConfigSpec{
	ValueType: values.StringTypeName,
	Default:   ecs.SimulationGroup,
	Choices: func(g *graph.Graph) []graph.Choice {
		groups := []string{ecs.InputGroup, ecs.SimulationGroup, ecs.PresentationGroup}
		if w := worldOf(g); w != nil {
			groups = w.Groups()
		}
		choices := make([]graph.Choice, len(groups))
		for i, group := range groups {
			choices[i] = graph.Choice{Text: group, Value: group}
		}
		return choices
	},
}

var componentsConfig = graph.ConfigSpec{
	ValueType: "list",
	Default:   []string{},
	Choices:   componentChoices,
}

// diff returns the entities of next missing from prev. Both are sorted.
func diff(next, prev []ecs.Entity) []ecs.Entity {
	var out []ecs.Entity
	for _, e := range next {
		if _, found := slices.BinarySearch(prev, e); !found {
			out = append(out, e)
		}
	}
	return out
}

func eventNodes() []*graph.Description {
	return []*graph.Description{
		graph.MakeEventNode(graph.EventDefinition{
			Meta: graph.Meta{
				TypeName: "ecs/onExecute", Category: "Event", Label: "On Execute",
				Help:          "Fires once per world execution in the configured system group",
				Configuration: map[string]graph.ConfigSpec{"systemGroup": groupConfig},
			},
			Out: graph.Sockets(
				graph.Flow("flow"),
				graph.Data("deltaSeconds", values.FloatTypeName),
				graph.Data("elapsedSeconds", values.FloatTypeName),
			),
			InitialState: newRegistration,
			Init: func(ctx graph.Context) {
				register(ctx, func(_ *registration, frame ecs.Frame) {
					ctx.Write("deltaSeconds", frame.DeltaSeconds)
					ctx.Write("elapsedSeconds", frame.Elapsed)
					ctx.Commit("flow")
				})
			},
			Dispose: disposeRegistration,
		}),
		graph.MakeEventNode(graph.EventDefinition{
			Meta: graph.Meta{
				TypeName: "ecs/onQuery", Category: "Event", Label: "On Query",
				Help: "Fires per entity that entered, exited or matches the component query",
				Configuration: map[string]graph.ConfigSpec{
					"components":  componentsConfig,
					"systemGroup": groupConfig,
					"mode": {
						ValueType: values.StringTypeName,
						Default:   ModeEach,
						Choices: func(*graph.Graph) []graph.Choice {
							return []graph.Choice{
								{Text: "Enter", Value: ModeEnter},
								{Text: "Exit", Value: ModeExit},
								{Text: "Each", Value: ModeEach},
							}
						},
					},
				},
			},
			Out: graph.Sockets(
				graph.Flow("flow"),
				graph.Data("entity", values.IntegerTypeName),
			),
			InitialState: newRegistration,
			Init: func(ctx graph.Context) {
				mode := ctx.Configuration().String("mode", ModeEach)
				register(ctx, func(r *registration, _ ecs.Frame) {
					current := r.query.Entities()
					var fire []ecs.Entity
					switch mode {
					case ModeEnter:
						fire = diff(current, r.previous)
					case ModeExit:
						fire = diff(r.previous, current)
					default:
						fire = current
					}
					r.previous = current
					for _, e := range fire {
						ctx.Write("entity", int64(e))
						ctx.Commit("flow")
					}
				})
			},
			Dispose: disposeRegistration,
		}),
		graph.MakeEventNode(graph.EventDefinition{
			Meta: graph.Meta{
				TypeName: "ecs/onCollision", Category: "Event", Label: "On Collision",
				Help: "Fires per collision reported for an entity matching the component query",
				Configuration: map[string]graph.ConfigSpec{
					"components":  componentsConfig,
					"systemGroup": groupConfig,
				},
			},
			Out: graph.Sockets(
				graph.Flow("flow"),
				graph.Data("entity", values.IntegerTypeName),
				graph.Data("other", values.IntegerTypeName),
			),
			InitialState: newRegistration,
			Init: func(ctx graph.Context) {
				register(ctx, func(r *registration, _ ecs.Frame) {
					for _, e := range r.query.Entities() {
						for _, other := range r.world.Collisions(e) {
							ctx.Write("entity", int64(e))
							ctx.Write("other", int64(other))
							ctx.Commit("flow")
						}
					}
				})
			},
			Dispose: disposeRegistration,
		}),
	}
}
