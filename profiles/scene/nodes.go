package scene

import (
	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/profiles/core"
	"github.com/c360/visualscript/values"
)

// PropertyTypes are the value types scene/get and scene/set nodes exist for
var PropertyTypes = []string{
	values.BooleanTypeName,
	values.IntegerTypeName,
	values.FloatTypeName,
	values.StringTypeName,
	Vec2TypeName,
	Vec3TypeName,
	Vec4TypeName,
	QuatTypeName,
	EulerTypeName,
	ColorTypeName,
}

// EaseTypes are the value types scene/ease nodes exist for
var EaseTypes = []string{
	values.FloatTypeName,
	Vec2TypeName,
	Vec3TypeName,
	Vec4TypeName,
	QuatTypeName,
	EulerTypeName,
	ColorTypeName,
}

func sceneOf(ctx graph.Context) (Scene, bool) {
	return graph.Dependency[Scene](ctx.Graph(), SceneDependency)
}

// pathSocket offers the scene's known property paths as choices when the graph's
// registry carries a scene
func pathSocket(g *graph.Graph) graph.SocketSpec {
	spec := graph.Data("jsonPath", values.StringTypeName)
	if g == nil {
		return spec
	}
	s, ok := g.Registry().Dependencies[SceneDependency].(Scene)
	if !ok {
		return spec
	}
	var choices []graph.Choice
	for _, p := range s.PropertyPaths() {
		choices = append(choices, graph.Choice{Text: p, Value: p})
	}
	return spec.WithChoices(choices...)
}

func warn(ctx graph.Context, msg string, err error) {
	ctx.Graph().Logger().Warn(msg,
		"node_id", ctx.Node().ID,
		"node_type", ctx.Node().TypeName(),
		"path", graph.ReadAs[string](ctx, "jsonPath"),
		"error", err)
}

func getNode(valueType string) *graph.Description {
	return graph.MakeFunctionNode(graph.FunctionDefinition{
		Meta: graph.Meta{TypeName: "scene/get/" + valueType, Category: "Query", Label: "Get Scene Property"},
		In: func(_ graph.Configuration, g *graph.Graph) []graph.SocketSpec {
			return []graph.SocketSpec{pathSocket(g)}
		},
		Out: graph.Sockets(graph.Data("value", valueType)),
		Exec: func(ctx graph.Context) {
			s, ok := sceneOf(ctx)
			if !ok {
				return
			}
			v, err := s.GetProperty(graph.ReadAs[string](ctx, "jsonPath"), valueType)
			if err != nil {
				warn(ctx, "Scene property read failed", err)
				return
			}
			ctx.Write("value", v)
		},
	})
}

func setNode(valueType string) *graph.Description {
	return graph.MakeFlowNode(graph.FlowDefinition{
		Meta: graph.Meta{TypeName: "scene/set/" + valueType, Category: "Action", Label: "Set Scene Property"},
		In: func(_ graph.Configuration, g *graph.Graph) []graph.SocketSpec {
			return []graph.SocketSpec{graph.Flow("flow"), pathSocket(g), graph.Data("value", valueType)}
		},
		Out: graph.Sockets(graph.Flow("flow")),
		Triggered: func(ctx graph.Context, _ string) {
			if s, ok := sceneOf(ctx); ok {
				if err := s.SetProperty(graph.ReadAs[string](ctx, "jsonPath"), valueType, ctx.Read("value")); err != nil {
					warn(ctx, "Scene property write failed", err)
				}
			}
			ctx.Commit("flow")
		},
	})
}

// easeState tracks one running ease. duration is -1 while idle.
type easeState struct {
	duration    float64
	elapsed     float64
	unsubscribe func()
	finished    func()
}

func (st *easeState) stop() {
	if st.unsubscribe != nil {
		st.unsubscribe()
		st.unsubscribe = nil
	}
	st.duration, st.elapsed = -1, 0
	if done := st.finished; done != nil {
		st.finished = nil
		done()
	}
}

// easeNode animates a scene property from its current value to value over
// easeDuration seconds, stepping on lifecycle ticks. A trigger while an ease is
// running restarts it from the property's current value.
func easeNode(valueType string) *graph.Description {
	return graph.MakeAsyncNode(graph.AsyncDefinition{
		Meta: graph.Meta{TypeName: "scene/ease/" + valueType, Category: "Action", Label: "Ease Scene Property"},
		In: func(_ graph.Configuration, g *graph.Graph) []graph.SocketSpec {
			specs := []graph.SocketSpec{graph.Flow("flow"), pathSocket(g), graph.Data("value", valueType)}
			specs = append(specs, core.EasingSockets()...)
			return append(specs,
				graph.Data("easeDuration", values.FloatTypeName).WithDefault(1.0),
				graph.Flow("cancel"),
			)
		},
		Out:          graph.Sockets(graph.Flow("flow")),
		InitialState: func() any { return &easeState{duration: -1} },
		Triggered: func(ctx graph.Context, socket string, finished func()) {
			st := graph.StateOf[easeState](ctx)
			st.stop()
			if socket == "cancel" {
				finished()
				return
			}

			s, ok := sceneOf(ctx)
			if !ok {
				finished()
				return
			}
			lifecycle, ok := graph.Dependency[*core.LifecycleEventEmitter](ctx.Graph(), core.LifecycleDependency)
			if !ok {
				finished()
				return
			}
			vt, err := ctx.Graph().Registry().Values.Get(valueType)
			if err != nil {
				warn(ctx, "Scene ease value type missing", err)
				finished()
				return
			}

			path := graph.ReadAs[string](ctx, "jsonPath")
			initial, err := s.GetProperty(path, valueType)
			if err != nil {
				warn(ctx, "Scene property read failed", err)
				finished()
				return
			}
			target := ctx.Read("value")
			function := graph.ReadAs[string](ctx, "easingFunction")
			mode := graph.ReadAs[string](ctx, "easingMode")

			st.duration = graph.ReadAs[float64](ctx, "easeDuration")
			st.finished = finished

			complete := func() {
				done := st.finished
				st.finished = nil
				st.stop()
				ctx.Commit("flow")
				done()
			}
			if st.duration <= 0 {
				if err := s.SetProperty(path, valueType, target); err != nil {
					warn(ctx, "Scene property write failed", err)
				}
				complete()
				return
			}

			st.unsubscribe = lifecycle.TickEvent.Subscribe(func(t core.Tick) {
				st.elapsed += t.DeltaSeconds
				progress := min(st.elapsed/st.duration, 1)
				v, err := vt.Lerp(initial, target, core.Ease(function, mode, progress))
				if err != nil {
					warn(ctx, "Scene ease interpolation failed", err)
					st.stop()
					return
				}
				if err := s.SetProperty(path, valueType, v); err != nil {
					warn(ctx, "Scene property write failed", err)
					st.stop()
					return
				}
				if progress >= 1 {
					complete()
				}
			})
		},
		Dispose: func(ctx graph.Context) {
			graph.StateOf[easeState](ctx).stop()
		},
	})
}

type clickState struct {
	remove func()
}

func nodeClick() *graph.Description {
	return graph.MakeEventNode(graph.EventDefinition{
		Meta: graph.Meta{TypeName: "scene/nodeClick", Category: "Event", Label: "On Node Click"},
		In: func(_ graph.Configuration, g *graph.Graph) []graph.SocketSpec {
			return []graph.SocketSpec{pathSocket(g)}
		},
		Out:          graph.Sockets(graph.Flow("flow")),
		InitialState: func() any { return &clickState{} },
		Init: func(ctx graph.Context) {
			s, ok := sceneOf(ctx)
			if !ok {
				return
			}
			graph.StateOf[clickState](ctx).remove = s.AddOnClickedListener(
				graph.ReadAs[string](ctx, "jsonPath"),
				func(string) { ctx.Commit("flow") },
			)
		},
		Dispose: func(ctx graph.Context) {
			st := graph.StateOf[clickState](ctx)
			if st.remove != nil {
				st.remove()
				st.remove = nil
			}
		},
	})
}

func sceneNodes() []*graph.Description {
	var descs []*graph.Description
	for _, t := range PropertyTypes {
		descs = append(descs, getNode(t), setNode(t))
	}
	for _, t := range EaseTypes {
		descs = append(descs, easeNode(t))
	}
	return append(descs, nodeClick())
}
