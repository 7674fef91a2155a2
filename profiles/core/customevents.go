package core

import (
	"github.com/c360/visualscript/graph"
)

var customEventConfig = map[string]graph.ConfigSpec{
	"customEventId": {ValueType: strT, Default: ""},
}

// customEventSockets declares one data socket per parameter of the configured
// custom event. Events that do not exist yet contribute no sockets.
func customEventSockets(base ...graph.SocketSpec) graph.SocketsFunc {
	return func(cfg graph.Configuration, g *graph.Graph) []graph.SocketSpec {
		specs := append([]graph.SocketSpec(nil), base...)
		if g == nil {
			return specs
		}
		ce, ok := g.CustomEvent(cfg.String("customEventId", ""))
		if !ok {
			return specs
		}
		for _, p := range ce.Parameters {
			specs = append(specs, graph.Data(p.Name, p.ValueTypeName).WithDefault(p.Value).WithLabel(p.Label))
		}
		return specs
	}
}

func customEventNodes() []*graph.Description {
	return []*graph.Description{
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta: graph.Meta{
				TypeName: "customEvent/trigger", Category: "Action", Label: "Trigger",
				Configuration: customEventConfig,
			},
			In:  customEventSockets(graph.Flow("flow")),
			Out: graph.Sockets(graph.Flow("flow")),
			Triggered: func(ctx graph.Context, _ string) {
				ce := ctx.Graph().EnsureCustomEvent(ctx.Configuration().String("customEventId", ""))
				params := make(map[string]any, len(ce.Parameters))
				for _, p := range ce.Parameters {
					if _, ok := ctx.Node().Input(p.Name); ok {
						params[p.Name] = ctx.Read(p.Name)
					} else {
						params[p.Name] = p.Value
					}
				}
				ce.Trigger(params)
				ctx.Commit("flow")
			},
		}),
		graph.MakeEventNode(graph.EventDefinition{
			Meta: graph.Meta{
				TypeName: "customEvent/onTriggered", Category: "Event", Label: "On Triggered",
				Configuration: customEventConfig,
			},
			Out:          customEventSockets(graph.Flow("flow")),
			InitialState: newSubscription,
			Init: func(ctx graph.Context) {
				ce := ctx.Graph().EnsureCustomEvent(ctx.Configuration().String("customEventId", ""))
				graph.StateOf[subscription](ctx).unsubscribe = ce.EventEmitter.Subscribe(func(params map[string]any) {
					for name, value := range params {
						if out, ok := ctx.Node().Output(name); ok && !out.IsFlow() {
							ctx.Write(name, value)
						}
					}
					ctx.Commit("flow")
				})
			},
			Dispose: disposeSubscription,
		}),
	}
}
