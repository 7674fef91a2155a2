package core

import (
	"github.com/c360/visualscript/graph"
)

var variableConfig = map[string]graph.ConfigSpec{
	"variableId": {ValueType: strT, Default: ""},
}

// variableValueType is the value type of the configured variable, string when
// the variable does not exist
func variableValueType(cfg graph.Configuration, g *graph.Graph) string {
	if g != nil {
		if v, ok := g.Variable(cfg.String("variableId", "")); ok {
			return v.ValueTypeName
		}
	}
	return strT
}

func variableSockets(base ...graph.SocketSpec) graph.SocketsFunc {
	return func(cfg graph.Configuration, g *graph.Graph) []graph.SocketSpec {
		return append(append([]graph.SocketSpec(nil), base...), graph.Data("value", variableValueType(cfg, g)))
	}
}

func variable(ctx graph.Context) (*graph.Variable, bool) {
	id := ctx.Configuration().String("variableId", "")
	v, ok := ctx.Graph().Variable(id)
	if !ok {
		ctx.Graph().Logger().Warn("Variable not found", "variable", id, "node_id", ctx.Node().ID)
	}
	return v, ok
}

func variableNodes() []*graph.Description {
	return []*graph.Description{
		graph.MakeFunctionNode(graph.FunctionDefinition{
			Meta: graph.Meta{
				TypeName: "variable/get", Category: "Query", Label: "Get",
				Configuration: variableConfig,
			},
			Out: variableSockets(),
			Exec: func(ctx graph.Context) {
				if v, ok := variable(ctx); ok {
					ctx.Write("value", v.Get())
				}
			},
		}),
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta: graph.Meta{
				TypeName: "variable/set", Category: "Action", Label: "Set",
				Configuration: variableConfig,
			},
			In:  variableSockets(graph.Flow("flow")),
			Out: graph.Sockets(graph.Flow("flow")),
			Triggered: func(ctx graph.Context, _ string) {
				if v, ok := variable(ctx); ok {
					v.Set(ctx.Read("value"))
				}
				ctx.Commit("flow")
			},
		}),
		graph.MakeEventNode(graph.EventDefinition{
			Meta: graph.Meta{
				TypeName: "variable/onChanged", Category: "Event", Label: "On Changed",
				Configuration: variableConfig,
			},
			Out:          variableSockets(graph.Flow("flow")),
			InitialState: newSubscription,
			Init: func(ctx graph.Context) {
				v, ok := variable(ctx)
				if !ok {
					return
				}
				graph.StateOf[subscription](ctx).unsubscribe = v.OnChanged.Subscribe(func(v *graph.Variable) {
					ctx.Write("value", v.Get())
					ctx.Commit("flow")
				})
			},
			Dispose: disposeSubscription,
		}),
	}
}
