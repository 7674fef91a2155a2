package ecsprofile

import (
	"fmt"

	"github.com/c360/visualscript/ecs"
	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/profiles/structs"
	"github.com/c360/visualscript/values"
)

var componentConfig = graph.ConfigSpec{
	ValueType: values.StringTypeName,
	Default:   "",
	Choices:   componentChoices,
}

func mustWorld(ctx graph.Context, method string) *ecs.World {
	w, ok := world(ctx)
	if !ok {
		panic(errors.WrapFatal(
			fmt.Errorf("%w: %s", errors.ErrMissingDependency, WorldDependency),
			"ecsprofile", method, "world lookup"))
	}
	return w
}

func entityInput(ctx graph.Context) ecs.Entity {
	return ecs.Entity(graph.ReadAs[int64](ctx, "entity"))
}

func componentNodes() []*graph.Description {
	return []*graph.Description{
		graph.MakeFunctionNode(graph.FunctionDefinition{
			Meta: graph.Meta{
				TypeName: "ecs/getComponent", Category: "ECS", Label: "Get Component",
				Configuration: map[string]graph.ConfigSpec{"component": componentConfig},
			},
			In: graph.Sockets(graph.Data("entity", values.IntegerTypeName)),
			Out: func(cfg graph.Configuration, _ *graph.Graph) []graph.SocketSpec {
				return []graph.SocketSpec{
					graph.Data("value", structs.ObjectTypeName).WithLabel(cfg.String("component", "")),
					graph.Data("exists", values.BooleanTypeName),
				}
			},
			Exec: func(ctx graph.Context) {
				w := mustWorld(ctx, "GetComponent")
				data, ok := w.GetComponent(entityInput(ctx), ctx.Configuration().String("component", ""))
				if !ok {
					data = map[string]any{}
				}
				ctx.Write("value", data)
				ctx.Write("exists", ok)
			},
		}),
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta: graph.Meta{
				TypeName: "ecs/setComponent", Category: "ECS", Label: "Set Component",
				Configuration: map[string]graph.ConfigSpec{"component": componentConfig},
			},
			In: func(cfg graph.Configuration, _ *graph.Graph) []graph.SocketSpec {
				return []graph.SocketSpec{
					graph.Flow("flow"),
					graph.Data("entity", values.IntegerTypeName),
					graph.Data("value", structs.ObjectTypeName).WithLabel(cfg.String("component", "")),
				}
			},
			Out: graph.Sockets(graph.Flow("flow")),
			Triggered: func(ctx graph.Context, _ string) {
				w := mustWorld(ctx, "SetComponent")
				value := graph.ReadAs[map[string]any](ctx, "value")
				if err := w.SetComponent(entityInput(ctx), ctx.Configuration().String("component", ""), value); err != nil {
					panic(err)
				}
				ctx.Commit("flow")
			},
		}),
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta: graph.Meta{TypeName: "ecs/createEntity", Category: "ECS", Label: "Create Entity"},
			In:   graph.Sockets(graph.Flow("flow")),
			Out:  graph.Sockets(graph.Flow("flow"), graph.Data("entity", values.IntegerTypeName)),
			Triggered: func(ctx graph.Context, _ string) {
				ctx.Write("entity", int64(mustWorld(ctx, "CreateEntity").CreateEntity()))
				ctx.Commit("flow")
			},
		}),
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta: graph.Meta{TypeName: "ecs/removeEntity", Category: "ECS", Label: "Remove Entity"},
			In:   graph.Sockets(graph.Flow("flow"), graph.Data("entity", values.IntegerTypeName)),
			Out:  graph.Sockets(graph.Flow("flow")),
			Triggered: func(ctx graph.Context, _ string) {
				mustWorld(ctx, "RemoveEntity").RemoveEntity(entityInput(ctx))
				ctx.Commit("flow")
			},
		}),
	}
}
