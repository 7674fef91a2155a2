package structs

import (
	"maps"
	"slices"

	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/values"
)

// valueTypeConfig selects the element type of typed struct nodes
var valueTypeConfig = map[string]graph.ConfigSpec{
	"valueType": {ValueType: values.StringTypeName, Default: values.StringTypeName},
}

func elementType(cfg graph.Configuration) string {
	return cfg.String("valueType", values.StringTypeName)
}

// element converts a raw element to the configured value type, falling back to
// the type's zero value
func element(ctx graph.Context, raw any) any {
	vt, err := ctx.Graph().Registry().Values.Get(elementType(ctx.Configuration()))
	if err != nil {
		return raw
	}
	v, err := vt.Deserialize(raw)
	if err != nil {
		return vt.Creator()
	}
	return v
}

// Nodes returns every struct node description
func Nodes() []*graph.Description {
	return []*graph.Description{
		graph.MakeFunctionNode(graph.FunctionDefinition{
			Meta: graph.Meta{TypeName: "struct/list/constant", Category: "Constant", Label: "List"},
			In:   graph.Sockets(graph.Data("a", ListTypeName)),
			Out:  graph.Sockets(graph.Data("result", ListTypeName)),
			Exec: func(ctx graph.Context) { ctx.Write("result", ctx.Read("a")) },
		}),
		graph.MakeFunctionNode(graph.FunctionDefinition{
			Meta: graph.Meta{TypeName: "struct/list/length", Category: "Struct", Label: "Length"},
			In:   graph.Sockets(graph.Data("list", ListTypeName)),
			Out:  graph.Sockets(graph.Data("result", values.IntegerTypeName)),
			Exec: func(ctx graph.Context) {
				ctx.Write("result", int64(len(graph.ReadAs[[]any](ctx, "list"))))
			},
		}),
		graph.MakeFunctionNode(graph.FunctionDefinition{
			Meta: graph.Meta{
				TypeName: "struct/list/get", Category: "Struct", Label: "Get Element",
				Configuration: valueTypeConfig,
			},
			In: graph.Sockets(graph.Data("list", ListTypeName), graph.Data("index", values.IntegerTypeName)),
			Out: func(cfg graph.Configuration, _ *graph.Graph) []graph.SocketSpec {
				return []graph.SocketSpec{graph.Data("result", elementType(cfg))}
			},
			Exec: func(ctx graph.Context) {
				list := graph.ReadAs[[]any](ctx, "list")
				index := graph.ReadAs[int64](ctx, "index")
				var raw any
				if index >= 0 && index < int64(len(list)) {
					raw = list[index]
				}
				ctx.Write("result", element(ctx, raw))
			},
		}),
		graph.MakeFunctionNode(graph.FunctionDefinition{
			Meta: graph.Meta{
				TypeName: "struct/list/append", Category: "Struct", Label: "Append",
				Configuration: valueTypeConfig,
			},
			In: func(cfg graph.Configuration, _ *graph.Graph) []graph.SocketSpec {
				return []graph.SocketSpec{graph.Data("list", ListTypeName), graph.Data("value", elementType(cfg))}
			},
			Out: graph.Sockets(graph.Data("result", ListTypeName)),
			Exec: func(ctx graph.Context) {
				list := slices.Clone(graph.ReadAs[[]any](ctx, "list"))
				ctx.Write("result", append(list, serialize(ctx, ctx.Read("value"))))
			},
		}),
		graph.MakeFunctionNode(graph.FunctionDefinition{
			Meta: graph.Meta{TypeName: "struct/object/constant", Category: "Constant", Label: "Object"},
			In:   graph.Sockets(graph.Data("a", ObjectTypeName)),
			Out:  graph.Sockets(graph.Data("result", ObjectTypeName)),
			Exec: func(ctx graph.Context) { ctx.Write("result", ctx.Read("a")) },
		}),
		graph.MakeFunctionNode(graph.FunctionDefinition{
			Meta: graph.Meta{
				TypeName: "struct/object/get", Category: "Struct", Label: "Get Property",
				Configuration: valueTypeConfig,
			},
			In: graph.Sockets(graph.Data("object", ObjectTypeName), graph.Data("key", values.StringTypeName)),
			Out: func(cfg graph.Configuration, _ *graph.Graph) []graph.SocketSpec {
				return []graph.SocketSpec{graph.Data("result", elementType(cfg))}
			},
			Exec: func(ctx graph.Context) {
				obj := graph.ReadAs[map[string]any](ctx, "object")
				ctx.Write("result", element(ctx, obj[graph.ReadAs[string](ctx, "key")]))
			},
		}),
		graph.MakeFunctionNode(graph.FunctionDefinition{
			Meta: graph.Meta{
				TypeName: "struct/object/set", Category: "Struct", Label: "Set Property",
				Configuration: valueTypeConfig,
			},
			In: func(cfg graph.Configuration, _ *graph.Graph) []graph.SocketSpec {
				return []graph.SocketSpec{
					graph.Data("object", ObjectTypeName),
					graph.Data("key", values.StringTypeName),
					graph.Data("value", elementType(cfg)),
				}
			},
			Out: graph.Sockets(graph.Data("result", ObjectTypeName)),
			Exec: func(ctx graph.Context) {
				obj := maps.Clone(graph.ReadAs[map[string]any](ctx, "object"))
				if obj == nil {
					obj = map[string]any{}
				}
				obj[graph.ReadAs[string](ctx, "key")] = serialize(ctx, ctx.Read("value"))
				ctx.Write("result", obj)
			},
		}),
		graph.MakeFunctionNode(graph.FunctionDefinition{
			Meta: graph.Meta{TypeName: "struct/object/keys", Category: "Struct", Label: "Keys"},
			In:   graph.Sockets(graph.Data("object", ObjectTypeName)),
			Out:  graph.Sockets(graph.Data("result", ListTypeName)),
			Exec: func(ctx graph.Context) {
				keys := slices.Sorted(maps.Keys(graph.ReadAs[map[string]any](ctx, "object")))
				out := make([]any, len(keys))
				for i, k := range keys {
					out[i] = k
				}
				ctx.Write("result", out)
			},
		}),
		forEach(),
	}
}

// serialize stores typed values in their JSON shape so lists and objects stay
// JSON-shaped
func serialize(ctx graph.Context, v any) any {
	vt, err := ctx.Graph().Registry().Values.Get(elementType(ctx.Configuration()))
	if err != nil {
		return v
	}
	return vt.Serialize(v)
}

// forEach runs loopBody once per list element, entering the next element only
// after the previous body completed
func forEach() *graph.Description {
	return graph.MakeFlowNode(graph.FlowDefinition{
		Meta: graph.Meta{
			TypeName: "flow/forEach", Category: "Flow", Label: "For Each",
			Configuration: valueTypeConfig,
		},
		In: graph.Sockets(graph.Flow("flow"), graph.Data("list", ListTypeName)),
		Out: func(cfg graph.Configuration, _ *graph.Graph) []graph.SocketSpec {
			return []graph.SocketSpec{
				graph.Flow("loopBody"),
				graph.Data("element", elementType(cfg)),
				graph.Data("index", values.IntegerTypeName),
				graph.Flow("completed"),
			}
		},
		Triggered: func(ctx graph.Context, _ string) {
			list := graph.ReadAs[[]any](ctx, "list")
			var iterate func(int)
			iterate = func(i int) {
				if i >= len(list) {
					ctx.Commit("completed")
					return
				}
				ctx.Write("element", element(ctx, list[i]))
				ctx.Write("index", int64(i))
				ctx.CommitThen("loopBody", func() { iterate(i + 1) })
			}
			iterate(0)
		},
	})
}
