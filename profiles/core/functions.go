package core

import (
	"github.com/c360/visualscript/graph"
)

// Function node builders shared by profiles. Inputs are named a, b and c; the
// single output is result.

// Nullary declares a function node without inputs
func Nullary[R any](typeName, category, outType string, fn func() R) *graph.Description {
	return graph.MakeFunctionNode(graph.FunctionDefinition{
		Meta: graph.Meta{TypeName: typeName, Category: category},
		Out:  graph.Sockets(graph.Data("result", outType)),
		Exec: func(ctx graph.Context) {
			ctx.Write("result", fn())
		},
	})
}

// Unary declares a one-input function node
func Unary[A, R any](typeName, category, aType, outType string, fn func(A) R) *graph.Description {
	return graph.MakeFunctionNode(graph.FunctionDefinition{
		Meta: graph.Meta{TypeName: typeName, Category: category},
		In:   graph.Sockets(graph.Data("a", aType)),
		Out:  graph.Sockets(graph.Data("result", outType)),
		Exec: func(ctx graph.Context) {
			ctx.Write("result", fn(graph.ReadAs[A](ctx, "a")))
		},
	})
}

// Binary declares a two-input function node
func Binary[A, B, R any](typeName, category, aType, bType, outType string, fn func(A, B) R) *graph.Description {
	return graph.MakeFunctionNode(graph.FunctionDefinition{
		Meta: graph.Meta{TypeName: typeName, Category: category},
		In:   graph.Sockets(graph.Data("a", aType), graph.Data("b", bType)),
		Out:  graph.Sockets(graph.Data("result", outType)),
		Exec: func(ctx graph.Context) {
			ctx.Write("result", fn(graph.ReadAs[A](ctx, "a"), graph.ReadAs[B](ctx, "b")))
		},
	})
}

// Ternary declares a three-input function node
func Ternary[A, B, C, R any](typeName, category, aType, bType, cType, outType string, fn func(A, B, C) R) *graph.Description {
	return graph.MakeFunctionNode(graph.FunctionDefinition{
		Meta: graph.Meta{TypeName: typeName, Category: category},
		In:   graph.Sockets(graph.Data("a", aType), graph.Data("b", bType), graph.Data("c", cType)),
		Out:  graph.Sockets(graph.Data("result", outType)),
		Exec: func(ctx graph.Context) {
			ctx.Write("result", fn(
				graph.ReadAs[A](ctx, "a"),
				graph.ReadAs[B](ctx, "b"),
				graph.ReadAs[C](ctx, "c"),
			))
		},
	})
}

// Constant declares a typed literal node passing input a through
func Constant(typeName, valueType string) *graph.Description {
	return graph.MakeFunctionNode(graph.FunctionDefinition{
		Meta: graph.Meta{TypeName: typeName, Category: "Constant"},
		In:   graph.Sockets(graph.Data("a", valueType)),
		Out:  graph.Sockets(graph.Data("result", valueType)),
		Exec: func(ctx graph.Context) {
			ctx.Write("result", ctx.Read("a"))
		},
	})
}
