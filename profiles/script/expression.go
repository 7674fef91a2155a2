package script

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/graph"
)

func expressionNode() *graph.Description {
	return graph.MakeFunctionNode(graph.FunctionDefinition{
		Meta: graph.Meta{
			TypeName:      "script/expression",
			Category:      "Script",
			Label:         "Expression",
			Help:          "Evaluates an expr-lang expression over inputs a, b, c...",
			Configuration: scriptConfig("expression", "a + b"),
		},
		In:  inputSockets,
		Out: resultSocket,
		Exec: func(ctx graph.Context) {
			b := bind(ctx, "Expression")
			source := ctx.Configuration().String("expression", "a + b")
			out, err := b.host.Evaluate(source, b.env, cacheKey(source, b.names, b.vt))
			if err != nil {
				panic(err)
			}
			ctx.Write("result", b.result("Expression", out))
		},
	})
}

// Evaluate runs an expr-lang expression against env. Programs are compiled once
// per key; compilation checks identifiers against env.
func (h *Host) Evaluate(source string, env map[string]any, key string) (any, error) {
	program, err := h.program(source, env, key)
	if err != nil {
		return nil, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, errors.WrapInvalid(err, "script", "Evaluate", "run expression")
	}
	return out, nil
}

func (h *Host) program(source string, env map[string]any, key string) (*vm.Program, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.programs.Get(key); ok {
		return p, nil
	}
	p, err := expr.Compile(source, expr.Env(env))
	if err != nil {
		return nil, errors.WrapInvalid(err, "script", "Evaluate", "compile expression")
	}
	if _, err := h.programs.Set(key, p); err != nil {
		return nil, err
	}
	return p, nil
}
