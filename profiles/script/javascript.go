package script

import (
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/profiles/core"
)

func javascriptNode() *graph.Description {
	return graph.MakeFunctionNode(graph.FunctionDefinition{
		Meta: graph.Meta{
			TypeName:      "script/javascript",
			Category:      "Script",
			Label:         "JavaScript",
			Help:          "Runs a JavaScript function body with parameters a, b, c... and outputs its return value",
			Configuration: scriptConfig("script", "return a + b;"),
		},
		In:  inputSockets,
		Out: resultSocket,
		Exec: func(ctx graph.Context) {
			b := bind(ctx, "JavaScript")
			source := ctx.Configuration().String("script", "return a + b;")
			args := make([]any, len(b.names))
			for i, name := range b.names {
				args[i] = b.env[name]
			}
			out, err := b.host.Call(source, b.names, args, cacheKey(source, b.names, b.vt), b.logger, b.source)
			if err != nil {
				panic(err)
			}
			ctx.Write("result", b.result("JavaScript", out))
		},
	})
}

// Call runs a JavaScript function body with the named parameters bound to args
// and returns the exported return value. console output goes to logger under
// source. Bodies are compiled once per key.
func (h *Host) Call(body string, params []string, args []any, key string, logger core.Logger, source string) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fn, err := h.function(body, params, key)
	if err != nil {
		return nil, err
	}

	h.logger, h.source = logger, source
	defer func() { h.logger, h.source = nil, "" }()

	if h.timeout > 0 {
		timer := time.AfterFunc(h.timeout, func() {
			h.runtime.Interrupt(fmt.Sprintf("script exceeded %s", h.timeout))
		})
		defer func() {
			timer.Stop()
			h.runtime.ClearInterrupt()
		}()
	}

	values := make([]goja.Value, len(args))
	for i, arg := range args {
		values[i] = h.runtime.ToValue(arg)
	}
	out, err := fn(goja.Undefined(), values...)
	if err != nil {
		return nil, errors.WrapInvalid(err, "script", "Call", "run script")
	}
	if goja.IsUndefined(out) || goja.IsNull(out) {
		return nil, nil
	}
	return out.Export(), nil
}

// function compiles body into a callable. Callers hold h.mu.
func (h *Host) function(body string, params []string, key string) (goja.Callable, error) {
	if fn, ok := h.functions.Get(key); ok {
		return fn, nil
	}
	src := "(function(" + strings.Join(params, ", ") + ") {\n" + body + "\n})"
	program, err := goja.Compile(key, src, true)
	if err != nil {
		return nil, errors.WrapInvalid(err, "script", "Call", "compile script")
	}
	v, err := h.runtime.RunProgram(program)
	if err != nil {
		return nil, errors.WrapInvalid(err, "script", "Call", "load script")
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: script did not compile to a function", errors.ErrInvalidData),
			"script", "Call", "load script")
	}
	if _, err := h.functions.Set(key, fn); err != nil {
		return nil, err
	}
	return fn, nil
}
