package script

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/visualscript/engine"
	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/profiles/core"
	"github.com/c360/visualscript/values"
)

type logLine struct {
	level, source, text string
}

type recordingLogger struct {
	lines []logLine
}

func (l *recordingLogger) add(level, source, text string) {
	l.lines = append(l.lines, logLine{level, source, text})
}

func (l *recordingLogger) Verbose(source, text string) { l.add("verbose", source, text) }
func (l *recordingLogger) Info(source, text string)    { l.add("info", source, text) }
func (l *recordingLogger) Warn(source, text string)    { l.add("warn", source, text) }
func (l *recordingLogger) Error(source, text string)   { l.add("error", source, text) }

type harness struct {
	t       *testing.T
	logger  *recordingLogger
	graph   *graph.Graph
	source  graph.Context
	records []any
	errors  []*engine.NodeError
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{t: t, logger: &recordingLogger{}}
	reg, err := core.Register(graph.NewRegistry(), core.WithLogger(h.logger))
	require.NoError(t, err)
	reg, err = Register(reg, opts...)
	require.NoError(t, err)
	require.NoError(t, reg.Nodes.Register(
		graph.MakeEventNode(graph.EventDefinition{
			Meta: graph.Meta{TypeName: "test/source"},
			Out:  graph.Sockets(graph.Flow("flow")),
			Init: func(ctx graph.Context) { h.source = ctx },
		}),
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta: graph.Meta{
				TypeName:      "test/record",
				Configuration: map[string]graph.ConfigSpec{"valueType": {ValueType: "string", Default: "float"}},
			},
			In: func(cfg graph.Configuration, _ *graph.Graph) []graph.SocketSpec {
				return []graph.SocketSpec{graph.Flow("flow"), graph.Data("value", cfg.String("valueType", "float"))}
			},
			Triggered: func(ctx graph.Context, _ string) {
				h.records = append(h.records, ctx.Read("value"))
			},
		}),
	))
	h.graph = graph.New(reg)
	return h
}

// evaluate wires src -> record(value <- script) and fires once
func (h *harness) evaluate(typeName string, cfg graph.Configuration, inputs map[string]any) {
	h.t.Helper()
	_, err := h.graph.CreateNode("test/source", "src", nil)
	require.NoError(h.t, err)
	n, err := h.graph.CreateNode(typeName, "script", cfg)
	require.NoError(h.t, err)
	for name, v := range inputs {
		s, ok := n.Input(name)
		require.True(h.t, ok, name)
		s.Value = v
	}
	_, err = h.graph.CreateNode("test/record", "rec", graph.Configuration{"valueType": cfg.String("valueType", "float")})
	require.NoError(h.t, err)
	require.NoError(h.t, h.graph.Connect(graph.Link{NodeID: "src", Socket: "flow"}, graph.Link{NodeID: "rec", Socket: "flow"}))
	require.NoError(h.t, h.graph.Connect(graph.Link{NodeID: "script", Socket: "result"}, graph.Link{NodeID: "rec", Socket: "value"}))

	eng, err := engine.New(h.graph)
	require.NoError(h.t, err)
	eng.OnNodeError.Subscribe(func(ne *engine.NodeError) { h.errors = append(h.errors, ne) })
	eng.Start()
	h.t.Cleanup(eng.Dispose)
	h.source.Commit("flow")
}

func TestInputSockets(t *testing.T) {
	assert.Len(t, inputNames(30), maxInputs)
	assert.Empty(t, inputNames(-1))
	assert.Equal(t, []string{"a", "b", "c"}, inputNames(3))

	h := newHarness(t)
	n, err := h.graph.CreateNode("script/expression", "x", graph.Configuration{
		"numInputs": 3, "valueType": values.IntegerTypeName,
	})
	require.NoError(t, err)
	require.Len(t, n.Inputs, 3)
	for _, s := range n.Inputs {
		assert.Equal(t, values.IntegerTypeName, s.ValueTypeName)
		assert.Equal(t, int64(0), s.Value)
	}
	result, ok := n.Output("result")
	require.True(t, ok)
	assert.Equal(t, values.IntegerTypeName, result.ValueTypeName)
}

func TestExpression(t *testing.T) {
	tests := []struct {
		name   string
		cfg    graph.Configuration
		inputs map[string]any
		want   any
	}{
		{
			name:   "float default",
			cfg:    graph.Configuration{"expression": "a * b + 1"},
			inputs: map[string]any{"a": 2.0, "b": 3.0},
			want:   7.0,
		},
		{
			name:   "integer three inputs",
			cfg:    graph.Configuration{"expression": "a + b * c", "numInputs": 3, "valueType": values.IntegerTypeName},
			inputs: map[string]any{"a": int64(1), "b": int64(2), "c": int64(3)},
			want:   int64(7),
		},
		{
			name:   "string",
			cfg:    graph.Configuration{"expression": `upper(a) + "-" + b`, "valueType": values.StringTypeName},
			inputs: map[string]any{"a": "go", "b": "fast"},
			want:   "GO-fast",
		},
		{
			name:   "boolean",
			cfg:    graph.Configuration{"expression": "a && !b", "valueType": values.BooleanTypeName},
			inputs: map[string]any{"a": true, "b": false},
			want:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.evaluate("script/expression", tt.cfg, tt.inputs)
			require.Empty(t, h.errors)
			assert.Equal(t, []any{tt.want}, h.records)
		})
	}
}

func TestExpression_CompileErrorIsNodeError(t *testing.T) {
	h := newHarness(t)
	h.evaluate("script/expression", graph.Configuration{"expression": "a + missing"}, nil)

	assert.Empty(t, h.records)
	require.Len(t, h.errors, 1)
	assert.Equal(t, "script", h.errors[0].NodeID)
	assert.True(t, errors.IsInvalid(h.errors[0].Cause))
}

func TestJavaScript(t *testing.T) {
	tests := []struct {
		name   string
		cfg    graph.Configuration
		inputs map[string]any
		want   any
	}{
		{
			name:   "float",
			cfg:    graph.Configuration{"script": "return Math.max(a, b) * 2;"},
			inputs: map[string]any{"a": 2.0, "b": 5.0},
			want:   10.0,
		},
		{
			name:   "string",
			cfg:    graph.Configuration{"script": "return a.toUpperCase() + b;", "valueType": values.StringTypeName},
			inputs: map[string]any{"a": "js", "b": "!"},
			want:   "JS!",
		},
		{
			name:   "no return gives zero value",
			cfg:    graph.Configuration{"script": "var x = a;", "valueType": values.IntegerTypeName},
			inputs: map[string]any{"a": int64(4)},
			want:   int64(0),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.evaluate("script/javascript", tt.cfg, tt.inputs)
			require.Empty(t, h.errors)
			assert.Equal(t, []any{tt.want}, h.records)
		})
	}
}

func TestJavaScript_ConsoleGoesToLogger(t *testing.T) {
	h := newHarness(t)
	h.evaluate("script/javascript", graph.Configuration{
		"script": `console.log("sum", a + b); console.warn("careful"); return a + b;`,
	}, map[string]any{"a": 1.5, "b": 1.0})

	assert.Equal(t, []any{2.5}, h.records)
	assert.Equal(t, []logLine{
		{"info", "script/javascript#script", "sum 2.5"},
		{"warn", "script/javascript#script", "careful"},
	}, h.logger.lines)
}

func TestJavaScript_Failures(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"syntax error", "return (;"},
		{"thrown", `throw new Error("boom");`},
		{"runaway loop", "while (true) {}"},
		{"wrong result type", `return "not a number";`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, WithTimeout(20*time.Millisecond))
			h.evaluate("script/javascript", graph.Configuration{"script": tt.script}, nil)
			assert.Empty(t, h.records)
			require.Len(t, h.errors, 1)
			assert.Equal(t, "script/javascript", h.errors[0].NodeType)
		})
	}
}

func TestHost_CachesPrograms(t *testing.T) {
	host := NewHost()
	env := map[string]any{"a": 1.0, "b": 2.0}
	for range 3 {
		out, err := host.Evaluate("a + b", env, "k")
		require.NoError(t, err)
		assert.Equal(t, 3.0, out)
	}
	expressions, _ := host.CacheStats()
	assert.Equal(t, int64(1), expressions.Size)
	assert.Equal(t, int64(2), expressions.Hits)

	for range 2 {
		out, err := host.Call("return a - b;", []string{"a", "b"}, []any{5.0, 2.0}, "j", nil, "")
		require.NoError(t, err)
		assert.EqualValues(t, 3, out)
	}
	_, scripts := host.CacheStats()
	assert.Equal(t, int64(1), scripts.Size)

	_, err := host.Evaluate("a +", env, "broken")
	require.Error(t, err)
	assert.False(t, stderrors.Is(err, errors.ErrKeyNotFound))
	assert.Equal(t, 1, host.programs.Len(), "failed compilations are not cached")
}

func TestHost_CacheIsBounded(t *testing.T) {
	host := NewHost(WithCacheSize(2))
	env := map[string]any{"a": 1.0, "b": 2.0}
	for _, src := range []string{"a + b", "a - b", "a * b", "a + b"} {
		_, err := host.Evaluate(src, env, src)
		require.NoError(t, err)
	}
	expressions, _ := host.CacheStats()
	assert.Equal(t, int64(2), expressions.Size)
	assert.Equal(t, int64(2), expressions.Evictions, "a + b was evicted and compiled again")
	assert.Zero(t, expressions.Hits)
}
