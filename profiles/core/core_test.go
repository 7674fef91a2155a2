package core

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/visualscript/engine"
	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/pkg/clock"
	"github.com/c360/visualscript/values"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type recordingLogger struct {
	entries []string
}

func (l *recordingLogger) add(level, source, text string) {
	l.entries = append(l.entries, fmt.Sprintf("%s %s %s", level, source, text))
}

func (l *recordingLogger) Verbose(source, text string) { l.add("VERBOSE", source, text) }
func (l *recordingLogger) Info(source, text string)    { l.add("INFO", source, text) }
func (l *recordingLogger) Warn(source, text string)    { l.add("WARN", source, text) }
func (l *recordingLogger) Error(source, text string)   { l.add("ERROR", source, text) }

type record struct {
	node  string
	value any
	at    time.Duration
}

// harness runs core nodes on a real engine with a fake clock. test/source nodes
// commit flow on demand; test/record nodes capture what reaches them.
type harness struct {
	t         *testing.T
	clock     *clock.Fake
	lifecycle *LifecycleEventEmitter
	logs      *recordingLogger
	graph     *graph.Graph
	engine    *engine.Engine
	sources   map[string]graph.Context
	records   []record
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		clock:     clock.NewFake(epoch),
		lifecycle: NewLifecycleEventEmitter(),
		logs:      &recordingLogger{},
		sources:   make(map[string]graph.Context),
	}
	opts = append([]Option{WithScheduler(h.clock), WithLogger(h.logs), WithLifecycle(h.lifecycle)}, opts...)
	reg, err := Register(graph.NewRegistry(), opts...)
	require.NoError(t, err)
	require.NoError(t, reg.Nodes.Register(
		graph.MakeEventNode(graph.EventDefinition{
			Meta: graph.Meta{TypeName: "test/source"},
			Out:  graph.Sockets(graph.Flow("flow")),
			Init: func(ctx graph.Context) { h.sources[ctx.Node().ID] = ctx },
		}),
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta: graph.Meta{
				TypeName:      "test/record",
				Configuration: map[string]graph.ConfigSpec{"valueType": {ValueType: strT, Default: strT}},
			},
			In: func(cfg graph.Configuration, _ *graph.Graph) []graph.SocketSpec {
				return []graph.SocketSpec{graph.Flow("flow"), graph.Data("value", cfg.String("valueType", strT))}
			},
			Triggered: func(ctx graph.Context, _ string) {
				h.records = append(h.records, record{
					node:  ctx.Node().ID,
					value: ctx.Read("value"),
					at:    h.clock.Now().Sub(epoch),
				})
			},
		}),
	))
	h.graph = graph.New(reg, graph.WithName("core-test"))
	return h
}

func (h *harness) node(typeName, id string, cfg graph.Configuration) *graph.Node {
	h.t.Helper()
	n, err := h.graph.CreateNode(typeName, id, cfg)
	require.NoError(h.t, err)
	return n
}

func (h *harness) recorder(id, valueType string) *graph.Node {
	return h.node("test/record", id, graph.Configuration{"valueType": valueType})
}

func (h *harness) set(nodeID, input string, value any) {
	h.t.Helper()
	n, ok := h.graph.Node(nodeID)
	require.True(h.t, ok)
	s, ok := n.Input(input)
	require.True(h.t, ok, "input %s", input)
	s.Value = value
}

func (h *harness) link(fromID, output, toID, input string) {
	h.t.Helper()
	require.NoError(h.t, h.graph.Connect(
		graph.Link{NodeID: fromID, Socket: output},
		graph.Link{NodeID: toID, Socket: input},
	))
}

func (h *harness) start() {
	h.t.Helper()
	eng, err := engine.New(h.graph)
	require.NoError(h.t, err)
	eng.Start()
	h.engine = eng
	h.t.Cleanup(eng.Dispose)
}

func (h *harness) fire(sourceID string) {
	h.t.Helper()
	ctx, ok := h.sources[sourceID]
	require.True(h.t, ok, "source %s not initialized", sourceID)
	ctx.Commit("flow")
}

func (h *harness) recordedBy(nodeID string) []record {
	var out []record
	for _, r := range h.records {
		if r.node == nodeID {
			out = append(out, r)
		}
	}
	return out
}

func TestRegister(t *testing.T) {
	base := graph.NewRegistry()
	reg, err := Register(base)
	require.NoError(t, err)

	assert.Empty(t, base.Nodes.TypeNames(), "input registry is left untouched")
	for _, name := range []string{values.BooleanTypeName, values.IntegerTypeName, values.FloatTypeName, values.StringTypeName} {
		assert.True(t, reg.Values.Has(name), name)
	}
	assert.Contains(t, reg.Dependencies, LoggerDependency)
	assert.Contains(t, reg.Dependencies, LifecycleDependency)
	assert.NotContains(t, reg.Dependencies, SchedulerDependency)

	_, err = Register(reg)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrDuplicateNodeType))
	assert.True(t, errors.IsFatal(err))
}

func TestEveryNodeMaterializesDataInputs(t *testing.T) {
	reg, err := Register(graph.NewRegistry())
	require.NoError(t, err)
	g := graph.New(reg)

	for _, typeName := range reg.Nodes.TypeNames() {
		n, err := g.CreateNode(typeName, typeName, nil)
		require.NoError(t, err, typeName)
		for _, in := range n.Inputs {
			if !in.IsFlow() {
				assert.NotNil(t, in.Value, "%s.%s", typeName, in.Name)
			}
		}
	}
}

func TestDebounce_CommitsOnceAfterQuietPeriod(t *testing.T) {
	h := newHarness(t)
	h.node("lifecycle/onTick", "tick", nil)
	h.node("flow/debounce", "debounce", nil)
	h.recorder("out", strT)
	h.set("debounce", "waitDuration", 0.1)
	h.link("tick", "flow", "debounce", "flow")
	h.link("debounce", "flow", "out", "flow")
	h.start()

	h.lifecycle.TickAt(h.clock.Now())
	h.clock.Advance(50 * time.Millisecond)
	h.lifecycle.TickAt(h.clock.Now())
	h.clock.Advance(30 * time.Millisecond)
	h.lifecycle.TickAt(h.clock.Now())

	h.clock.Advance(99 * time.Millisecond)
	assert.Empty(t, h.records, "no commit at 0.1s or 0.15s")

	h.clock.Advance(time.Millisecond)
	require.Len(t, h.records, 1)
	assert.Equal(t, 180*time.Millisecond, h.records[0].at)

	h.clock.Advance(time.Second)
	assert.Len(t, h.records, 1)
	assert.Equal(t, 0, h.engine.AsyncPending(), "every trigger finished exactly once")
	assert.Equal(t, 0, h.clock.Pending())
}

func TestDebounce_Cancel(t *testing.T) {
	h := newHarness(t)
	h.node("test/source", "go", nil)
	h.node("test/source", "stop", nil)
	h.node("flow/debounce", "debounce", nil)
	h.recorder("out", strT)
	h.link("go", "flow", "debounce", "flow")
	h.link("stop", "flow", "debounce", "cancel")
	h.link("debounce", "flow", "out", "flow")
	h.start()

	h.fire("go")
	h.fire("stop")
	h.clock.Advance(time.Second)
	assert.Empty(t, h.records)
	assert.Equal(t, 0, h.engine.AsyncPending())
}

func TestWaitAll(t *testing.T) {
	setup := func(t *testing.T, autoReset bool) *harness {
		h := newHarness(t)
		h.node("test/source", "s1", nil)
		h.node("test/source", "s2", nil)
		h.node("flow/waitAll", "wait", graph.Configuration{"numInputs": 2})
		h.recorder("out", strT)
		h.set("wait", "autoReset", autoReset)
		h.link("s1", "flow", "wait", "1")
		h.link("s2", "flow", "wait", "2")
		h.link("wait", "flow", "out", "flow")
		h.start()
		return h
	}

	t.Run("fires once when every input was entered", func(t *testing.T) {
		h := setup(t, false)
		h.fire("s1")
		h.fire("s1")
		assert.Empty(t, h.records, "repeated input counts once")
		h.fire("s2")
		assert.Len(t, h.records, 1)

		h.fire("s1")
		h.fire("s2")
		assert.Len(t, h.records, 1, "stays silent until reset")
	})

	t.Run("auto reset", func(t *testing.T) {
		h := setup(t, true)
		h.fire("s1")
		h.fire("s2")
		h.fire("s1")
		h.fire("s2")
		assert.Len(t, h.records, 2)
	})

	t.Run("reset input", func(t *testing.T) {
		h := newHarness(t)
		h.node("test/source", "s1", nil)
		h.node("test/source", "s2", nil)
		h.node("test/source", "reset", nil)
		h.node("flow/waitAll", "wait", graph.Configuration{"numInputs": 2})
		h.recorder("out", strT)
		h.link("s1", "flow", "wait", "1")
		h.link("s2", "flow", "wait", "2")
		h.link("reset", "flow", "wait", "reset")
		h.link("wait", "flow", "out", "flow")
		h.start()

		h.fire("s1")
		h.fire("reset")
		h.fire("s2")
		assert.Empty(t, h.records)
		h.fire("s1")
		assert.Len(t, h.records, 1)
	})
}

func TestCustomEvent_ParametersReachListenersInOrder(t *testing.T) {
	h := newHarness(t)
	_, err := h.graph.CreateCustomEvent("ce", "hit", []graph.SocketSpec{
		graph.Data("param0", floatT),
		graph.Data("param1", strT),
	})
	require.NoError(t, err)

	cfg := graph.Configuration{"customEventId": "ce"}
	h.node("test/source", "src", nil)
	h.node("customEvent/trigger", "trigger", cfg)
	h.node("customEvent/onTriggered", "first", cfg)
	h.node("customEvent/onTriggered", "second", cfg)
	h.recorder("recFirst", floatT)
	h.recorder("recSecond", strT)
	h.set("trigger", "param0", 3.0)
	h.set("trigger", "param1", "hi")
	h.link("src", "flow", "trigger", "flow")
	h.link("first", "flow", "recFirst", "flow")
	h.link("first", "param0", "recFirst", "value")
	h.link("second", "flow", "recSecond", "flow")
	h.link("second", "param1", "recSecond", "value")

	var observed []map[string]any
	ce, _ := h.graph.CustomEvent("ce")
	unsubscribe := ce.EventEmitter.Subscribe(func(params map[string]any) {
		observed = append(observed, params)
	})
	defer unsubscribe()

	h.start()
	h.fire("src")

	assert.Equal(t, []map[string]any{{"param0": 3.0, "param1": "hi"}}, observed)
	require.Len(t, h.records, 2)
	assert.Equal(t, record{node: "recFirst", value: 3.0}, h.records[0])
	assert.Equal(t, record{node: "recSecond", value: "hi"}, h.records[1])
}

func TestCustomEvent_TwoTriggersInOneBurstKeepTheirParameters(t *testing.T) {
	h := newHarness(t)
	_, err := h.graph.CreateCustomEvent("ce", "hit", []graph.SocketSpec{graph.Data("param0", floatT)})
	require.NoError(t, err)

	cfg := graph.Configuration{"customEventId": "ce"}
	h.node("test/source", "src", nil)
	h.node("flow/sequence", "seq", graph.Configuration{"numOutputs": 2})
	h.node("customEvent/trigger", "first", cfg)
	h.node("customEvent/trigger", "second", cfg)
	h.node("customEvent/onTriggered", "listener", cfg)
	h.recorder("rec", floatT)
	h.set("first", "param0", 1.0)
	h.set("second", "param0", 2.0)
	h.link("src", "flow", "seq", "flow")
	h.link("seq", "1", "first", "flow")
	h.link("seq", "2", "second", "flow")
	h.link("listener", "flow", "rec", "flow")
	h.link("listener", "param0", "rec", "value")
	h.start()

	h.fire("src")

	var got []any
	for _, r := range h.recordedBy("rec") {
		got = append(got, r.value)
	}
	assert.Equal(t, []any{1.0, 2.0}, got)
}

func TestCustomEvent_ReconfiguredListenerFollowsNewEvent(t *testing.T) {
	h := newHarness(t)
	a, err := h.graph.CreateCustomEvent("a", "a", nil)
	require.NoError(t, err)
	b, err := h.graph.CreateCustomEvent("b", "b", nil)
	require.NoError(t, err)

	h.node("customEvent/onTriggered", "listener", graph.Configuration{"customEventId": "a"})
	h.recorder("rec", strT)
	h.link("listener", "flow", "rec", "flow")
	h.start()
	require.Equal(t, 1, a.EventEmitter.Len())

	require.NoError(t, h.graph.Reconfigure("listener", graph.Configuration{"customEventId": "b"}))
	assert.Equal(t, 0, a.EventEmitter.Len())
	assert.Equal(t, 1, b.EventEmitter.Len())

	a.Trigger(map[string]any{})
	assert.Empty(t, h.records)
	b.Trigger(map[string]any{})
	assert.Len(t, h.records, 1)
}

func TestCustomEvent_CreatedOnDemand(t *testing.T) {
	h := newHarness(t)
	cfg := graph.Configuration{"customEventId": "late"}
	h.node("test/source", "src", nil)
	h.node("customEvent/trigger", "trigger", cfg)
	h.node("customEvent/onTriggered", "listener", cfg)
	h.recorder("rec", strT)
	h.link("src", "flow", "trigger", "flow")
	h.link("listener", "flow", "rec", "flow")
	h.start()

	_, ok := h.graph.CustomEvent("late")
	assert.True(t, ok)
	h.fire("src")
	assert.Len(t, h.records, 1)
}

func TestLifecycleNodes(t *testing.T) {
	h := newHarness(t)
	h.node("lifecycle/onStart", "start", nil)
	h.node("lifecycle/onTick", "tick", nil)
	h.node("lifecycle/onEnd", "end", nil)
	h.recorder("recStart", strT)
	h.recorder("recTick", floatT)
	h.recorder("recEnd", strT)
	h.link("start", "flow", "recStart", "flow")
	h.link("tick", "flow", "recTick", "flow")
	h.link("tick", "deltaSeconds", "recTick", "value")
	h.link("end", "flow", "recEnd", "flow")
	h.start()

	h.lifecycle.Start(epoch)
	h.lifecycle.TickAt(epoch.Add(250 * time.Millisecond))
	h.lifecycle.End()

	require.Len(t, h.recordedBy("recStart"), 1)
	require.Len(t, h.recordedBy("recEnd"), 1)
	ticks := h.recordedBy("recTick")
	require.Len(t, ticks, 1)
	assert.InDelta(t, 0.25, ticks[0].value, 1e-9)

	h.engine.Dispose()
	assert.Equal(t, 0, h.lifecycle.TickEvent.Len(), "dispose releases subscriptions")
	h.lifecycle.TickAt(epoch.Add(time.Second))
	assert.Len(t, h.recordedBy("recTick"), 1)
}

func TestVariables(t *testing.T) {
	h := newHarness(t)
	_, err := h.graph.CreateVariable("v", "score", intT, int64(0))
	require.NoError(t, err)

	cfg := graph.Configuration{"variableId": "v"}
	h.node("test/source", "src", nil)
	h.node("variable/get", "get", cfg)
	h.node("math/add/integer", "add", nil)
	h.node("variable/set", "set", cfg)
	h.node("variable/onChanged", "changed", cfg)
	h.recorder("rec", intT)
	h.set("add", "b", int64(1))
	h.link("get", "value", "add", "a")
	h.link("add", "result", "set", "value")
	h.link("src", "flow", "set", "flow")
	h.link("changed", "flow", "rec", "flow")
	h.link("changed", "value", "rec", "value")
	h.start()

	for range 3 {
		h.fire("src")
	}

	var got []any
	for _, r := range h.records {
		got = append(got, r.value)
	}
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, got)

	v, _ := h.graph.Variable("v")
	assert.Equal(t, int64(3), v.Get())
	assert.Equal(t, 3, v.Version)
}

func TestForLoop_RunsBodyBeforeNextIteration(t *testing.T) {
	h := newHarness(t)
	h.node("test/source", "src", nil)
	h.node("flow/forLoop", "loop", nil)
	h.recorder("body", intT)
	h.recorder("done", strT)
	h.set("loop", "startIndex", int64(0))
	h.set("loop", "endIndex", int64(3))
	h.link("src", "flow", "loop", "flow")
	h.link("loop", "loopBody", "body", "flow")
	h.link("loop", "index", "body", "value")
	h.link("loop", "completed", "done", "flow")
	h.start()

	h.fire("src")

	var order []string
	for _, r := range h.records {
		order = append(order, fmt.Sprintf("%s:%v", r.node, r.value))
	}
	assert.Equal(t, []string{"body:0", "body:1", "body:2", "done:"}, order)
}

func TestSequence_CommitsOutputsInOrder(t *testing.T) {
	h := newHarness(t)
	h.node("test/source", "src", nil)
	seq := h.node("flow/sequence", "seq", graph.Configuration{"numOutputs": 3})
	require.Len(t, seq.Outputs, 3)
	h.link("src", "flow", "seq", "flow")
	for _, name := range []string{"3", "1", "2"} {
		h.recorder("r"+name, strT)
		h.link("seq", name, "r"+name, "flow")
	}
	h.start()

	h.fire("src")

	var order []string
	for _, r := range h.records {
		order = append(order, r.node)
	}
	assert.Equal(t, []string{"r1", "r2", "r3"}, order)
}

func TestDelay(t *testing.T) {
	build := func(t *testing.T) *harness {
		h := newHarness(t)
		h.node("test/source", "go", nil)
		h.node("test/source", "stop", nil)
		h.node("time/delay", "delay", nil)
		h.recorder("out", strT)
		h.set("delay", "duration", 0.5)
		h.link("go", "flow", "delay", "flow")
		h.link("stop", "flow", "delay", "cancel")
		h.link("delay", "flow", "out", "flow")
		h.start()
		return h
	}

	t.Run("commits after duration", func(t *testing.T) {
		h := build(t)
		h.fire("go")
		assert.Equal(t, 1, h.engine.AsyncPending())
		h.clock.Advance(499 * time.Millisecond)
		assert.Empty(t, h.records)
		h.clock.Advance(time.Millisecond)
		require.Len(t, h.records, 1)
		assert.Equal(t, 500*time.Millisecond, h.records[0].at)
		assert.Equal(t, 0, h.engine.AsyncPending())
	})

	t.Run("cancel drops pending commits", func(t *testing.T) {
		h := build(t)
		h.fire("go")
		h.fire("go")
		h.fire("stop")
		h.clock.Advance(time.Second)
		assert.Empty(t, h.records)
		assert.Equal(t, 0, h.engine.AsyncPending())
		assert.Equal(t, 0, h.clock.Pending())
	})

	t.Run("dispose stops timers", func(t *testing.T) {
		h := build(t)
		h.fire("go")
		h.engine.Dispose()
		h.clock.Advance(time.Second)
		assert.Empty(t, h.records)
		assert.Equal(t, 0, h.clock.Pending())
	})
}

func TestThrottle(t *testing.T) {
	h := newHarness(t)
	h.node("test/source", "src", nil)
	h.node("flow/throttle", "throttle", nil)
	h.recorder("out", strT)
	h.link("src", "flow", "throttle", "flow")
	h.link("throttle", "flow", "out", "flow")
	h.start()

	h.fire("src")
	h.clock.Advance(500 * time.Millisecond)
	h.fire("src")
	assert.Len(t, h.records, 1, "trigger inside the window is dropped")

	h.clock.Advance(500 * time.Millisecond)
	h.fire("src")
	require.Len(t, h.records, 2)
	assert.Equal(t, time.Second, h.records[1].at)
	assert.Equal(t, 1, h.engine.AsyncPending())

	h.clock.Advance(time.Second)
	assert.Equal(t, 0, h.engine.AsyncPending())
}

func TestTimeNodesWithoutScheduler(t *testing.T) {
	h := newHarness(t)
	delete(h.graph.Registry().Dependencies, SchedulerDependency)
	h.node("test/source", "src", nil)
	h.node("time/delay", "delay", nil)
	h.recorder("out", strT)
	h.link("src", "flow", "delay", "flow")
	h.link("delay", "flow", "out", "flow")
	h.start()

	h.fire("src")
	assert.Empty(t, h.records)
	assert.Equal(t, 0, h.engine.AsyncPending())
}

func TestDebugLog(t *testing.T) {
	h := newHarness(t)
	h.node("test/source", "src", nil)
	logNode := h.node("debug/log", "log", nil)
	logNode.Label = "greeter"
	h.node("debug/log", "plain", nil)
	h.node("debug/expectTrue", "check", nil)
	h.set("log", "text", "hello")
	h.set("log", "severity", SeverityWarning)
	h.set("check", "description", "score positive")
	h.link("src", "flow", "log", "flow")
	h.link("log", "flow", "plain", "flow")
	h.link("plain", "flow", "check", "flow")
	h.start()

	h.fire("src")

	assert.Equal(t, []string{
		"WARN greeter hello",
		"INFO debug/log#plain ",
		"ERROR debug/expectTrue#check assertion failed: score positive",
	}, h.logs.entries)
}
