package core

import (
	"strconv"

	"github.com/c360/visualscript/graph"
)

func numbered(prefix string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = prefix + strconv.Itoa(i+1)
	}
	return names
}

func numberedFlows(n int) []graph.SocketSpec {
	specs := make([]graph.SocketSpec, 0, n)
	for _, name := range numbered("", n) {
		specs = append(specs, graph.Flow(name))
	}
	return specs
}

func outputCount(key string, def int) graph.SocketsFunc {
	return func(cfg graph.Configuration, _ *graph.Graph) []graph.SocketSpec {
		return numberedFlows(max(cfg.Int(key, def), 1))
	}
}

type counterState struct {
	count int64
}

type flipFlopState struct {
	on bool
}

type gateState struct {
	initialized bool
	closed      bool
}

type multiGateState struct {
	next     int
	started  bool
	finished bool
}

type waitAllState struct {
	triggered map[string]bool
	fired     bool
}

func flowControlNodes() []*graph.Description {
	return []*graph.Description{
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta: graph.Meta{TypeName: "flow/branch", Category: "Flow", Label: "Branch"},
			In:   graph.Sockets(graph.Flow("flow"), graph.Data("condition", boolT)),
			Out:  graph.Sockets(graph.Flow("true"), graph.Flow("false")),
			Triggered: func(ctx graph.Context, _ string) {
				if graph.ReadAs[bool](ctx, "condition") {
					ctx.Commit("true")
				} else {
					ctx.Commit("false")
				}
			},
		}),
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta: graph.Meta{
				TypeName: "flow/sequence", Category: "Flow", Label: "Sequence",
				Configuration: map[string]graph.ConfigSpec{"numOutputs": {ValueType: intT, Default: 2}},
			},
			In:  graph.Sockets(graph.Flow("flow")),
			Out: outputCount("numOutputs", 2),
			Triggered: func(ctx graph.Context, _ string) {
				for _, out := range ctx.Node().Outputs {
					ctx.Commit(out.Name)
				}
			},
		}),
		forLoop(),
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta:         graph.Meta{TypeName: "flow/flipFlop", Category: "Flow", Label: "Flip Flop"},
			In:           graph.Sockets(graph.Flow("flow")),
			Out:          graph.Sockets(graph.Flow("on"), graph.Flow("off"), graph.Data("isOn", boolT)),
			InitialState: func() any { return &flipFlopState{} },
			Triggered: func(ctx graph.Context, _ string) {
				st := graph.StateOf[flipFlopState](ctx)
				st.on = !st.on
				ctx.Write("isOn", st.on)
				if st.on {
					ctx.Commit("on")
				} else {
					ctx.Commit("off")
				}
			},
		}),
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta:         graph.Meta{TypeName: "flow/doOnce", Category: "Flow", Label: "Do Once"},
			In:           graph.Sockets(graph.Flow("flow"), graph.Flow("reset")),
			Out:          graph.Sockets(graph.Flow("flow")),
			InitialState: func() any { return &counterState{} },
			Triggered: func(ctx graph.Context, socket string) {
				st := graph.StateOf[counterState](ctx)
				if socket == "reset" {
					st.count = 0
					return
				}
				if st.count == 0 {
					st.count = 1
					ctx.Commit("flow")
				}
			},
		}),
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta: graph.Meta{TypeName: "flow/doN", Category: "Flow", Label: "Do N"},
			In: graph.Sockets(
				graph.Flow("flow"),
				graph.Data("n", intT).WithDefault(int64(1)),
				graph.Flow("reset"),
			),
			Out:          graph.Sockets(graph.Flow("flow"), graph.Data("count", intT)),
			InitialState: func() any { return &counterState{} },
			Triggered: func(ctx graph.Context, socket string) {
				st := graph.StateOf[counterState](ctx)
				if socket == "reset" {
					st.count = 0
					return
				}
				if st.count < graph.ReadAs[int64](ctx, "n") {
					st.count++
					ctx.Write("count", st.count)
					ctx.Commit("flow")
				}
			},
		}),
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta: graph.Meta{TypeName: "flow/gate", Category: "Flow", Label: "Gate"},
			In: graph.Sockets(
				graph.Flow("flow"),
				graph.Flow("open"),
				graph.Flow("close"),
				graph.Flow("toggle"),
				graph.Data("startClosed", boolT),
			),
			Out:          graph.Sockets(graph.Flow("flow")),
			InitialState: func() any { return &gateState{} },
			Triggered: func(ctx graph.Context, socket string) {
				st := graph.StateOf[gateState](ctx)
				if !st.initialized {
					st.initialized = true
					st.closed = graph.ReadAs[bool](ctx, "startClosed")
				}
				switch socket {
				case "open":
					st.closed = false
				case "close":
					st.closed = true
				case "toggle":
					st.closed = !st.closed
				case "flow":
					if !st.closed {
						ctx.Commit("flow")
					}
				}
			},
		}),
		multiGate(),
		waitAll(),
		switchNode("flow/switch/integer", intT, func(ctx graph.Context, c string) bool {
			return graph.ReadAs[int64](ctx, "selection") == graph.ReadAs[int64](ctx, c)
		}),
		switchNode("flow/switch/string", strT, func(ctx graph.Context, c string) bool {
			return graph.ReadAs[string](ctx, "selection") == graph.ReadAs[string](ctx, c)
		}),
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta:         graph.Meta{TypeName: "flow/counter", Category: "Flow", Label: "Counter"},
			In:           graph.Sockets(graph.Flow("flow"), graph.Flow("reset")),
			Out:          graph.Sockets(graph.Flow("flow"), graph.Data("count", intT)),
			InitialState: func() any { return &counterState{} },
			Triggered: func(ctx graph.Context, socket string) {
				st := graph.StateOf[counterState](ctx)
				if socket == "reset" {
					st.count = 0
					ctx.Write("count", st.count)
					return
				}
				st.count++
				ctx.Write("count", st.count)
				ctx.Commit("flow")
			},
		}),
	}
}

// forLoop runs loopBody once per index in [startIndex, endIndex), entering the
// next iteration only after the previous body completed
func forLoop() *graph.Description {
	return graph.MakeFlowNode(graph.FlowDefinition{
		Meta: graph.Meta{TypeName: "flow/forLoop", Category: "Flow", Label: "For Loop"},
		In: graph.Sockets(
			graph.Flow("flow"),
			graph.Data("startIndex", intT),
			graph.Data("endIndex", intT).WithDefault(int64(10)),
		),
		Out: graph.Sockets(
			graph.Flow("loopBody"),
			graph.Data("index", intT),
			graph.Flow("completed"),
		),
		Triggered: func(ctx graph.Context, _ string) {
			end := graph.ReadAs[int64](ctx, "endIndex")
			var iterate func(int64)
			iterate = func(index int64) {
				if index >= end {
					ctx.Commit("completed")
					return
				}
				ctx.Write("index", index)
				ctx.CommitThen("loopBody", func() { iterate(index + 1) })
			}
			iterate(graph.ReadAs[int64](ctx, "startIndex"))
		},
	})
}

// multiGate routes successive triggers to outputs 1..n in turn. With loop set it
// wraps around, otherwise it stops after the last output until reset.
func multiGate() *graph.Description {
	return graph.MakeFlowNode(graph.FlowDefinition{
		Meta: graph.Meta{
			TypeName: "flow/multiGate", Category: "Flow", Label: "Multi Gate",
			Configuration: map[string]graph.ConfigSpec{"numOutputs": {ValueType: intT, Default: 2}},
		},
		In: graph.Sockets(
			graph.Flow("flow"),
			graph.Flow("reset"),
			graph.Data("loop", boolT).WithDefault(true),
			graph.Data("startIndex", intT),
		),
		Out:          outputCount("numOutputs", 2),
		InitialState: func() any { return &multiGateState{} },
		Triggered: func(ctx graph.Context, socket string) {
			st := graph.StateOf[multiGateState](ctx)
			outputs := ctx.Node().Outputs
			if socket == "reset" {
				*st = multiGateState{}
				return
			}
			if !st.started {
				st.started = true
				st.next = int(min(max(graph.ReadAs[int64](ctx, "startIndex"), 0), int64(len(outputs)-1)))
			}
			if st.finished {
				return
			}
			current := st.next
			st.next++
			if st.next >= len(outputs) {
				if graph.ReadAs[bool](ctx, "loop") {
					st.next = 0
				} else {
					st.finished = true
				}
			}
			ctx.Commit(outputs[current].Name)
		},
	})
}

// waitAll commits flow once every numbered input has been entered. Repeated
// triggers of one input count once. After firing it stays silent until reset,
// unless autoReset clears it immediately.
func waitAll() *graph.Description {
	return graph.MakeFlowNode(graph.FlowDefinition{
		Meta: graph.Meta{
			TypeName: "flow/waitAll", Category: "Flow", Label: "Wait All",
			Configuration: map[string]graph.ConfigSpec{"numInputs": {ValueType: intT, Default: 3}},
		},
		In: func(cfg graph.Configuration, _ *graph.Graph) []graph.SocketSpec {
			specs := numberedFlows(max(cfg.Int("numInputs", 3), 1))
			return append(specs, graph.Flow("reset"), graph.Data("autoReset", boolT))
		},
		Out:          graph.Sockets(graph.Flow("flow")),
		InitialState: func() any { return &waitAllState{triggered: make(map[string]bool)} },
		Triggered: func(ctx graph.Context, socket string) {
			st := graph.StateOf[waitAllState](ctx)
			if socket == "reset" {
				clear(st.triggered)
				st.fired = false
				return
			}
			if st.fired {
				return
			}
			st.triggered[socket] = true

			n := ctx.Configuration().Int("numInputs", 3)
			for _, name := range numbered("", max(n, 1)) {
				if !st.triggered[name] {
					return
				}
			}
			if graph.ReadAs[bool](ctx, "autoReset") {
				clear(st.triggered)
			} else {
				st.fired = true
			}
			ctx.Commit("flow")
		},
	})
}

// switchNode commits the output of the first case whose value matches selection,
// or default when none does
func switchNode(typeName, valueType string, matches func(ctx graph.Context, caseInput string) bool) *graph.Description {
	return graph.MakeFlowNode(graph.FlowDefinition{
		Meta: graph.Meta{
			TypeName: typeName, Category: "Flow", Label: "Switch",
			Configuration: map[string]graph.ConfigSpec{"numCases": {ValueType: intT, Default: 3}},
		},
		In: func(cfg graph.Configuration, _ *graph.Graph) []graph.SocketSpec {
			specs := []graph.SocketSpec{graph.Flow("flow"), graph.Data("selection", valueType)}
			for _, name := range numbered("case", max(cfg.Int("numCases", 3), 0)) {
				specs = append(specs, graph.Data(name, valueType))
			}
			return specs
		},
		Out: func(cfg graph.Configuration, _ *graph.Graph) []graph.SocketSpec {
			return append([]graph.SocketSpec{graph.Flow("default")}, numberedFlows(max(cfg.Int("numCases", 3), 0))...)
		},
		Triggered: func(ctx graph.Context, _ string) {
			n := max(ctx.Configuration().Int("numCases", 3), 0)
			for idx, name := range numbered("case", n) {
				if matches(ctx, name) {
					ctx.Commit(strconv.Itoa(idx + 1))
					return
				}
			}
			ctx.Commit("default")
		},
	})
}
