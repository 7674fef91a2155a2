package engine

import (
	"bytes"
	stderrors "errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/metric"
	"github.com/c360/visualscript/values"
)

type eventState struct {
	ctx      graph.Context
	disposed int
}

type asyncState struct {
	finished []func()
	disposed int
}

type recordedError struct {
	source string
	text   string
}

type fakeLogger struct {
	errors []recordedError
}

func (l *fakeLogger) Error(source, text string) {
	l.errors = append(l.errors, recordedError{source: source, text: text})
}

type EngineSuite struct {
	suite.Suite
	reg       *graph.Registry
	g         *graph.Graph
	logs      *bytes.Buffer
	trace     []string
	addExecs  int
	completed []string
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.trace = nil
	s.completed = nil
	s.addExecs = 0
	s.logs = &bytes.Buffer{}

	reg := graph.NewRegistry()
	s.Require().NoError(reg.Values.Register(values.Core()...))
	s.Require().NoError(reg.Nodes.Register(
		graph.MakeEventNode(graph.EventDefinition{
			Meta:         graph.Meta{TypeName: "test/start"},
			Out:          graph.Sockets(graph.Flow("flow")),
			InitialState: func() any { return &eventState{} },
			Init: func(ctx graph.Context) {
				graph.StateOf[eventState](ctx).ctx = ctx
			},
			Dispose: func(ctx graph.Context) {
				graph.StateOf[eventState](ctx).disposed++
			},
		}),
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta: graph.Meta{TypeName: "test/record"},
			In: graph.Sockets(
				graph.Flow("flow"),
				graph.Data("text", values.StringTypeName),
				graph.Data("number", values.FloatTypeName),
			),
			Out: graph.Sockets(graph.Flow("flow")),
			Triggered: func(ctx graph.Context, _ string) {
				text := graph.ReadAs[string](ctx, "text")
				if text == "" {
					text = ctx.Node().ID
				}
				s.trace = append(s.trace, text)
				_ = ctx.Read("number")
				ctx.Commit("flow")
			},
		}),
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta: graph.Meta{TypeName: "test/sequence"},
			In:   graph.Sockets(graph.Flow("flow")),
			Out:  graph.Sockets(graph.Flow("1"), graph.Flow("2")),
			Triggered: func(ctx graph.Context, _ string) {
				ctx.Commit("1")
				ctx.Commit("2")
			},
		}),
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta: graph.Meta{TypeName: "test/then"},
			In:   graph.Sockets(graph.Flow("flow")),
			Out:  graph.Sockets(graph.Flow("body"), graph.Flow("completed")),
			Triggered: func(ctx graph.Context, _ string) {
				ctx.CommitThen("body", func() {
					s.completed = append(s.completed, ctx.Node().ID)
					ctx.Commit("completed")
				})
			},
		}),
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta: graph.Meta{TypeName: "test/panic"},
			In:   graph.Sockets(graph.Flow("flow")),
			Out:  graph.Sockets(graph.Flow("flow")),
			Triggered: func(graph.Context, string) {
				panic("boom")
			},
		}),
		graph.MakeAsyncNode(graph.AsyncDefinition{
			Meta:         graph.Meta{TypeName: "test/wait"},
			In:           graph.Sockets(graph.Flow("flow")),
			Out:          graph.Sockets(graph.Flow("flow")),
			InitialState: func() any { return &asyncState{} },
			Triggered: func(ctx graph.Context, _ string, finished func()) {
				st := graph.StateOf[asyncState](ctx)
				st.finished = append(st.finished, func() {
					finished()
					ctx.Commit("flow")
				})
			},
			Dispose: func(ctx graph.Context) {
				graph.StateOf[asyncState](ctx).disposed++
			},
		}),
		graph.MakeFunctionNode(graph.FunctionDefinition{
			Meta: graph.Meta{TypeName: "test/add"},
			In:   graph.Sockets(graph.Data("a", values.FloatTypeName), graph.Data("b", values.FloatTypeName)),
			Out:  graph.Sockets(graph.Data("result", values.FloatTypeName)),
			Exec: func(ctx graph.Context) {
				s.addExecs++
				ctx.Write("result", graph.ReadAs[float64](ctx, "a")+graph.ReadAs[float64](ctx, "b"))
			},
		}),
		graph.MakeFunctionNode(graph.FunctionDefinition{
			Meta: graph.Meta{TypeName: "test/commitFromFunction"},
			Out:  graph.Sockets(graph.Data("result", values.FloatTypeName)),
			Exec: func(ctx graph.Context) {
				ctx.Commit("flow")
			},
		}),
	))
	s.reg = reg
	s.g = graph.New(reg, graph.WithName("test"),
		graph.WithLogger(slog.New(slog.NewTextHandler(s.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))))
}

func (s *EngineSuite) node(typeName, id string) *graph.Node {
	n, err := s.g.CreateNode(typeName, id, nil)
	s.Require().NoError(err)
	return n
}

func (s *EngineSuite) connect(fromNode, fromSocket, toNode, toSocket string) {
	s.Require().NoError(s.g.Connect(
		graph.Link{NodeID: fromNode, Socket: fromSocket},
		graph.Link{NodeID: toNode, Socket: toSocket},
	))
}

func (s *EngineSuite) fire(id string) {
	n, ok := s.g.Node(id)
	s.Require().True(ok)
	n.State.(*eventState).ctx.Commit("flow")
}

func (s *EngineSuite) start(opts ...Option) *Engine {
	eng, err := New(s.g, opts...)
	s.Require().NoError(err)
	eng.Start()
	return eng
}

func (s *EngineSuite) TestFanOutIsDepthFirst() {
	s.node("test/start", "start")
	s.node("test/sequence", "seq")
	s.node("test/record", "B")
	s.node("test/record", "C")
	s.node("test/record", "D")
	s.connect("start", "flow", "seq", "flow")
	s.connect("seq", "1", "B", "flow")
	s.connect("B", "flow", "D", "flow")
	s.connect("seq", "2", "C", "flow")

	eng := s.start()
	s.fire("start")

	s.Equal([]string{"B", "D", "C"}, s.trace)
	s.False(eng.Pending())
}

func (s *EngineSuite) TestMultipleLinksOnOneOutputRunInLinkOrder() {
	s.node("test/start", "start")
	s.node("test/record", "first")
	s.node("test/record", "second")
	s.node("test/record", "nested")
	s.connect("start", "flow", "first", "flow")
	s.connect("start", "flow", "second", "flow")
	s.connect("first", "flow", "nested", "flow")

	s.start()
	s.fire("start")

	s.Equal([]string{"first", "nested", "second"}, s.trace)
}

func (s *EngineSuite) TestCommitThenRunsAfterBodyCompletes() {
	s.node("test/start", "start")
	s.node("test/then", "then")
	s.node("test/record", "body1")
	s.node("test/record", "body2")
	s.node("test/record", "after")
	s.connect("start", "flow", "then", "flow")
	s.connect("then", "body", "body1", "flow")
	s.connect("body1", "flow", "body2", "flow")
	s.connect("then", "completed", "after", "flow")

	s.start()
	s.fire("start")

	s.Equal([]string{"body1", "body2", "after"}, s.trace)
	s.Equal([]string{"then"}, s.completed)
}

func (s *EngineSuite) TestCommitThenWithoutLinksStillCompletes() {
	s.node("test/start", "start")
	s.node("test/then", "then")
	s.node("test/record", "after")
	s.connect("start", "flow", "then", "flow")
	s.connect("then", "completed", "after", "flow")

	s.start()
	s.fire("start")

	s.Equal([]string{"after"}, s.trace)
}

func (s *EngineSuite) TestFunctionNodesEvaluateLazily() {
	s.node("test/start", "start")
	add := s.node("test/add", "add")
	s.node("test/record", "rec")
	s.connect("start", "flow", "rec", "flow")
	s.connect("add", "result", "rec", "number")

	a, _ := add.Input("a")
	b, _ := add.Input("b")
	a.Value, b.Value = 2.0, 3.0

	s.start()
	s.Equal(0, s.addExecs, "function nodes must not run before a read")

	s.fire("start")
	s.Equal(1, s.addExecs)

	rec, _ := s.g.Node("rec")
	number, _ := rec.Input("number")
	s.Equal(5.0, number.Value)

	a.Value = 10.0
	s.fire("start")
	s.Equal(2, s.addExecs)
	s.Equal(13.0, number.Value)
}

func (s *EngineSuite) TestChainedFunctionNodes() {
	s.node("test/start", "start")
	inner := s.node("test/add", "inner")
	s.node("test/add", "outer")
	s.node("test/record", "rec")
	s.connect("start", "flow", "rec", "flow")
	s.connect("inner", "result", "outer", "a")
	s.connect("outer", "result", "rec", "number")

	a, _ := inner.Input("a")
	a.Value = 4.0
	outer, _ := s.g.Node("outer")
	b, _ := outer.Input("b")
	b.Value = 1.0

	s.start()
	s.fire("start")

	rec, _ := s.g.Node("rec")
	number, _ := rec.Input("number")
	s.Equal(5.0, number.Value)
	s.Equal(2, s.addExecs)
}

func (s *EngineSuite) TestStepLimitDiscardsQueue() {
	s.node("test/start", "start")
	s.node("test/record", "loop")
	s.connect("start", "flow", "loop", "flow")
	s.connect("loop", "flow", "loop", "flow")

	registry := metric.NewMetricsRegistry()
	eng := s.start(WithMaxSteps(50), WithMetrics(registry))
	s.fire("start")

	s.False(eng.Pending())
	s.Contains(s.logs.String(), "exceeded step limit")
	s.Len(s.trace, 50, "every step re-enters the loop node")
	s.Equal(1.0, testutil.ToFloat64(eng.metrics.stepLimitExceeded))
}

func (s *EngineSuite) TestExecuteAllSyncReturnsStepLimitError() {
	s.node("test/start", "start")
	s.node("test/record", "loop")
	s.connect("start", "flow", "loop", "flow")
	s.connect("loop", "flow", "loop", "flow")

	eng, err := New(s.g)
	s.Require().NoError(err)
	start, _ := s.g.Node("start")
	s.Require().NoError(eng.CommitToNewFiber(start, "flow", nil))

	steps, err := eng.ExecuteAllSync(10)
	s.Require().Error(err)
	s.True(stderrors.Is(err, errors.ErrMaxStepsExceeded))
	s.Equal(10, steps)
	s.False(eng.Pending())
	s.Equal(int64(10), eng.Steps())
}

func (s *EngineSuite) TestStepLimitFromEventIsReported() {
	logger := &fakeLogger{}
	s.reg.Dependencies[LoggerDependency] = logger
	s.node("test/start", "start")
	s.node("test/record", "loop")
	s.connect("start", "flow", "loop", "flow")
	s.connect("loop", "flow", "loop", "flow")

	eng := s.start(WithMaxSteps(20))
	var reported []*NodeError
	eng.OnNodeError.Subscribe(func(ne *NodeError) { reported = append(reported, ne) })
	s.fire("start")

	s.Require().Len(reported, 1)
	s.Equal("start", reported[0].NodeID)
	s.True(stderrors.Is(reported[0], errors.ErrMaxStepsExceeded))
	s.Require().Len(logger.errors, 1)
	s.Equal("start", logger.errors[0].source)
	s.Contains(logger.errors[0].text, "maximum execution steps exceeded")
}

func (s *EngineSuite) TestReconfiguredEventNodeIsInitializedAgain() {
	start := s.node("test/start", "start")
	s.node("test/record", "rec")
	s.connect("start", "flow", "rec", "flow")
	s.start()
	before := start.State.(*eventState)

	s.Require().NoError(s.g.Reconfigure("start", nil))

	s.Equal(1, before.disposed)
	after := start.State.(*eventState)
	s.NotSame(before, after)
	s.NotNil(after.ctx)
	s.fire("start")
	s.Equal([]string{"rec"}, s.trace)
}

func (s *EngineSuite) TestReconfiguredAsyncNodeDropsPendingWork() {
	s.node("test/start", "start")
	wait := s.node("test/wait", "wait")
	s.node("test/record", "after")
	s.connect("start", "flow", "wait", "flow")
	s.connect("wait", "flow", "after", "flow")
	eng := s.start()
	s.fire("start")
	s.Require().Equal(1, eng.AsyncPending())
	before := wait.State.(*asyncState)

	s.Require().NoError(s.g.Reconfigure("wait", nil))

	s.Equal(1, before.disposed)
	s.Equal(0, eng.AsyncPending())
	s.NotSame(before, wait.State.(*asyncState))
}

func (s *EngineSuite) TestPanicAbortsOnlyItsFiber() {
	s.node("test/start", "start")
	s.node("test/sequence", "seq")
	s.node("test/panic", "bad")
	s.node("test/record", "afterBad")
	s.node("test/record", "good")
	s.connect("start", "flow", "seq", "flow")
	s.connect("seq", "1", "bad", "flow")
	s.connect("bad", "flow", "afterBad", "flow")
	s.connect("seq", "2", "good", "flow")
	s.node("test/start", "other")
	s.node("test/record", "otherRec")
	s.connect("other", "flow", "otherRec", "flow")

	registry := metric.NewMetricsRegistry()
	eng := s.start(WithMetrics(registry))
	var reported []*NodeError
	eng.OnNodeError.Subscribe(func(ne *NodeError) { reported = append(reported, ne) })

	s.fire("start")
	s.Empty(s.trace, "the failing fiber is abandoned")
	s.Require().Len(reported, 1)
	s.Equal("bad", reported[0].NodeID)
	s.Equal("test/panic", reported[0].NodeType)
	s.Contains(reported[0].Error(), "boom")
	s.Contains(s.logs.String(), "Node execution failed")
	s.Equal(1.0, testutil.ToFloat64(eng.metrics.nodeErrors.WithLabelValues("test/panic")))

	s.fire("other")
	s.Equal([]string{"otherRec"}, s.trace)
}

func (s *EngineSuite) TestErrorsGoToLoggerDependency() {
	logger := &fakeLogger{}
	s.reg.Dependencies[LoggerDependency] = logger
	s.node("test/start", "start")
	s.node("test/panic", "bad")
	s.connect("start", "flow", "bad", "flow")

	s.start()
	s.fire("start")

	s.Require().Len(logger.errors, 1)
	s.Equal("bad", logger.errors[0].source)
	s.Contains(logger.errors[0].text, "boom")
	s.NotContains(s.logs.String(), "Node execution failed")
}

func (s *EngineSuite) TestFunctionNodeCannotCommit() {
	s.node("test/start", "start")
	s.node("test/commitFromFunction", "fn")
	s.node("test/record", "rec")
	s.connect("start", "flow", "rec", "flow")

	rec, _ := s.g.Node("rec")
	number, _ := rec.Input("number")
	number.Links = []graph.Link{{NodeID: "fn", Socket: "result"}}

	eng := s.start()
	var reported []*NodeError
	eng.OnNodeError.Subscribe(func(ne *NodeError) { reported = append(reported, ne) })
	s.fire("start")

	s.Require().Len(reported, 1)
	s.Equal("fn", reported[0].NodeID)
	s.True(stderrors.Is(reported[0], errors.ErrInvalidLink))
}

func (s *EngineSuite) TestAsyncCommitsOnNewFiber() {
	s.node("test/start", "start")
	wait := s.node("test/wait", "wait")
	s.node("test/record", "before")
	s.node("test/record", "after")
	s.connect("start", "flow", "wait", "flow")
	s.connect("start", "flow", "before", "flow")
	s.connect("wait", "flow", "after", "flow")

	registry := metric.NewMetricsRegistry()
	eng := s.start(WithMetrics(registry))
	s.fire("start")

	s.Equal([]string{"before"}, s.trace)
	s.Equal(1, eng.AsyncPending())
	s.Equal(1.0, testutil.ToFloat64(eng.metrics.asyncPending))

	st := wait.State.(*asyncState)
	s.Require().Len(st.finished, 1)
	st.finished[0]()

	s.Equal([]string{"before", "after"}, s.trace)
	s.Equal(0, eng.AsyncPending())
	s.Equal(0.0, testutil.ToFloat64(eng.metrics.asyncPending))
}

func (s *EngineSuite) TestAsyncFinishedTwiceWarns() {
	s.node("test/start", "start")
	wait := s.node("test/wait", "wait")
	s.connect("start", "flow", "wait", "flow")

	eng := s.start()
	s.fire("start")
	s.fire("start")
	s.Equal(2, eng.AsyncPending())

	st := wait.State.(*asyncState)
	st.finished[0]()
	st.finished[0]()
	s.Equal(1, eng.AsyncPending(), "a repeated finished call must not release another operation")
	s.Contains(s.logs.String(), "Async node finished more than once")
}

func (s *EngineSuite) TestDisposeTearsDownEventAndAsyncNodes() {
	start := s.node("test/start", "start")
	wait := s.node("test/wait", "wait")
	s.node("test/record", "after")
	s.connect("start", "flow", "wait", "flow")
	s.connect("wait", "flow", "after", "flow")

	eng := s.start()
	s.fire("start")
	eng.Dispose()
	eng.Dispose()

	s.Equal(1, start.State.(*eventState).disposed)
	s.Equal(1, wait.State.(*asyncState).disposed)
	s.Equal(0, eng.AsyncPending())

	wait.State.(*asyncState).finished[0]()
	s.Empty(s.trace, "disposed engines start no new fibers")
}

func (s *EngineSuite) TestNodesAddedAfterStartAreInitialized() {
	eng := s.start()
	late := s.node("test/start", "late")
	s.node("test/record", "rec")
	s.connect("late", "flow", "rec", "flow")

	s.Require().NotNil(late.State.(*eventState).ctx)
	s.fire("late")
	s.Equal([]string{"rec"}, s.trace)

	s.Require().NoError(s.g.RemoveNode("late"))
	s.Equal(1, late.State.(*eventState).disposed)
	eng.Dispose()
	s.Equal(1, late.State.(*eventState).disposed, "removed nodes are not disposed again")
}

func (s *EngineSuite) TestStartInitializesOnce() {
	var inits int
	s.Require().NoError(s.reg.Nodes.Register(graph.MakeEventNode(graph.EventDefinition{
		Meta: graph.Meta{TypeName: "test/counted"},
		Out:  graph.Sockets(graph.Flow("flow")),
		Init: func(graph.Context) { inits++ },
	})))
	s.node("test/counted", "c")

	eng := s.start()
	eng.Start()
	s.Equal(1, inits)
}

func (s *EngineSuite) TestExecutionEventsBracketNodes() {
	s.node("test/start", "start")
	s.node("test/record", "rec")
	s.connect("start", "flow", "rec", "flow")

	eng := s.start()
	var events []string
	eng.OnNodeExecutionStart.Subscribe(func(n *graph.Node) { events = append(events, "start:"+n.ID) })
	eng.OnNodeExecutionEnd.Subscribe(func(n *graph.Node) { events = append(events, "end:"+n.ID) })
	s.fire("start")

	s.Equal([]string{"start:rec", "end:rec"}, events)
}

func TestWithMaxStepsRejectsNonPositive(t *testing.T) {
	g := graph.New(graph.NewRegistry())
	_, err := New(g, WithMaxSteps(0))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfig))
	assert.True(t, errors.IsInvalid(err))
}

func TestWithMetricsRejectsDuplicateRegistration(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	g := graph.New(graph.NewRegistry())
	_, err := New(g, WithMetrics(registry))
	require.NoError(t, err)

	_, err = New(g, WithMetrics(registry))
	assert.Error(t, err)

	UnregisterMetrics(registry)
	_, err = New(g, WithMetrics(registry))
	assert.NoError(t, err)
}

func TestExecuteAllDrainsInBatches(t *testing.T) {
	reg := graph.NewRegistry()
	var runs int
	require.NoError(t, reg.Nodes.Register(
		graph.MakeEventNode(graph.EventDefinition{
			Meta: graph.Meta{TypeName: "src"},
			Out:  graph.Sockets(graph.Flow("flow")),
			Init: func(graph.Context) {},
		}),
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta:      graph.Meta{TypeName: "count"},
			In:        graph.Sockets(graph.Flow("flow")),
			Triggered: func(graph.Context, string) { runs++ },
		}),
	))
	g := graph.New(reg)
	src, err := g.CreateNode("src", "src", nil)
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		_, err := g.CreateNode("count", id, nil)
		require.NoError(t, err)
		require.NoError(t, g.Connect(graph.Link{NodeID: "src", Socket: "flow"}, graph.Link{NodeID: id, Socket: "flow"}))
	}

	eng, err := New(g)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, eng.CommitToNewFiber(src, "flow", nil))
	}
	require.NoError(t, eng.ExecuteAll(t.Context(), 2))
	assert.Equal(t, 15, runs)
	assert.False(t, eng.Pending())
}
