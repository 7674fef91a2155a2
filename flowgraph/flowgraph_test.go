package flowgraph

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/metric"
	"github.com/c360/visualscript/values"
)

func newTestGraph(t *testing.T) *graph.Graph {
	t.Helper()
	reg := graph.NewRegistry()
	require.NoError(t, reg.Values.Register(values.Core()...))
	require.NoError(t, reg.Nodes.Register(
		graph.MakeEventNode(graph.EventDefinition{
			Meta: graph.Meta{TypeName: "test/start"},
			Out:  graph.Sockets(graph.Flow("flow")),
			Init: func(graph.Context) {},
		}),
		graph.MakeFlowNode(graph.FlowDefinition{
			Meta:      graph.Meta{TypeName: "test/step"},
			In:        graph.Sockets(graph.Flow("flow"), graph.Data("value", values.FloatTypeName)),
			Out:       graph.Sockets(graph.Flow("flow")),
			Triggered: func(graph.Context, string) {},
		}),
		graph.MakeAsyncNode(graph.AsyncDefinition{
			Meta:      graph.Meta{TypeName: "test/wait"},
			In:        graph.Sockets(graph.Flow("flow")),
			Out:       graph.Sockets(graph.Flow("flow")),
			Triggered: func(_ graph.Context, _ string, finished func()) { finished() },
		}),
		graph.MakeFunctionNode(graph.FunctionDefinition{
			Meta: graph.Meta{TypeName: "test/number"},
			Out:  graph.Sockets(graph.Data("result", values.FloatTypeName), graph.Data("text", values.StringTypeName)),
			Exec: func(graph.Context) {},
		}),
	))
	return graph.New(reg)
}

func add(t *testing.T, g *graph.Graph, typeName, id string) *graph.Node {
	t.Helper()
	n, err := g.CreateNode(typeName, id, nil)
	require.NoError(t, err)
	return n
}

func link(t *testing.T, g *graph.Graph, from, fromSocket, to, toSocket string) {
	t.Helper()
	require.NoError(t, g.Connect(
		graph.Link{NodeID: from, Socket: fromSocket},
		graph.Link{NodeID: to, Socket: toSocket},
	))
}

func issueTypes(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Type)
	}
	return out
}

func TestFlowCycles(t *testing.T) {
	t.Run("linear chain has no cycle", func(t *testing.T) {
		g := newTestGraph(t)
		add(t, g, "test/start", "s")
		add(t, g, "test/step", "a")
		add(t, g, "test/step", "b")
		link(t, g, "s", "flow", "a", "flow")
		link(t, g, "a", "flow", "b", "flow")

		assert.Empty(t, ValidateGraphAcyclic(g))
	})

	t.Run("flow cycle lists its nodes", func(t *testing.T) {
		g := newTestGraph(t)
		add(t, g, "test/start", "s")
		add(t, g, "test/step", "a")
		add(t, g, "test/step", "b")
		add(t, g, "test/step", "c")
		link(t, g, "s", "flow", "a", "flow")
		link(t, g, "a", "flow", "b", "flow")
		link(t, g, "b", "flow", "c", "flow")
		link(t, g, "c", "flow", "a", "flow")

		issues := ValidateGraphAcyclic(g)
		require.Len(t, issues, 1)
		assert.Equal(t, IssueFlowCycle, issues[0].Type)
		assert.Equal(t, SeverityError, issues[0].Severity)
		assert.Equal(t, []string{"a", "b", "c"}, issues[0].NodeIDs)
	})

	t.Run("self loop is a cycle", func(t *testing.T) {
		g := newTestGraph(t)
		add(t, g, "test/step", "a")
		link(t, g, "a", "flow", "a", "flow")

		assert.Equal(t, [][]string{{"a"}}, NewFlowGraph(g).FlowCycles())
	})

	t.Run("async node breaks the cycle", func(t *testing.T) {
		g := newTestGraph(t)
		add(t, g, "test/step", "a")
		add(t, g, "test/wait", "w")
		link(t, g, "a", "flow", "w", "flow")
		link(t, g, "w", "flow", "a", "flow")

		assert.Empty(t, ValidateGraphAcyclic(g))
	})

	t.Run("independent cycles are reported separately", func(t *testing.T) {
		g := newTestGraph(t)
		for _, id := range []string{"a", "b", "x", "y"} {
			add(t, g, "test/step", id)
		}
		link(t, g, "a", "flow", "b", "flow")
		link(t, g, "b", "flow", "a", "flow")
		link(t, g, "y", "flow", "x", "flow")
		link(t, g, "x", "flow", "y", "flow")

		assert.Equal(t, [][]string{{"a", "b"}, {"x", "y"}}, NewFlowGraph(g).FlowCycles())
	})
}

func TestValidateLinks(t *testing.T) {
	t.Run("valid links", func(t *testing.T) {
		g := newTestGraph(t)
		add(t, g, "test/start", "s")
		add(t, g, "test/step", "a")
		add(t, g, "test/number", "n")
		link(t, g, "s", "flow", "a", "flow")
		link(t, g, "n", "result", "a", "value")

		assert.Empty(t, ValidateGraphLinks(g))
	})

	t.Run("collects every problem", func(t *testing.T) {
		g := newTestGraph(t)
		s := add(t, g, "test/start", "s")
		a := add(t, g, "test/step", "a")
		add(t, g, "test/number", "n")

		out, _ := s.Output("flow")
		out.Links = []graph.Link{
			{NodeID: "missing", Socket: "flow"},
			{NodeID: "a", Socket: "nope"},
			{NodeID: "a", Socket: "value"},
		}
		value, _ := a.Input("value")
		value.Links = []graph.Link{
			{NodeID: "n", Socket: "text"},
			{NodeID: "n", Socket: "result"},
		}

		issues := ValidateGraphLinks(g)
		assert.ElementsMatch(t,
			[]string{IssueDanglingLink, IssueUnknownSocket, IssueKindMismatch, IssueMultipleLinks, IssueTypeMismatch},
			issueTypes(issues))
		for _, issue := range issues {
			assert.Equal(t, SeverityError, issue.Severity)
			assert.NotEmpty(t, issue.NodeID)
			assert.NotEmpty(t, issue.Message)
		}
	})

	t.Run("links left behind by node removal are pruned", func(t *testing.T) {
		g := newTestGraph(t)
		add(t, g, "test/start", "s")
		add(t, g, "test/step", "a")
		link(t, g, "s", "flow", "a", "flow")
		require.NoError(t, g.RemoveNode("a"))

		assert.Empty(t, ValidateGraphLinks(g))
	})
}

func TestValidator(t *testing.T) {
	t.Run("empty graph warns", func(t *testing.T) {
		result := NewValidator(nil, nil).Validate(newTestGraph(t))
		assert.Equal(t, StatusWarnings, result.Status)
		assert.True(t, result.Valid())
		require.Len(t, result.Warnings, 1)
		assert.Equal(t, IssueEmptyGraph, result.Warnings[0].Type)
	})

	t.Run("healthy graph is valid", func(t *testing.T) {
		g := newTestGraph(t)
		add(t, g, "test/start", "s")
		add(t, g, "test/step", "a")
		link(t, g, "s", "flow", "a", "flow")

		result := NewValidator(nil, nil).Validate(g)
		assert.Equal(t, StatusValid, result.Status)
		assert.Empty(t, result.Issues())
	})

	t.Run("unreachable nodes warn", func(t *testing.T) {
		g := newTestGraph(t)
		add(t, g, "test/start", "s")
		add(t, g, "test/step", "orphan")
		add(t, g, "test/number", "lonely")

		result := NewValidator(nil, nil).Validate(g)
		assert.Equal(t, StatusWarnings, result.Status)
		assert.ElementsMatch(t,
			[]string{IssueDisconnected, IssueUnreachable, IssueDisconnected},
			issueTypes(result.Warnings))
	})

	t.Run("errors are counted in metrics", func(t *testing.T) {
		g := newTestGraph(t)
		add(t, g, "test/step", "a")
		link(t, g, "a", "flow", "a", "flow")

		registry := metric.NewMetricsRegistry()
		result := NewValidator(nil, registry.CoreMetrics()).Validate(g)
		assert.Equal(t, StatusErrors, result.Status)
		assert.False(t, result.Valid())
		assert.Equal(t, 1.0, testutil.ToFloat64(
			registry.CoreMetrics().ValidationIssues.WithLabelValues(IssueFlowCycle, SeverityError)))
	})
}
