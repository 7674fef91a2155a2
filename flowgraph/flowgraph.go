// Package flowgraph provides structural analysis and validation of visual-script graphs.
package flowgraph

import (
	"fmt"
	"slices"
	"sort"

	"github.com/c360/visualscript/graph"
)

// Severity levels for issues
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Issue types
const (
	IssueFlowCycle     = "flow_cycle"
	IssueDanglingLink  = "dangling_link"
	IssueUnknownSocket = "unknown_socket"
	IssueKindMismatch  = "kind_mismatch"
	IssueTypeMismatch  = "type_mismatch"
	IssueMultipleLinks = "multiple_links"
	IssueUnreachable   = "unreachable_node"
	IssueDisconnected  = "disconnected_node"
	IssueEmptyGraph    = "empty_graph"
)

// Issue is one structural problem, addressed so an editor can highlight it
type Issue struct {
	Type     string   `json:"type"`
	Severity string   `json:"severity"`
	NodeID   string   `json:"node_id,omitempty"`
	Socket   string   `json:"socket,omitempty"`
	NodeIDs  []string `json:"node_ids,omitempty"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s [%s] %s", i.Severity, i.Type, i.Message)
}

// FlowEdge is one link between two node sockets
type FlowEdge struct {
	From graph.Link `json:"from"`
	To   graph.Link `json:"to"`
	Flow bool       `json:"flow"`
}

// FlowGraph is a read-only snapshot of a graph's nodes and resolved edges
type FlowGraph struct {
	g     *graph.Graph
	nodes []*graph.Node
	edges []FlowEdge
}

// NewFlowGraph snapshots the current topology of g. Edges are collected only when
// both ends resolve; unresolvable links are reported by ValidateLinks.
func NewFlowGraph(g *graph.Graph) *FlowGraph {
	fg := &FlowGraph{g: g, nodes: g.Nodes()}
	for _, n := range fg.nodes {
		for _, out := range n.Outputs {
			if !out.IsFlow() {
				continue
			}
			for _, l := range out.Links {
				fg.edges = append(fg.edges, FlowEdge{
					From: graph.Link{NodeID: n.ID, Socket: out.Name},
					To:   l,
					Flow: true,
				})
			}
		}
		for _, in := range n.Inputs {
			if in.IsFlow() {
				continue
			}
			for _, l := range in.Links {
				fg.edges = append(fg.edges, FlowEdge{
					From: l,
					To:   graph.Link{NodeID: n.ID, Socket: in.Name},
				})
			}
		}
	}
	return fg
}

// Edges returns a copy of the snapshot edges
func (fg *FlowGraph) Edges() []FlowEdge {
	return slices.Clone(fg.edges)
}

// flowSuccessors maps each Flow-kind node to the Flow-kind nodes its flow outputs
// enter directly. Event and Async nodes break synchronous chains and are left out.
func (fg *FlowGraph) flowSuccessors() ([]string, map[string][]string) {
	var order []string
	adj := make(map[string][]string)
	for _, n := range fg.nodes {
		if n.Kind() != graph.KindFlow {
			continue
		}
		order = append(order, n.ID)
	}
	for _, e := range fg.edges {
		if !e.Flow {
			continue
		}
		from, ok := fg.g.Node(e.From.NodeID)
		if !ok || from.Kind() != graph.KindFlow {
			continue
		}
		to, ok := fg.g.Node(e.To.NodeID)
		if !ok || to.Kind() != graph.KindFlow {
			continue
		}
		if !slices.Contains(adj[from.ID], to.ID) {
			adj[from.ID] = append(adj[from.ID], to.ID)
		}
	}
	return order, adj
}

// FlowCycles returns every synchronous flow cycle as a sorted list of node ids.
// Cycles are strongly connected components of the Flow-to-Flow subgraph with more
// than one node, or a single node linked to itself.
func (fg *FlowGraph) FlowCycles() [][]string {
	order, adj := fg.flowSuccessors()

	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var cycles [][]string

	var connect func(v string)
	connect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, seen := indices[w]; !seen {
				connect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] != indices[v] {
			return
		}
		var component []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			component = append(component, w)
			if w == v {
				break
			}
		}
		if len(component) > 1 || slices.Contains(adj[v], v) {
			sort.Strings(component)
			cycles = append(cycles, component)
		}
	}

	for _, v := range order {
		if _, seen := indices[v]; !seen {
			connect(v)
		}
	}

	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

// ValidateAcyclic reports synchronous flow cycles as errors
func (fg *FlowGraph) ValidateAcyclic() []Issue {
	var issues []Issue
	for _, cycle := range fg.FlowCycles() {
		issues = append(issues, Issue{
			Type:     IssueFlowCycle,
			Severity: SeverityError,
			NodeID:   cycle[0],
			NodeIDs:  cycle,
			Message:  fmt.Sprintf("synchronous flow cycle through %v", cycle),
		})
	}
	return issues
}

// ValidateLinks checks that every link resolves on both ends, connects sockets of
// the same kind and value type, and that no data input has more than one link.
func (fg *FlowGraph) ValidateLinks() []Issue {
	var issues []Issue
	for _, n := range fg.nodes {
		for _, out := range n.Outputs {
			if !out.IsFlow() {
				continue
			}
			for _, l := range out.Links {
				issues = append(issues, fg.checkTarget(n, out, l, true)...)
			}
		}
		for _, in := range n.Inputs {
			if in.IsFlow() {
				if len(in.Links) > 0 {
					issues = append(issues, Issue{
						Type:     IssueKindMismatch,
						Severity: SeverityError,
						NodeID:   n.ID,
						Socket:   in.Name,
						Message:  fmt.Sprintf("flow input %s.%s must not hold links", n.ID, in.Name),
					})
				}
				continue
			}
			if len(in.Links) > 1 {
				issues = append(issues, Issue{
					Type:     IssueMultipleLinks,
					Severity: SeverityError,
					NodeID:   n.ID,
					Socket:   in.Name,
					Message:  fmt.Sprintf("data input %s.%s has %d links, at most one allowed", n.ID, in.Name, len(in.Links)),
				})
			}
			for _, l := range in.Links {
				issues = append(issues, fg.checkTarget(n, in, l, false)...)
			}
		}
	}
	return issues
}

// checkTarget validates one stored link. For flow links holder is an output and
// the link names a downstream input; for data links holder is an input and the
// link names an upstream output.
func (fg *FlowGraph) checkTarget(n *graph.Node, holder *graph.Socket, l graph.Link, flow bool) []Issue {
	target, ok := fg.g.Node(l.NodeID)
	if !ok {
		return []Issue{{
			Type:     IssueDanglingLink,
			Severity: SeverityError,
			NodeID:   n.ID,
			Socket:   holder.Name,
			Message:  fmt.Sprintf("%s.%s links to missing node %s", n.ID, holder.Name, l.NodeID),
		}}
	}

	var socket *graph.Socket
	direction := "output"
	if flow {
		direction = "input"
		socket, ok = target.Input(l.Socket)
	} else {
		socket, ok = target.Output(l.Socket)
	}
	if !ok {
		return []Issue{{
			Type:     IssueUnknownSocket,
			Severity: SeverityError,
			NodeID:   n.ID,
			Socket:   holder.Name,
			NodeIDs:  []string{n.ID, target.ID},
			Message: fmt.Sprintf("%s.%s links to unknown %s %s.%s",
				n.ID, holder.Name, direction, target.ID, l.Socket),
		}}
	}

	if socket.IsFlow() != holder.IsFlow() {
		return []Issue{{
			Type:     IssueKindMismatch,
			Severity: SeverityError,
			NodeID:   n.ID,
			Socket:   holder.Name,
			NodeIDs:  []string{n.ID, target.ID},
			Message: fmt.Sprintf("%s.%s (%s) links to %s.%s (%s)",
				n.ID, holder.Name, holder.ValueTypeName, target.ID, socket.Name, socket.ValueTypeName),
		}}
	}
	if !flow && socket.ValueTypeName != holder.ValueTypeName {
		return []Issue{{
			Type:     IssueTypeMismatch,
			Severity: SeverityError,
			NodeID:   n.ID,
			Socket:   holder.Name,
			NodeIDs:  []string{n.ID, target.ID},
			Message: fmt.Sprintf("%s.%s expects %s but %s.%s produces %s",
				n.ID, holder.Name, holder.ValueTypeName, target.ID, socket.Name, socket.ValueTypeName),
		}}
	}
	return nil
}

// ValidateReachability warns about Flow and Async nodes no flow link enters.
// Such nodes can never run.
func (fg *FlowGraph) ValidateReachability() []Issue {
	entered := make(map[string]bool)
	touched := make(map[string]bool)
	for _, e := range fg.edges {
		touched[e.From.NodeID] = true
		touched[e.To.NodeID] = true
		if e.Flow {
			entered[e.To.NodeID] = true
		}
	}

	var issues []Issue
	for _, n := range fg.nodes {
		switch n.Kind() {
		case graph.KindFlow, graph.KindAsync:
			if !entered[n.ID] {
				issues = append(issues, Issue{
					Type:     IssueUnreachable,
					Severity: SeverityWarning,
					NodeID:   n.ID,
					Message:  fmt.Sprintf("%s (%s) has no incoming flow link and never runs", n.ID, n.TypeName()),
				})
			}
		case graph.KindFunction, graph.KindEvent:
			if !touched[n.ID] {
				issues = append(issues, Issue{
					Type:     IssueDisconnected,
					Severity: SeverityWarning,
					NodeID:   n.ID,
					Message:  fmt.Sprintf("%s (%s) has no connections", n.ID, n.TypeName()),
				})
			}
		}
	}
	return issues
}
