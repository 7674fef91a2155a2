package testutil

import (
	"encoding/json"
	"fmt"
	"sort"
)

// HelloGraph logs "hi" once when the graph starts
const HelloGraph = `{
  "name": "hello",
  "nodes": [
    {"type": "lifecycle/onStart", "id": "start", "flows": {"flow": {"nodeId": "log", "socket": "flow"}}},
    {"type": "debug/log", "id": "log", "parameters": {"text": {"value": "hi"}}}
  ]
}`

// CycleGraph links two branch nodes into a flow loop, which validation rejects
const CycleGraph = `{
  "name": "loop",
  "nodes": [
    {"type": "flow/branch", "id": "a", "flows": {"true": {"nodeId": "b", "socket": "flow"}}},
    {"type": "flow/branch", "id": "b", "flows": {"true": {"nodeId": "a", "socket": "flow"}}}
  ]
}`

// LifecycleGraph returns a graph named name that logs start on lifecycle/onStart
// and end on lifecycle/onEnd
func LifecycleGraph(name, start, end string) []byte {
	return NewGraphBuilder(name).
		Node("start", "lifecycle/onStart").
		Node("log", "debug/log").
		Value("log", "text", start).
		Flow("start", "flow", "log", "flow").
		Node("end", "lifecycle/onEnd").
		Node("bye", "debug/log").
		Value("bye", "text", end).
		Flow("end", "flow", "bye", "flow").
		MustJSON()
}

type nodeJSON struct {
	Type          string               `json:"type"`
	ID            string               `json:"id"`
	Label         string               `json:"label,omitempty"`
	Configuration map[string]any       `json:"configuration,omitempty"`
	Parameters    map[string]paramJSON `json:"parameters,omitempty"`
	Flows         map[string]any       `json:"flows,omitempty"`
}

type paramJSON struct {
	Value any       `json:"value,omitempty"`
	Link  *linkJSON `json:"link,omitempty"`
}

type linkJSON struct {
	NodeID string `json:"nodeId"`
	Socket string `json:"socket"`
}

type variableJSON struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ValueTypeName string `json:"valueTypeName"`
	InitialValue  any    `json:"initialValue,omitempty"`
}

type customEventJSON struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters []customEventParamJSON `json:"parameters,omitempty"`
}

type customEventParamJSON struct {
	Name          string `json:"name"`
	ValueTypeName string `json:"valueTypeName"`
	DefaultValue  any    `json:"defaultValue,omitempty"`
}

// GraphBuilder assembles graph JSON documents for tests. Methods referring to an
// unknown node id record an error that JSON returns.
type GraphBuilder struct {
	name         string
	order        []string
	nodes        map[string]*nodeJSON
	flows        map[string]map[string][]linkJSON
	variables    []variableJSON
	customEvents []customEventJSON
	err          error
}

// NewGraphBuilder creates a builder for a graph called name
func NewGraphBuilder(name string) *GraphBuilder {
	return &GraphBuilder{
		name:  name,
		nodes: make(map[string]*nodeJSON),
		flows: make(map[string]map[string][]linkJSON),
	}
}

// Node adds a node of nodeType
func (b *GraphBuilder) Node(id, nodeType string) *GraphBuilder {
	if _, exists := b.nodes[id]; exists {
		b.fail("duplicate node %q", id)
		return b
	}
	b.order = append(b.order, id)
	b.nodes[id] = &nodeJSON{Type: nodeType, ID: id}
	return b
}

// Label sets the display label of node id
func (b *GraphBuilder) Label(id, label string) *GraphBuilder {
	if n := b.node(id); n != nil {
		n.Label = label
	}
	return b
}

// Configure sets a configuration entry of node id
func (b *GraphBuilder) Configure(id, key string, value any) *GraphBuilder {
	if n := b.node(id); n != nil {
		if n.Configuration == nil {
			n.Configuration = make(map[string]any)
		}
		n.Configuration[key] = value
	}
	return b
}

// Value sets a constant on input socket of node id
func (b *GraphBuilder) Value(id, socket string, value any) *GraphBuilder {
	if n := b.node(id); n != nil {
		n.param(socket, paramJSON{Value: value})
	}
	return b
}

// Link feeds input toSocket of node to from output fromSocket of node from
func (b *GraphBuilder) Link(from, fromSocket, to, toSocket string) *GraphBuilder {
	n := b.node(to)
	if n == nil || b.node(from) == nil {
		return b
	}
	n.param(toSocket, paramJSON{Link: &linkJSON{NodeID: from, Socket: fromSocket}})
	return b
}

// Flow connects flow output fromSocket of from to flow input toSocket of to.
// Repeated calls with the same output fan out.
func (b *GraphBuilder) Flow(from, fromSocket, to, toSocket string) *GraphBuilder {
	if b.node(from) == nil || b.node(to) == nil {
		return b
	}
	if b.flows[from] == nil {
		b.flows[from] = make(map[string][]linkJSON)
	}
	b.flows[from][fromSocket] = append(b.flows[from][fromSocket], linkJSON{NodeID: to, Socket: toSocket})
	return b
}

// Variable declares a graph variable
func (b *GraphBuilder) Variable(id, name, valueType string, initial any) *GraphBuilder {
	b.variables = append(b.variables, variableJSON{ID: id, Name: name, ValueTypeName: valueType, InitialValue: initial})
	return b
}

// CustomEvent declares a custom event with parameters given as name, value type pairs
func (b *GraphBuilder) CustomEvent(id, name string, params ...string) *GraphBuilder {
	if len(params)%2 != 0 {
		b.fail("custom event %q: parameters must be name, type pairs", id)
		return b
	}
	ce := customEventJSON{ID: id, Name: name}
	for i := 0; i < len(params); i += 2 {
		ce.Parameters = append(ce.Parameters, customEventParamJSON{Name: params[i], ValueTypeName: params[i+1]})
	}
	b.customEvents = append(b.customEvents, ce)
	return b
}

// JSON encodes the graph
func (b *GraphBuilder) JSON() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	nodes := make([]nodeJSON, 0, len(b.order))
	for _, id := range b.order {
		n := *b.nodes[id]
		if outs := b.flows[id]; len(outs) > 0 {
			n.Flows = make(map[string]any, len(outs))
			for _, socket := range sortedKeys(outs) {
				links := outs[socket]
				if len(links) == 1 {
					n.Flows[socket] = links[0]
				} else {
					n.Flows[socket] = links
				}
			}
		}
		nodes = append(nodes, n)
	}
	doc := map[string]any{"name": b.name, "nodes": nodes}
	if len(b.variables) > 0 {
		doc["variables"] = b.variables
	}
	if len(b.customEvents) > 0 {
		doc["customEvents"] = b.customEvents
	}
	return json.Marshal(doc)
}

// MustJSON is JSON that panics on builder errors
func (b *GraphBuilder) MustJSON() []byte {
	data, err := b.JSON()
	if err != nil {
		panic(err)
	}
	return data
}

func (b *GraphBuilder) node(id string) *nodeJSON {
	n, ok := b.nodes[id]
	if !ok {
		b.fail("unknown node %q", id)
		return nil
	}
	return n
}

func (b *GraphBuilder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf("graph builder %s: "+format, append([]any{b.name}, args...)...)
	}
}

func (n *nodeJSON) param(socket string, p paramJSON) {
	if n.Parameters == nil {
		n.Parameters = make(map[string]paramJSON)
	}
	n.Parameters[socket] = p
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
