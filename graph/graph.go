// Package graph holds the visual-script data model: node descriptions and their four
// execution kinds, node instances with typed sockets, variables, custom events and the
// Graph that owns them.
//
// A Graph is built from a Registry. It is not safe for concurrent mutation: topology
// edits must happen between execution bursts on the goroutine that runs the engine.
package graph

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/values"
)

// Graph owns nodes, variables and custom events
type Graph struct {
	Name     string
	Metadata map[string]any

	// OnNodeAdded, OnNodeRemoved and OnNodeReconfigured fire after the structural
	// change is applied
	OnNodeAdded        Emitter[*Node]
	OnNodeRemoved      Emitter[*Node]
	OnNodeReconfigured Emitter[*Node]

	registry *Registry
	logger   *slog.Logger

	nodes        map[string]*Node
	nodeOrder    []string
	variables    map[string]*Variable
	varOrder     []string
	customEvents map[string]*CustomEvent
	eventOrder   []string
}

// Option configures a Graph
type Option func(*Graph)

// WithLogger sets the logger used for graph diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithName sets the graph name
func WithName(name string) Option {
	return func(g *Graph) { g.Name = name }
}

// New creates an empty graph bound to registry
func New(registry *Registry, opts ...Option) *Graph {
	g := &Graph{
		Metadata:     make(map[string]any),
		registry:     registry,
		logger:       slog.Default(),
		nodes:        make(map[string]*Node),
		variables:    make(map[string]*Variable),
		customEvents: make(map[string]*CustomEvent),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewID returns a fresh identifier for nodes, variables and custom events
func NewID() string {
	return uuid.NewString()
}

// Registry returns the registry the graph was built from
func (g *Graph) Registry() *Registry { return g.registry }

// Logger returns the graph's diagnostic logger
func (g *Graph) Logger() *slog.Logger { return g.logger }

// Node returns the node with id
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns nodes in insertion order
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		out = append(out, g.nodes[id])
	}
	return out
}

// Variable returns the variable with id
func (g *Graph) Variable(id string) (*Variable, bool) {
	v, ok := g.variables[id]
	return v, ok
}

// Variables returns variables in insertion order
func (g *Graph) Variables() []*Variable {
	out := make([]*Variable, 0, len(g.varOrder))
	for _, id := range g.varOrder {
		out = append(out, g.variables[id])
	}
	return out
}

// CustomEvent returns the custom event with id
func (g *Graph) CustomEvent(id string) (*CustomEvent, bool) {
	e, ok := g.customEvents[id]
	return e, ok
}

// CustomEvents returns custom events in insertion order
func (g *Graph) CustomEvents() []*CustomEvent {
	out := make([]*CustomEvent, 0, len(g.eventOrder))
	for _, id := range g.eventOrder {
		out = append(out, g.customEvents[id])
	}
	return out
}

// GetDependency returns the registry dependency with id. A missing id is logged at
// error level together with the known ids and reported as ok=false.
func (g *Graph) GetDependency(id string) (any, bool) {
	dep, ok := g.registry.Dependencies[id]
	if !ok {
		g.logger.Error("Dependency not found",
			"dependency", id,
			"known", g.registry.DependencyKeys(),
			"error", errors.ErrMissingDependency)
		return nil, false
	}
	return dep, true
}

// Dependency returns the dependency with id as T. Missing or mistyped dependencies
// are logged and reported as ok=false.
func Dependency[T any](g *Graph, id string) (T, bool) {
	var zero T
	dep, ok := g.GetDependency(id)
	if !ok {
		return zero, false
	}
	typed, ok := dep.(T)
	if !ok {
		g.logger.Error("Dependency has unexpected type",
			"dependency", id,
			"type", fmt.Sprintf("%T", dep))
		return zero, false
	}
	return typed, true
}

// CreateNode instantiates a node of typeName under id. Every data socket left
// without a value receives its value type's zero value.
func (g *Graph) CreateNode(typeName, id string, cfg Configuration) (*Node, error) {
	desc, err := g.registry.Nodes.Get(typeName)
	if err != nil {
		return nil, err
	}
	if _, exists := g.nodes[id]; exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: node %s", errors.ErrDuplicateID, id),
			"Graph", "CreateNode", "node id check")
	}

	node := &Node{
		ID:            id,
		Description:   desc,
		Configuration: withDefaults(cfg, desc.Configuration),
		Metadata:      make(map[string]any),
		graph:         g,
	}
	if node.Inputs, err = g.buildSockets(desc.In(node.Configuration, g), nil); err != nil {
		return nil, errors.Wrap(err, "Graph", "CreateNode", "build "+typeName+" inputs")
	}
	if node.Outputs, err = g.buildSockets(desc.Out(node.Configuration, g), nil); err != nil {
		return nil, errors.Wrap(err, "Graph", "CreateNode", "build "+typeName+" outputs")
	}
	checkShape(desc, node.Inputs, node.Outputs)
	if desc.InitialState != nil {
		node.State = desc.InitialState()
	}

	g.nodes[id] = node
	g.nodeOrder = append(g.nodeOrder, id)
	g.OnNodeAdded.Emit(node)
	return node, nil
}

// AddNode creates a node with a generated id
func (g *Graph) AddNode(typeName string, cfg Configuration) (*Node, error) {
	return g.CreateNode(typeName, NewID(), cfg)
}

// buildSockets materializes specs, reusing sockets from previous whose name and
// value type are unchanged so their links and values survive.
func (g *Graph) buildSockets(specs []SocketSpec, previous []*Socket) ([]*Socket, error) {
	out := make([]*Socket, 0, len(specs))
	for _, spec := range specs {
		if old, ok := findSocket(previous, spec.Name); ok && old.ValueTypeName == spec.ValueType {
			old.Label = spec.Label
			old.Choices = spec.Choices
			out = append(out, old)
			continue
		}

		socket := &Socket{
			ValueTypeName: spec.ValueType,
			Name:          spec.Name,
			Label:         spec.Label,
			Choices:       spec.Choices,
		}
		if !socket.IsFlow() {
			vt, err := g.registry.Values.Get(spec.ValueType)
			if err != nil {
				return nil, err
			}
			if spec.Default != nil {
				socket.Value = vt.Clone(spec.Default)
			} else {
				socket.Value = vt.Creator()
			}
		}
		out = append(out, socket)
	}
	return out, nil
}

// RemoveNode deletes a node and every link that references it
func (g *Graph) RemoveNode(id string) error {
	node, ok := g.nodes[id]
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnknownNode, id), "Graph", "RemoveNode", "node lookup")
	}

	delete(g.nodes, id)
	g.nodeOrder = slices.DeleteFunc(g.nodeOrder, func(s string) bool { return s == id })
	g.pruneLinks(func(_ *Socket, l Link) bool { return l.NodeID == id })

	g.OnNodeRemoved.Emit(node)
	return nil
}

// pruneLinks drops every link in the graph for which drop returns true. holder is
// the socket the link is stored on.
func (g *Graph) pruneLinks(drop func(holder *Socket, l Link) bool) {
	for _, n := range g.nodes {
		for _, s := range slices.Concat(n.Inputs, n.Outputs) {
			s.Links = slices.DeleteFunc(s.Links, func(l Link) bool { return drop(s, l) })
		}
	}
}

// Connect links output socket from to input socket to. Data inputs accept a single
// upstream link, so connecting replaces any existing one.
func (g *Graph) Connect(from, to Link) error {
	out, in, err := g.resolveEdge(from, to)
	if err != nil {
		return errors.WrapInvalid(err, "Graph", "Connect", "edge lookup")
	}
	if out.IsFlow() != in.IsFlow() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: cannot connect %s to %s", errors.ErrInvalidLink, out.ValueTypeName, in.ValueTypeName),
			"Graph", "Connect", "socket kind check")
	}

	if out.IsFlow() {
		if !slices.Contains(out.Links, to) {
			out.Links = append(out.Links, to)
		}
		return nil
	}

	if out.ValueTypeName != in.ValueTypeName {
		return errors.WrapInvalid(
			fmt.Errorf("%w: value type %s does not match %s", errors.ErrInvalidLink, out.ValueTypeName, in.ValueTypeName),
			"Graph", "Connect", "value type check")
	}
	in.Links = []Link{from}
	return nil
}

// Disconnect removes the link between from and to if present
func (g *Graph) Disconnect(from, to Link) error {
	out, in, err := g.resolveEdge(from, to)
	if err != nil {
		return errors.WrapInvalid(err, "Graph", "Disconnect", "edge lookup")
	}
	if out.IsFlow() {
		out.Links = slices.DeleteFunc(out.Links, func(l Link) bool { return l == to })
	} else {
		in.Links = slices.DeleteFunc(in.Links, func(l Link) bool { return l == from })
	}
	return nil
}

func (g *Graph) resolveEdge(from, to Link) (*Socket, *Socket, error) {
	src, ok := g.nodes[from.NodeID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", errors.ErrUnknownNode, from.NodeID)
	}
	dst, ok := g.nodes[to.NodeID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", errors.ErrUnknownNode, to.NodeID)
	}
	out, ok := src.Output(from.Socket)
	if !ok {
		return nil, nil, fmt.Errorf("%w: output %s.%s", errors.ErrUnknownSocket, from.NodeID, from.Socket)
	}
	in, ok := dst.Input(to.Socket)
	if !ok {
		return nil, nil, fmt.Errorf("%w: input %s.%s", errors.ErrUnknownSocket, to.NodeID, to.Socket)
	}
	return out, in, nil
}

// Reconfigure applies a new configuration and regenerates the node's sockets.
// Sockets whose name and value type are unchanged keep their links and values;
// links to sockets that disappeared are removed from the whole graph.
func (g *Graph) Reconfigure(id string, cfg Configuration) error {
	node, ok := g.nodes[id]
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnknownNode, id), "Graph", "Reconfigure", "node lookup")
	}

	merged := withDefaults(cfg, node.Description.Configuration)
	inputs, err := g.buildSockets(node.Description.In(merged, g), node.Inputs)
	if err != nil {
		return errors.Wrap(err, "Graph", "Reconfigure", "build inputs")
	}
	outputs, err := g.buildSockets(node.Description.Out(merged, g), node.Outputs)
	if err != nil {
		return errors.Wrap(err, "Graph", "Reconfigure", "build outputs")
	}
	checkShape(node.Description, inputs, outputs)

	node.Configuration = merged
	node.Inputs = inputs
	node.Outputs = outputs

	// Data links point upstream at outputs, flow links point downstream at inputs
	g.pruneLinks(func(holder *Socket, l Link) bool {
		if l.NodeID != id {
			return false
		}
		target, ok := node.Output(l.Socket)
		if holder.IsFlow() {
			target, ok = node.Input(l.Socket)
		}
		return !ok || target.ValueTypeName != holder.ValueTypeName
	})

	g.OnNodeReconfigured.Emit(node)
	return nil
}

// CreateVariable adds a variable under id with an initial value in the type's Go
// representation (nil means zero value)
func (g *Graph) CreateVariable(id, name, valueTypeName string, initial any) (*Variable, error) {
	if _, exists := g.variables[id]; exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: variable %s", errors.ErrDuplicateID, id),
			"Graph", "CreateVariable", "variable id check")
	}
	vt, err := g.registry.Values.Get(valueTypeName)
	if err != nil {
		return nil, errors.Wrap(err, "Graph", "CreateVariable", "value type lookup")
	}
	if initial == nil {
		initial = vt.Creator()
	}
	v := &Variable{
		ID:            id,
		Name:          name,
		ValueTypeName: valueTypeName,
		InitialValue:  vt.Clone(initial),
		Metadata:      make(map[string]any),
		value:         vt.Clone(initial),
		valueType:     vt,
	}
	g.variables[id] = v
	g.varOrder = append(g.varOrder, id)
	return v, nil
}

// AddVariable creates a variable with a generated id
func (g *Graph) AddVariable(name, valueTypeName string, initial any) (*Variable, error) {
	return g.CreateVariable(NewID(), name, valueTypeName, initial)
}

// CreateCustomEvent adds a custom event under id with declared parameters
func (g *Graph) CreateCustomEvent(id, name string, params []SocketSpec) (*CustomEvent, error) {
	if _, exists := g.customEvents[id]; exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: custom event %s", errors.ErrDuplicateID, id),
			"Graph", "CreateCustomEvent", "custom event id check")
	}
	for _, p := range params {
		if p.ValueType == values.FlowTypeName {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: parameter %s cannot be a flow socket", errors.ErrInvalidConfig, p.Name),
				"Graph", "CreateCustomEvent", "parameter check")
		}
	}
	sockets, err := g.buildSockets(params, nil)
	if err != nil {
		return nil, errors.Wrap(err, "Graph", "CreateCustomEvent", "build parameters")
	}
	e := &CustomEvent{
		ID:         id,
		Name:       name,
		Parameters: sockets,
		Metadata:   make(map[string]any),
	}
	g.customEvents[id] = e
	g.eventOrder = append(g.eventOrder, id)
	return e, nil
}

// AddCustomEvent creates a custom event with a generated id
func (g *Graph) AddCustomEvent(name string, params []SocketSpec) (*CustomEvent, error) {
	return g.CreateCustomEvent(NewID(), name, params)
}

// EnsureCustomEvent returns the custom event with id, creating an empty one named
// after the id when it does not exist yet
func (g *Graph) EnsureCustomEvent(id string) *CustomEvent {
	if e, ok := g.customEvents[id]; ok {
		return e
	}
	e, _ := g.CreateCustomEvent(id, id, nil)
	return e
}
