package engine

import (
	"fmt"

	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/graph"
)

// nodeContext is the graph.Context handed to node behaviors. fiber is set only for
// flow nodes entered by a fiber; everything else commits to a new fiber.
type nodeContext struct {
	engine *Engine
	node   *graph.Node
	fiber  *Fiber
}

var _ graph.Context = (*nodeContext)(nil)

func (e *Engine) newContext(node *graph.Node, f *Fiber) *nodeContext {
	return &nodeContext{engine: e, node: node, fiber: f}
}

func (c *nodeContext) Configuration() graph.Configuration { return c.node.Configuration }
func (c *nodeContext) Graph() *graph.Graph                { return c.node.Graph() }
func (c *nodeContext) Node() *graph.Node                  { return c.node }
func (c *nodeContext) State() any                         { return c.node.State }

// Read resolves an input socket. Linked inputs take the upstream output's value,
// evaluating function nodes on the way.
func (c *nodeContext) Read(name string) any {
	socket, ok := c.node.Input(name)
	if !ok {
		panic(errors.WrapInvalid(
			fmt.Errorf("%w: input %q on %s", errors.ErrUnknownSocket, name, c.node.TypeName()),
			"Context", "Read", "socket lookup"))
	}
	return c.engine.resolve(socket)
}

// Write stores value on an output socket
func (c *nodeContext) Write(name string, value any) {
	socket, ok := c.node.Output(name)
	if !ok || socket.IsFlow() {
		panic(errors.WrapInvalid(
			fmt.Errorf("%w: data output %q on %s", errors.ErrUnknownSocket, name, c.node.TypeName()),
			"Context", "Write", "socket lookup"))
	}
	socket.Value = value
}

func (c *nodeContext) Commit(name string) { c.CommitThen(name, nil) }

func (c *nodeContext) CommitThen(name string, onCompleted func()) {
	if c.node.Kind() == graph.KindFunction {
		panic(errors.WrapInvalid(
			fmt.Errorf("%w: function node %s cannot commit flow", errors.ErrInvalidLink, c.node.TypeName()),
			"Context", "Commit", "node kind check"))
	}

	if c.fiber != nil {
		if err := c.fiber.commit(c.node, name, onCompleted); err != nil {
			panic(err)
		}
		return
	}

	// Event and async nodes commit outside the fiber that started them
	if err := c.engine.CommitToNewFiber(c.node, name, onCompleted); err != nil {
		c.engine.reportError(&NodeError{NodeID: c.node.ID, NodeType: c.node.TypeName(), Cause: err})
		return
	}
	c.engine.runIfIdle(c.node)
}

func (e *Engine) resolve(socket *graph.Socket) any {
	if len(socket.Links) == 0 {
		return socket.Value
	}
	link := socket.Links[0]
	upstream, ok := e.graph.Node(link.NodeID)
	if !ok {
		return socket.Value
	}
	out, ok := upstream.Output(link.Socket)
	if !ok {
		return socket.Value
	}
	if upstream.Kind() == graph.KindFunction {
		e.evaluate(upstream)
	}

	value := out.Value
	if vt, err := e.graph.Registry().Values.Get(socket.ValueTypeName); err == nil {
		value = vt.Clone(value)
	}
	socket.Value = value
	return value
}
