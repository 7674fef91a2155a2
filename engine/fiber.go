package engine

import (
	"fmt"
	"slices"

	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/graph"
)

// frame is one commit on a fiber stack: links still to be entered and the
// callback to run once they all completed
type frame struct {
	node        *graph.Node
	pending     []graph.Link
	onCompleted func()
}

// Fiber is one synchronous path through the flow graph. Its stack makes fan-out
// depth-first: a branch and everything it commits finish before the next sibling
// link is entered. Commits made while one node body runs are staged and pushed
// together so they run in call order.
type Fiber struct {
	engine *Engine
	stack  []*frame
	staged []*frame

	// snapshot holds the data outputs of the node that opened the fiber, as
	// they were at commit time
	snapshot []savedOutput
}

type savedOutput struct {
	socket *graph.Socket
	value  any
}

func newFiber(e *Engine) *Fiber {
	return &Fiber{engine: e}
}

// commit pushes the links of node's output flow socket
func (f *Fiber) commit(node *graph.Node, socket string, onCompleted func()) error {
	out, ok := node.Output(socket)
	if !ok || !out.IsFlow() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: flow output %q on %s", errors.ErrUnknownSocket, socket, node.TypeName()),
			"Fiber", "Commit", "socket lookup")
	}
	if len(out.Links) == 0 && onCompleted == nil {
		return nil
	}
	f.staged = append(f.staged, &frame{
		node:        node,
		pending:     slices.Clone(out.Links),
		onCompleted: onCompleted,
	})
	return nil
}

// capture records node's data outputs so later writes by another firing of the
// same node do not leak into this fiber
func (f *Fiber) capture(node *graph.Node) {
	for _, out := range node.Outputs {
		if out.IsFlow() {
			continue
		}
		value := out.Value
		if vt, err := f.engine.graph.Registry().Values.Get(out.ValueTypeName); err == nil {
			value = vt.Clone(value)
		}
		f.snapshot = append(f.snapshot, savedOutput{socket: out, value: value})
	}
}

func (f *Fiber) restore() {
	for _, saved := range f.snapshot {
		saved.socket.Value = saved.value
	}
}

// flush moves staged frames onto the stack, first commit on top
func (f *Fiber) flush() {
	for i := len(f.staged) - 1; i >= 0; i-- {
		f.stack = append(f.stack, f.staged[i])
	}
	f.staged = f.staged[:0]
}

func (f *Fiber) done() bool { return len(f.stack) == 0 }

// step enters the next pending link, or completes the top frame when it has none.
// A failing node aborts this fiber only.
func (f *Fiber) step() {
	defer func() {
		if r := recover(); r != nil {
			f.stack = nil
			f.staged = nil
			f.engine.reportError(asNodeError(nil, r))
		}
	}()
	defer f.flush()
	f.restore()

	top := f.stack[len(f.stack)-1]
	if len(top.pending) == 0 {
		f.stack = f.stack[:len(f.stack)-1]
		if top.onCompleted != nil {
			f.engine.execute(top.node, top.onCompleted)
		}
		return
	}

	link := top.pending[0]
	top.pending = top.pending[1:]

	node, ok := f.engine.graph.Node(link.NodeID)
	if !ok {
		f.engine.logger.Warn("Flow link points at missing node",
			"from", top.node.ID, "node_id", link.NodeID, "socket", link.Socket)
		return
	}
	f.engine.trigger(f, node, link.Socket)
}

// trigger enters node through its input flow socket
func (e *Engine) trigger(f *Fiber, node *graph.Node, socket string) {
	switch b := node.Description.Behavior.(type) {
	case graph.FlowBehavior:
		ctx := e.newContext(node, f)
		e.execute(node, func() { b.Triggered(ctx, socket) })
	case graph.AsyncBehavior:
		ctx := e.newContext(node, nil)
		finished := e.trackAsync(node)
		e.execute(node, func() { b.Triggered(ctx, socket, finished) })
	default:
		e.logger.Warn("Node kind cannot be triggered by flow",
			"node_id", node.ID, "node_type", node.TypeName(), "kind", node.Kind().String())
	}
}

// evaluate runs a function node so its outputs reflect its current inputs
func (e *Engine) evaluate(node *graph.Node) {
	if e.evaluating[node.ID] {
		panic(&NodeError{
			NodeID:   node.ID,
			NodeType: node.TypeName(),
			Cause:    fmt.Errorf("%w: data cycle through function node", errors.ErrInvalidLink),
		})
	}
	e.evaluating[node.ID] = true
	defer delete(e.evaluating, node.ID)

	b := node.Description.Behavior.(graph.FunctionBehavior)
	ctx := e.newContext(node, nil)
	e.execute(node, func() { b.Exec(ctx) })
}
