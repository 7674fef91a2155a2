package engine

import (
	"fmt"

	"github.com/c360/visualscript/graph"
)

// NodeError is a recovered failure inside a node body
type NodeError struct {
	NodeID   string
	NodeType string
	Cause    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (%s): %v", e.NodeID, e.NodeType, e.Cause)
}

func (e *NodeError) Unwrap() error { return e.Cause }

// errorLogger is the part of the graph's ILogger dependency the engine reports to
type errorLogger interface {
	Error(source, text string)
}

// LoggerDependency is the dependency id the engine reports node failures to
const LoggerDependency = "ILogger"

// asNodeError keeps the innermost node attribution of a panic value
func asNodeError(node *graph.Node, r any) *NodeError {
	if ne, ok := r.(*NodeError); ok {
		return ne
	}
	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("%v", r)
	}
	ne := &NodeError{Cause: cause}
	if node != nil {
		ne.NodeID = node.ID
		ne.NodeType = node.TypeName()
	}
	return ne
}

// execute runs a node body bracketed by execution events. Panics are re-raised
// as *NodeError naming this node unless an inner node already claimed them.
func (e *Engine) execute(node *graph.Node, fn func()) {
	e.OnNodeExecutionStart.Emit(node)
	failed := true
	defer func() {
		e.metrics.recordExecution(node.TypeName(), failed)
		e.OnNodeExecutionEnd.Emit(node)
		if failed {
			if r := recover(); r != nil {
				panic(asNodeError(node, r))
			}
		}
	}()
	fn()
	failed = false
}

// guard runs a node body outside any fiber and reports failures instead of
// propagating them to the host
func (e *Engine) guard(node *graph.Node, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.reportError(asNodeError(node, r))
		}
	}()
	e.execute(node, fn)
}

func (e *Engine) reportError(ne *NodeError) {
	if dep, ok := e.graph.Registry().Dependencies[LoggerDependency].(errorLogger); ok {
		dep.Error(ne.NodeID, ne.Error())
	} else {
		e.logger.Error("Node execution failed",
			"graph", e.graph.Name, "node_id", ne.NodeID, "node_type", ne.NodeType, "error", ne.Cause)
	}
	e.OnNodeError.Emit(ne)
}
