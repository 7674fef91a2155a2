// Package engine executes visual-script graphs.
//
// # Overview
//
// The Engine is a single-threaded, cooperative scheduler. Work is organised in
// fibers: each fiber is one synchronous path through flow links, kept as a stack of
// commits so fan-out runs depth-first in link order.
//
//	event node ──commit──▶ fiber ──step──▶ flow node ──commit──▶ (push frame)
//	                                  └──▶ async node ──finished later──▶ new fiber
//
// # Lifecycle
//
//	eng, err := engine.New(g, engine.WithMaxSteps(10000))
//	eng.Start()   // Init on every event node, exactly once
//	...           // host ticks, timers and events commit flow
//	eng.Dispose() // Dispose on every event and async node
//
// Event and async nodes commit to a new fiber. When no burst is running the engine
// drains its queue immediately with ExecuteAllSync; otherwise the running burst
// picks the fiber up.
//
// # Data evaluation
//
// Reading a linked data input evaluates upstream function nodes on demand. Flow,
// event and async outputs are read as last written.
//
// # Errors
//
// A panic inside a node body aborts only the fiber that ran it. It is reported as a
// *NodeError through the graph's ILogger dependency (or the engine logger), counted
// in node_errors_total and emitted on OnNodeError. A burst that reaches its step
// limit discards the remaining queue and returns an error wrapping
// errors.ErrMaxStepsExceeded.
package engine
