package graph

import "fmt"

// NodeKind tags the four execution contracts a node type can follow
type NodeKind int

const (
	// KindEvent nodes have no flow inputs and start flow on external conditions
	KindEvent NodeKind = iota
	// KindFlow nodes are triggered synchronously through a flow input
	KindFlow
	// KindAsync nodes start an operation that commits flow after it completes
	KindAsync
	// KindFunction nodes are pure data transforms evaluated when their outputs are read
	KindFunction
)

// String returns the kind name
func (k NodeKind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindFlow:
		return "flow"
	case KindAsync:
		return "async"
	case KindFunction:
		return "function"
	default:
		return "unknown"
	}
}

// Behavior is the kind-specific payload of a Description. It is a closed set:
// EventBehavior, FlowBehavior, AsyncBehavior and FunctionBehavior.
type Behavior interface {
	Kind() NodeKind
	sealed()
}

// EventBehavior drives an Event node. Init runs once when the engine starts and
// usually subscribes to an external source; Dispose must undo that.
type EventBehavior struct {
	Init    func(ctx Context)
	Dispose func(ctx Context)
}

// FlowBehavior drives a Flow node. Triggered receives the name of the entered flow input.
type FlowBehavior struct {
	Triggered func(ctx Context, socket string)
}

// AsyncBehavior drives an Async node. Triggered must call finished exactly once per
// started operation, cancellation included. Dispose must invalidate pending work.
type AsyncBehavior struct {
	Triggered func(ctx Context, socket string, finished func())
	Dispose   func(ctx Context)
}

// FunctionBehavior drives a Function node
type FunctionBehavior struct {
	Exec func(ctx Context)
}

func (EventBehavior) Kind() NodeKind    { return KindEvent }
func (FlowBehavior) Kind() NodeKind     { return KindFlow }
func (AsyncBehavior) Kind() NodeKind    { return KindAsync }
func (FunctionBehavior) Kind() NodeKind { return KindFunction }

func (EventBehavior) sealed()    {}
func (FlowBehavior) sealed()     {}
func (AsyncBehavior) sealed()    {}
func (FunctionBehavior) sealed() {}

// Meta is the static metadata shared by every node definition
type Meta struct {
	TypeName       string
	Category       string
	Label          string
	Help           string
	OtherTypeNames []string
	Configuration  map[string]ConfigSpec
}

// Description is the immutable registration record of a node type
type Description struct {
	Meta
	In           SocketsFunc
	Out          SocketsFunc
	InitialState func() any
	Behavior     Behavior
}

// Kind returns the node kind of the description
func (d *Description) Kind() NodeKind {
	return d.Behavior.Kind()
}

// EventDefinition declares an Event node type
type EventDefinition struct {
	Meta
	In           SocketsFunc
	Out          SocketsFunc
	InitialState func() any
	Init         func(ctx Context)
	Dispose      func(ctx Context)
}

// FlowDefinition declares a Flow node type
type FlowDefinition struct {
	Meta
	In           SocketsFunc
	Out          SocketsFunc
	InitialState func() any
	Triggered    func(ctx Context, socket string)
}

// AsyncDefinition declares an Async node type
type AsyncDefinition struct {
	Meta
	In           SocketsFunc
	Out          SocketsFunc
	InitialState func() any
	Triggered    func(ctx Context, socket string, finished func())
	Dispose      func(ctx Context)
}

// FunctionDefinition declares a Function node type
type FunctionDefinition struct {
	Meta
	In   SocketsFunc
	Out  SocketsFunc
	Exec func(ctx Context)
}

// MakeEventNode wraps an event definition into a Description
func MakeEventNode(def EventDefinition) *Description {
	mustHaveBehavior(def.TypeName, def.Init != nil)
	return &Description{
		Meta:         def.Meta,
		In:           orEmpty(def.In),
		Out:          orEmpty(def.Out),
		InitialState: def.InitialState,
		Behavior:     EventBehavior{Init: def.Init, Dispose: def.Dispose},
	}
}

// MakeFlowNode wraps a flow definition into a Description
func MakeFlowNode(def FlowDefinition) *Description {
	mustHaveBehavior(def.TypeName, def.Triggered != nil)
	return &Description{
		Meta:         def.Meta,
		In:           orEmpty(def.In),
		Out:          orEmpty(def.Out),
		InitialState: def.InitialState,
		Behavior:     FlowBehavior{Triggered: def.Triggered},
	}
}

// MakeAsyncNode wraps an async definition into a Description
func MakeAsyncNode(def AsyncDefinition) *Description {
	mustHaveBehavior(def.TypeName, def.Triggered != nil)
	return &Description{
		Meta:         def.Meta,
		In:           orEmpty(def.In),
		Out:          orEmpty(def.Out),
		InitialState: def.InitialState,
		Behavior:     AsyncBehavior{Triggered: def.Triggered, Dispose: def.Dispose},
	}
}

// MakeFunctionNode wraps a function definition into a Description
func MakeFunctionNode(def FunctionDefinition) *Description {
	mustHaveBehavior(def.TypeName, def.Exec != nil)
	return &Description{
		Meta:     def.Meta,
		In:       orEmpty(def.In),
		Out:      orEmpty(def.Out),
		Behavior: FunctionBehavior{Exec: def.Exec},
	}
}

func orEmpty(fn SocketsFunc) SocketsFunc {
	if fn == nil {
		return Sockets()
	}
	return fn
}

func mustHaveBehavior(typeName string, ok bool) {
	if !ok {
		panic(&ShapeError{TypeName: typeName, Message: "missing behavior function"})
	}
}

// ShapeError reports a node definition whose sockets violate its kind contract.
// It is raised with panic because it indicates a buggy definition, not bad user data.
type ShapeError struct {
	TypeName string
	Kind     NodeKind
	Message  string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("node type %q (%s): %s", e.TypeName, e.Kind, e.Message)
}

// checkShape enforces the flow socket counts each kind requires
func checkShape(d *Description, inputs, outputs []*Socket) {
	flowIn, flowOut := countFlow(inputs), countFlow(outputs)
	fail := func(msg string) {
		panic(&ShapeError{TypeName: d.TypeName, Kind: d.Kind(), Message: msg})
	}

	switch d.Kind() {
	case KindEvent:
		if flowIn != 0 {
			fail("event nodes must not have flow inputs")
		}
		if flowOut < 1 {
			fail("event nodes need at least one flow output")
		}
	case KindFlow:
		if flowIn < 1 {
			fail("flow nodes need at least one flow input")
		}
	case KindAsync:
		if flowIn < 1 || flowOut < 1 {
			fail("async nodes need at least one flow input and one flow output")
		}
	case KindFunction:
		if flowIn != 0 || flowOut != 0 {
			fail("function nodes must not have flow sockets")
		}
	}
}

func countFlow(sockets []*Socket) int {
	n := 0
	for _, s := range sockets {
		if s.IsFlow() {
			n++
		}
	}
	return n
}
