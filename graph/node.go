package graph

// Context is the view of the engine a node behavior receives. Reads of linked data
// inputs resolve upstream values at call time; writes update output sockets.
type Context interface {
	Read(socket string) any
	Write(socket string, value any)
	// Commit continues flow out of the named output flow socket
	Commit(socket string)
	// CommitThen continues flow and calls onCompleted once every downstream
	// branch of that commit has run to completion
	CommitThen(socket string, onCompleted func())
	Configuration() Configuration
	Graph() *Graph
	Node() *Node
	// State is the object produced by the definition's InitialState
	State() any
}

// StateOf returns the node state as *T
func StateOf[T any](ctx Context) *T {
	s, _ := ctx.State().(*T)
	return s
}

// ReadAs reads an input socket as T, returning the zero value on a type mismatch
func ReadAs[T any](ctx Context, socket string) T {
	v, _ := ctx.Read(socket).(T)
	return v
}

// Node is a runtime instance of a node type inside a graph
type Node struct {
	ID            string
	Description   *Description
	Inputs        []*Socket
	Outputs       []*Socket
	Configuration Configuration
	Label         string
	Metadata      map[string]any
	// State persists across triggers; nil for function nodes
	State any

	graph *Graph
}

// Kind returns the node's execution kind
func (n *Node) Kind() NodeKind { return n.Description.Kind() }

// TypeName returns the registered type name
func (n *Node) TypeName() string { return n.Description.TypeName }

// Graph returns the owning graph
func (n *Node) Graph() *Graph { return n.graph }

// Input finds an input socket by name
func (n *Node) Input(name string) (*Socket, bool) { return findSocket(n.Inputs, name) }

// Output finds an output socket by name
func (n *Node) Output(name string) (*Socket, bool) { return findSocket(n.Outputs, name) }
