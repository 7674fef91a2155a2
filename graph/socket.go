package graph

import "github.com/c360/visualscript/values"

// Link references one end of an edge: a node and one of its sockets.
//
// Data edges are stored on the consuming input socket and point upstream at the
// producing output. Flow edges are stored on the producing output socket and point
// downstream at the entered flow input.
type Link struct {
	NodeID string `json:"nodeId"`
	Socket string `json:"socket"`
}

// Choice is one selectable value offered by a socket
type Choice struct {
	Text  string `json:"text"`
	Value any    `json:"value"`
}

// Socket is a typed, named terminal on a node
type Socket struct {
	ValueTypeName string
	Name          string
	Label         string
	Value         any
	Choices       []Choice
	Links         []Link
}

// IsFlow reports whether the socket carries control flow
func (s *Socket) IsFlow() bool {
	return s.ValueTypeName == values.FlowTypeName
}

// SocketSpec declares a socket. Default is the initial value in the value type's Go
// representation; nil means the type's zero value.
type SocketSpec struct {
	Name      string
	ValueType string
	Label     string
	Default   any
	Choices   []Choice
}

// Flow declares a flow socket
func Flow(name string) SocketSpec {
	return SocketSpec{Name: name, ValueType: values.FlowTypeName}
}

// Data declares a data socket of the given value type
func Data(name, valueType string) SocketSpec {
	return SocketSpec{Name: name, ValueType: valueType}
}

// WithDefault returns a copy of s with a default value
func (s SocketSpec) WithDefault(v any) SocketSpec {
	s.Default = v
	return s
}

// WithChoices returns a copy of s offering choices
func (s SocketSpec) WithChoices(choices ...Choice) SocketSpec {
	s.Choices = choices
	return s
}

// WithLabel returns a copy of s with a display label
func (s SocketSpec) WithLabel(label string) SocketSpec {
	s.Label = label
	return s
}

// SocketsFunc produces the socket list of a node from its configuration and the
// graph it is being created in. It must be deterministic for the same inputs.
type SocketsFunc func(cfg Configuration, g *Graph) []SocketSpec

// Sockets returns a SocketsFunc producing a fixed socket list
func Sockets(specs ...SocketSpec) SocketsFunc {
	return func(Configuration, *Graph) []SocketSpec {
		out := make([]SocketSpec, len(specs))
		copy(out, specs)
		return out
	}
}

func findSocket(sockets []*Socket, name string) (*Socket, bool) {
	for _, s := range sockets {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}
