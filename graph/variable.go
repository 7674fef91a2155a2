package graph

import "github.com/c360/visualscript/values"

// Variable is a named, typed value owned by a graph. Version increments on every
// Set that changes the value under the type's equality.
type Variable struct {
	ID            string
	Name          string
	Label         string
	ValueTypeName string
	InitialValue  any
	Metadata      map[string]any
	Version       int
	OnChanged     Emitter[*Variable]

	value     any
	valueType values.ValueType
}

// Get returns the current value
func (v *Variable) Get() any { return v.value }

// Set stores x and notifies listeners when it differs from the current value
func (v *Variable) Set(x any) bool {
	x = v.valueType.Clone(x)
	if v.valueType.Equals(v.value, x) {
		return false
	}
	v.value = x
	v.Version++
	v.OnChanged.Emit(v)
	return true
}

// ValueType returns the variable's value type
func (v *Variable) ValueType() values.ValueType { return v.valueType }

// CustomEvent is a named broadcast channel local to a graph
type CustomEvent struct {
	ID         string
	Name       string
	Label      string
	Parameters []*Socket
	Metadata   map[string]any
	// EventEmitter delivers parameter values keyed by parameter name
	EventEmitter Emitter[map[string]any]
}

// Parameter finds a declared parameter by name
func (c *CustomEvent) Parameter(name string) (*Socket, bool) {
	return findSocket(c.Parameters, name)
}

// Trigger emits params to every current listener
func (c *CustomEvent) Trigger(params map[string]any) {
	c.EventEmitter.Emit(params)
}
