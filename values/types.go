// Package values provides the value type system for visual-script sockets, variables
// and custom event parameters.
//
// A ValueType knows how to create a zero value, move a value to and from its JSON
// representation, copy it, compare it and interpolate between two values. Types are
// registered once in a Registry keyed by name and are immutable afterwards.
package values

import (
	"fmt"

	"github.com/c360/visualscript/errors"
)

// FlowTypeName is the value type name of control-flow sockets. Flow sockets carry no
// value and are never registered in a Registry.
const FlowTypeName = "flow"

// ValueType describes the operations available on values of one socket type.
// Values are untyped at the socket level; every method accepts and returns the
// Go representation of the type (float64 for "float", int64 for "integer", ...).
type ValueType interface {
	Name() string
	Creator() any
	Deserialize(raw any) (any, error)
	Serialize(value any) any
	Clone(value any) any
	Equals(a, b any) bool
	// Lerp interpolates from a (t=0) to b (t=1). Types without a meaningful
	// interpolation return an error wrapping errors.ErrNotImplemented.
	Lerp(a, b any, t float64) (any, error)
}

// Of adapts strongly typed functions into a ValueType.
type Of[T any] struct {
	TypeName    string
	Create      func() T
	Decode      func(raw any) (T, error)
	Encode      func(value T) any
	Copy        func(value T) T
	Equal       func(a, b T) bool
	Interpolate func(a, b T, t float64) T
}

var _ ValueType = (*Of[bool])(nil)

// Name returns the registered type name
func (o *Of[T]) Name() string { return o.TypeName }

// Creator returns a fresh zero value
func (o *Of[T]) Creator() any {
	if o.Create == nil {
		var zero T
		return zero
	}
	return o.Create()
}

// Deserialize converts a JSON-compatible raw value into the type's Go representation
func (o *Of[T]) Deserialize(raw any) (any, error) {
	if raw == nil {
		return o.Creator(), nil
	}
	if o.Decode == nil {
		if v, ok := raw.(T); ok {
			return v, nil
		}
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: cannot decode %T", errors.ErrInvalidData, raw),
			"ValueType", "Deserialize", o.TypeName)
	}
	v, err := o.Decode(raw)
	if err != nil {
		return nil, errors.WrapInvalid(err, "ValueType", "Deserialize", o.TypeName)
	}
	return v, nil
}

// Serialize converts a value into its JSON-compatible representation
func (o *Of[T]) Serialize(value any) any {
	v := o.coerce(value)
	if o.Encode == nil {
		return v
	}
	return o.Encode(v)
}

// Clone returns an independent copy of value
func (o *Of[T]) Clone(value any) any {
	v := o.coerce(value)
	if o.Copy == nil {
		return v
	}
	return o.Copy(v)
}

// Equals reports whether a and b are value-equal
func (o *Of[T]) Equals(a, b any) bool {
	x, y := o.coerce(a), o.coerce(b)
	if o.Equal == nil {
		return any(x) == any(y)
	}
	return o.Equal(x, y)
}

// Lerp interpolates between a and b
func (o *Of[T]) Lerp(a, b any, t float64) (any, error) {
	if o.Interpolate == nil {
		return nil, errors.Wrap(errors.ErrNotImplemented, "ValueType", "Lerp", o.TypeName+" interpolation")
	}
	return o.Interpolate(o.coerce(a), o.coerce(b), t), nil
}

// coerce turns an arbitrary value into T. Values already of type T pass through;
// anything else goes through Decode and falls back to the zero value.
func (o *Of[T]) coerce(value any) T {
	if v, ok := value.(T); ok {
		return v
	}
	if value != nil && o.Decode != nil {
		if v, err := o.Decode(value); err == nil {
			return v
		}
	}
	if c, ok := o.Creator().(T); ok {
		return c
	}
	var zero T
	return zero
}
