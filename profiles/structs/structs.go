// Package structs provides the struct profile: the list and object value types
// for JSON-shaped data and nodes that build, query and iterate them.
package structs

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/spf13/cast"

	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/values"
)

// Value type names
const (
	ListTypeName   = "list"
	ObjectTypeName = "object"
)

// List is an ordered sequence of JSON-shaped values
var List = &values.Of[[]any]{
	TypeName: ListTypeName,
	Create:   func() []any { return []any{} },
	Decode: func(raw any) ([]any, error) {
		items, err := cast.ToSliceE(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidData, err)
		}
		return Clone(items).([]any), nil
	},
	Copy:  func(v []any) []any { return Clone(v).([]any) },
	Equal: func(a, b []any) bool { return reflect.DeepEqual(a, b) },
}

// Object is a string-keyed map of JSON-shaped values
var Object = &values.Of[map[string]any]{
	TypeName: ObjectTypeName,
	Create:   func() map[string]any { return map[string]any{} },
	Decode: func(raw any) (map[string]any, error) {
		m, err := cast.ToStringMapE(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidData, err)
		}
		return Clone(m).(map[string]any), nil
	},
	Copy:  func(v map[string]any) map[string]any { return Clone(v).(map[string]any) },
	Equal: func(a, b map[string]any) bool { return reflect.DeepEqual(a, b) },
}

// ValueTypes returns the struct value types. Neither interpolates: Lerp fails
// with ErrNotImplemented.
func ValueTypes() []values.ValueType {
	return []values.ValueType{List, Object}
}

// Clone deep-copies JSON-shaped data. json.Number leaves become int64 when
// integral and float64 otherwise.
func Clone(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Clone(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = Clone(item)
		}
		return out
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	default:
		return v
	}
}

// Register returns a copy of reg extended with the struct value types and nodes.
// Core value types are added when missing.
func Register(reg *graph.Registry) (*graph.Registry, error) {
	out := reg.Clone()
	for _, vt := range append(values.Core(), ValueTypes()...) {
		if out.Values.Has(vt.Name()) {
			continue
		}
		if err := out.Values.Register(vt); err != nil {
			return nil, errors.Wrap(err, "structs", "Register", "value types")
		}
	}
	if err := out.Nodes.Register(Nodes()...); err != nil {
		return nil, errors.Wrap(err, "structs", "Register", "node descriptions")
	}
	return out, nil
}
