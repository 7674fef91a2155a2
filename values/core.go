package values

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/cast"

	"github.com/c360/visualscript/errors"
)

// Core value type names
const (
	BooleanTypeName = "boolean"
	IntegerTypeName = "integer"
	FloatTypeName   = "float"
	StringTypeName  = "string"
)

// Boolean is the "boolean" value type
var Boolean = &Of[bool]{
	TypeName: BooleanTypeName,
	Decode:   cast.ToBoolE,
	Interpolate: func(a, b bool, t float64) bool {
		if t < 0.5 {
			return a
		}
		return b
	},
}

// Integer is the "integer" value type, represented as int64
var Integer = &Of[int64]{
	TypeName: IntegerTypeName,
	Decode:   ToInt64,
	Interpolate: func(a, b int64, t float64) int64 {
		// exact at the endpoints, float64 cannot hold every int64
		switch {
		case t <= 0:
			return a
		case t >= 1:
			return b
		}
		d := b - a
		if (d > 0) != (b > a) {
			// b-a overflowed
			return int64(math.Round(float64(a) + (float64(b)-float64(a))*t))
		}
		return a + int64(math.Round(float64(d)*t))
	},
}

// Float is the "float" value type, represented as float64. NaN and the
// infinities serialize as the strings "NaN", "Infinity" and "-Infinity".
var Float = &Of[float64]{
	TypeName: FloatTypeName,
	Decode:   ToFloat64,
	Encode: func(v float64) any {
		switch {
		case math.IsNaN(v):
			return "NaN"
		case math.IsInf(v, 1):
			return "Infinity"
		case math.IsInf(v, -1):
			return "-Infinity"
		}
		return v
	},
	Equal: func(a, b float64) bool {
		return a == b || (math.IsNaN(a) && math.IsNaN(b))
	},
	Interpolate: func(a, b float64, t float64) float64 {
		return a*(1-t) + b*t
	},
}

// String is the "string" value type
var String = &Of[string]{
	TypeName: StringTypeName,
	Decode:   cast.ToStringE,
	Interpolate: func(a, b string, t float64) string {
		if t < 0.5 {
			return a
		}
		return b
	},
}

// Core returns the core value types
func Core() []ValueType {
	return []ValueType{Boolean, Integer, Float, String}
}

// ToFloat64 converts raw JSON-ish input into a float64
func ToFloat64(raw any) (float64, error) {
	switch v := raw.(type) {
	case json.Number:
		return v.Float64()
	case string:
		switch v {
		case "NaN":
			return math.NaN(), nil
		case "Infinity", "+Infinity", "Inf":
			return math.Inf(1), nil
		case "-Infinity", "-Inf":
			return math.Inf(-1), nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a float", errors.ErrInvalidData, v)
		}
		return f, nil
	}
	return cast.ToFloat64E(raw)
}

// ToInt64 converts raw JSON-ish input into an int64
func ToInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", errors.ErrInvalidData, v)
		}
		return i, nil
	}
	return cast.ToInt64E(raw)
}

// ToFloat64Slice converts an array-shaped raw value into float64 elements
func ToFloat64Slice(raw any) ([]float64, error) {
	switch v := raw.(type) {
	case []float64:
		return append([]float64(nil), v...), nil
	}
	items, err := cast.ToSliceE(raw)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(items))
	for i, item := range items {
		f, err := ToFloat64(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}
