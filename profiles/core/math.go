package core

import (
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/values"
)

const (
	boolT  = values.BooleanTypeName
	intT   = values.IntegerTypeName
	floatT = values.FloatTypeName
	strT   = values.StringTypeName
)

func constantNodes() []*graph.Description {
	return []*graph.Description{
		Constant("math/constant/boolean", boolT),
		Constant("math/constant/integer", intT),
		Constant("math/constant/float", floatT),
		Constant("math/constant/string", strT),
	}
}

func floatNodes() []*graph.Description {
	const cat = "Math"
	return []*graph.Description{
		Binary("math/add/float", cat, floatT, floatT, floatT, func(a, b float64) float64 { return a + b }),
		Binary("math/subtract/float", cat, floatT, floatT, floatT, func(a, b float64) float64 { return a - b }),
		Binary("math/multiply/float", cat, floatT, floatT, floatT, func(a, b float64) float64 { return a * b }),
		Binary("math/divide/float", cat, floatT, floatT, floatT, func(a, b float64) float64 { return a / b }),
		Binary("math/modulus/float", cat, floatT, floatT, floatT, math.Mod),
		Unary("math/negate/float", cat, floatT, floatT, func(a float64) float64 { return -a }),
		Unary("math/abs/float", cat, floatT, floatT, math.Abs),
		Unary("math/sign/float", cat, floatT, floatT, signFloat),
		Unary("math/floor/float", cat, floatT, floatT, math.Floor),
		Unary("math/ceil/float", cat, floatT, floatT, math.Ceil),
		Unary("math/round/float", cat, floatT, floatT, math.Round),
		Unary("math/trunc/float", cat, floatT, floatT, math.Trunc),
		Unary("math/sqrt/float", cat, floatT, floatT, math.Sqrt),
		Unary("math/exp/float", cat, floatT, floatT, math.Exp),
		Unary("math/ln/float", cat, floatT, floatT, math.Log),
		Unary("math/log10/float", cat, floatT, floatT, math.Log10),
		Binary("math/pow/float", cat, floatT, floatT, floatT, math.Pow),
		Unary("math/sin/float", cat, floatT, floatT, math.Sin),
		Unary("math/cos/float", cat, floatT, floatT, math.Cos),
		Unary("math/tan/float", cat, floatT, floatT, math.Tan),
		Unary("math/asin/float", cat, floatT, floatT, math.Asin),
		Unary("math/acos/float", cat, floatT, floatT, math.Acos),
		Unary("math/atan/float", cat, floatT, floatT, math.Atan),
		Binary("math/min/float", cat, floatT, floatT, floatT, math.Min),
		Binary("math/max/float", cat, floatT, floatT, floatT, math.Max),
		Ternary("math/clamp/float", cat, floatT, floatT, floatT, floatT, func(v, lo, hi float64) float64 {
			return math.Min(math.Max(v, lo), hi)
		}),
		Ternary("math/mix/float", cat, floatT, floatT, floatT, floatT, func(a, b, t float64) float64 {
			return a*(1-t) + b*t
		}),
		Binary("math/equal/float", cat, floatT, floatT, boolT, func(a, b float64) bool { return a == b }),
		Binary("math/lessThan/float", cat, floatT, floatT, boolT, func(a, b float64) bool { return a < b }),
		Binary("math/lessThanOrEqual/float", cat, floatT, floatT, boolT, func(a, b float64) bool { return a <= b }),
		Binary("math/greaterThan/float", cat, floatT, floatT, boolT, func(a, b float64) bool { return a > b }),
		Binary("math/greaterThanOrEqual/float", cat, floatT, floatT, boolT, func(a, b float64) bool { return a >= b }),
		Unary("math/isNaN/float", cat, floatT, boolT, math.IsNaN),
		Unary("math/isInf/float", cat, floatT, boolT, func(a float64) bool { return math.IsInf(a, 0) }),
		Unary("math/toInteger/float", cat, floatT, intT, func(a float64) int64 { return int64(math.Trunc(a)) }),
		Unary("math/toString/float", cat, floatT, strT, func(a float64) string {
			return strconv.FormatFloat(a, 'f', -1, 64)
		}),
		Nullary("math/random/float", cat, floatT, rand.Float64),
		Nullary("math/pi/float", cat, floatT, func() float64 { return math.Pi }),
		Nullary("math/e/float", cat, floatT, func() float64 { return math.E }),
	}
}

func signFloat(a float64) float64 {
	switch {
	case a > 0:
		return 1
	case a < 0:
		return -1
	}
	return 0
}

func integerNodes() []*graph.Description {
	const cat = "Math"
	return []*graph.Description{
		Binary("math/add/integer", cat, intT, intT, intT, func(a, b int64) int64 { return a + b }),
		Binary("math/subtract/integer", cat, intT, intT, intT, func(a, b int64) int64 { return a - b }),
		Binary("math/multiply/integer", cat, intT, intT, intT, func(a, b int64) int64 { return a * b }),
		// Division and modulus by zero yield 0
		Binary("math/divide/integer", cat, intT, intT, intT, func(a, b int64) int64 {
			if b == 0 {
				return 0
			}
			return a / b
		}),
		Binary("math/modulus/integer", cat, intT, intT, intT, func(a, b int64) int64 {
			if b == 0 {
				return 0
			}
			return a % b
		}),
		Unary("math/negate/integer", cat, intT, intT, func(a int64) int64 { return -a }),
		Unary("math/abs/integer", cat, intT, intT, func(a int64) int64 {
			if a < 0 {
				return -a
			}
			return a
		}),
		Unary("math/sign/integer", cat, intT, intT, func(a int64) int64 {
			switch {
			case a > 0:
				return 1
			case a < 0:
				return -1
			}
			return 0
		}),
		Binary("math/min/integer", cat, intT, intT, intT, func(a, b int64) int64 { return min(a, b) }),
		Binary("math/max/integer", cat, intT, intT, intT, func(a, b int64) int64 { return max(a, b) }),
		Ternary("math/clamp/integer", cat, intT, intT, intT, intT, func(v, lo, hi int64) int64 {
			return min(max(v, lo), hi)
		}),
		Binary("math/equal/integer", cat, intT, intT, boolT, func(a, b int64) bool { return a == b }),
		Binary("math/lessThan/integer", cat, intT, intT, boolT, func(a, b int64) bool { return a < b }),
		Binary("math/greaterThan/integer", cat, intT, intT, boolT, func(a, b int64) bool { return a > b }),
		Unary("math/toFloat/integer", cat, intT, floatT, func(a int64) float64 { return float64(a) }),
		Unary("math/toString/integer", cat, intT, strT, func(a int64) string { return strconv.FormatInt(a, 10) }),
		Unary("math/toBoolean/integer", cat, intT, boolT, func(a int64) bool { return a != 0 }),
	}
}

func booleanNodes() []*graph.Description {
	const cat = "Logic"
	return []*graph.Description{
		Binary("math/and/boolean", cat, boolT, boolT, boolT, func(a, b bool) bool { return a && b }),
		Binary("math/or/boolean", cat, boolT, boolT, boolT, func(a, b bool) bool { return a || b }),
		Unary("math/not/boolean", cat, boolT, boolT, func(a bool) bool { return !a }),
		Binary("math/xor/boolean", cat, boolT, boolT, boolT, func(a, b bool) bool { return a != b }),
		Binary("math/equal/boolean", cat, boolT, boolT, boolT, func(a, b bool) bool { return a == b }),
		Unary("math/toInteger/boolean", cat, boolT, intT, func(a bool) int64 {
			if a {
				return 1
			}
			return 0
		}),
		Unary("math/toString/boolean", cat, boolT, strT, strconv.FormatBool),
	}
}

func stringNodes() []*graph.Description {
	const cat = "String"
	return []*graph.Description{
		Binary("math/concat/string", cat, strT, strT, strT, func(a, b string) string { return a + b }),
		Binary("math/includes/string", cat, strT, strT, boolT, strings.Contains),
		Unary("math/length/string", cat, strT, intT, func(a string) int64 { return int64(len([]rune(a))) }),
		Binary("math/equal/string", cat, strT, strT, boolT, func(a, b string) bool { return a == b }),
		// Unparseable strings convert to 0
		Unary("math/toFloat/string", cat, strT, floatT, cast.ToFloat64),
		Unary("math/toInteger/string", cat, strT, intT, cast.ToInt64),
	}
}
