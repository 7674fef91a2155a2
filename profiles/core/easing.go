package core

import (
	"math"
	"sort"

	"github.com/c360/visualscript/graph"
)

// Easing modes
const (
	EaseIn    = "in"
	EaseOut   = "out"
	EaseInOut = "inOut"
)

// easings are "in" curves over t in [0,1]; out and inOut are derived from them
var easings = map[string]func(t float64) float64{
	"linear":      func(t float64) float64 { return t },
	"quadratic":   func(t float64) float64 { return t * t },
	"cubic":       func(t float64) float64 { return t * t * t },
	"quartic":     func(t float64) float64 { return t * t * t * t },
	"quintic":     func(t float64) float64 { return t * t * t * t * t },
	"sine":        func(t float64) float64 { return 1 - math.Cos(t*math.Pi/2) },
	"circle":      func(t float64) float64 { return 1 - math.Sqrt(1-t*t) },
	"exponential": exponentialIn,
	"back": func(t float64) float64 {
		const s = 1.70158
		return t * t * ((s+1)*t - s)
	},
	"elastic": func(t float64) float64 {
		if t == 0 || t == 1 {
			return t
		}
		return -math.Pow(2, 10*(t-1)) * math.Sin((t-1.075)*(2*math.Pi)/0.3)
	},
	"bounce": func(t float64) float64 { return 1 - bounceOut(1-t) },
}

func exponentialIn(t float64) float64 {
	if t == 0 {
		return 0
	}
	return math.Pow(2, 10*(t-1))
}

func bounceOut(t float64) float64 {
	const n, d = 7.5625, 2.75
	switch {
	case t < 1/d:
		return n * t * t
	case t < 2/d:
		t -= 1.5 / d
		return n*t*t + 0.75
	case t < 2.5/d:
		t -= 2.25 / d
		return n*t*t + 0.9375
	default:
		t -= 2.625 / d
		return n*t*t + 0.984375
	}
}

// EasingFunctions returns the known easing names, sorted
func EasingFunctions() []string {
	names := make([]string, 0, len(easings))
	for name := range easings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ease maps t through the named easing curve and mode. t is clamped to [0,1];
// unknown functions fall back to linear.
func Ease(function, mode string, t float64) float64 {
	t = math.Min(math.Max(t, 0), 1)
	in, ok := easings[function]
	if !ok {
		in = easings["linear"]
	}
	switch mode {
	case EaseOut:
		return 1 - in(1-t)
	case EaseInOut:
		if t < 0.5 {
			return in(2*t) / 2
		}
		return 1 - in(2*(1-t))/2
	default:
		return in(t)
	}
}

func easingChoices() []graph.Choice {
	var choices []graph.Choice
	for _, name := range EasingFunctions() {
		choices = append(choices, graph.Choice{Text: name, Value: name})
	}
	return choices
}

// EasingSockets declares the easingFunction and easingMode inputs shared by
// easing nodes
func EasingSockets() []graph.SocketSpec {
	return []graph.SocketSpec{
		graph.Data("easingFunction", strT).WithDefault("linear").WithChoices(easingChoices()...),
		graph.Data("easingMode", strT).WithDefault(EaseInOut).WithChoices(
			graph.Choice{Text: "In", Value: EaseIn},
			graph.Choice{Text: "Out", Value: EaseOut},
			graph.Choice{Text: "In Out", Value: EaseInOut},
		),
	}
}

func easingNodes() []*graph.Description {
	return []*graph.Description{
		graph.MakeFunctionNode(graph.FunctionDefinition{
			Meta: graph.Meta{TypeName: "math/easing", Category: "Math", Label: "Easing"},
			In:   graph.Sockets(append(EasingSockets(), graph.Data("t", floatT))...),
			Out:  graph.Sockets(graph.Data("t", floatT)),
			Exec: func(ctx graph.Context) {
				ctx.Write("t", Ease(
					graph.ReadAs[string](ctx, "easingFunction"),
					graph.ReadAs[string](ctx, "easingMode"),
					graph.ReadAs[float64](ctx, "t"),
				))
			},
		}),
	}
}
