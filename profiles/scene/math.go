package scene

import (
	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/profiles/core"
	"github.com/c360/visualscript/values"
)

const floatT = values.FloatTypeName

func (k kind[T]) interpolate(a, b T, t float64) T {
	if k.lerp != nil {
		return k.lerp(a, b, t)
	}
	return mixElements(k, a, b, t)
}

// structuralNodes builds create, elements, mix and equal for a vector kind
func structuralNodes[T Vector](k kind[T]) []*graph.Description {
	inputs := make([]graph.SocketSpec, len(k.labels))
	for i, label := range k.labels {
		inputs[i] = graph.Data(label, floatT)
	}
	return []*graph.Description{
		graph.MakeFunctionNode(graph.FunctionDefinition{
			Meta: graph.Meta{TypeName: "math/create/" + k.name, Category: "Math", Label: "Create " + k.name},
			In:   graph.Sockets(inputs...),
			Out:  graph.Sockets(graph.Data("result", k.name)),
			Exec: func(ctx graph.Context) {
				elems := make([]float64, len(k.labels))
				for i, label := range k.labels {
					elems[i] = graph.ReadAs[float64](ctx, label)
				}
				ctx.Write("result", k.from(elems))
			},
		}),
		graph.MakeFunctionNode(graph.FunctionDefinition{
			Meta: graph.Meta{TypeName: "math/elements/" + k.name, Category: "Math", Label: "Elements"},
			In:   graph.Sockets(graph.Data("a", k.name)),
			Out:  graph.Sockets(inputs...),
			Exec: func(ctx graph.Context) {
				elems := graph.ReadAs[T](ctx, "a").Elements()
				for i, label := range k.labels {
					ctx.Write(label, elems[i])
				}
			},
		}),
		core.Ternary("math/mix/"+k.name, "Math", k.name, k.name, floatT, k.name, k.interpolate),
		core.Binary("math/equal/"+k.name, "Math", k.name, k.name, values.BooleanTypeName, func(a, b T) bool {
			return a == b
		}),
	}
}

// linearNodes builds add, subtract, negate and scale
func linearNodes[T Vector](k kind[T]) []*graph.Description {
	return []*graph.Description{
		core.Binary("math/add/"+k.name, "Math", k.name, k.name, k.name, func(a, b T) T {
			return zip(k, a, b, func(x, y float64) float64 { return x + y })
		}),
		core.Binary("math/subtract/"+k.name, "Math", k.name, k.name, k.name, func(a, b T) T {
			return zip(k, a, b, func(x, y float64) float64 { return x - y })
		}),
		core.Unary("math/negate/"+k.name, "Math", k.name, k.name, func(a T) T {
			return mapElements(k, a, func(x float64) float64 { return -x })
		}),
		core.Binary("math/scale/"+k.name, "Math", k.name, floatT, k.name, func(a T, s float64) T {
			return mapElements(k, a, func(x float64) float64 { return x * s })
		}),
	}
}

// metricNodes builds length, normalize and dot
func metricNodes[T Vector](k kind[T]) []*graph.Description {
	return []*graph.Description{
		core.Unary("math/length/"+k.name, "Math", k.name, floatT, length[T]),
		core.Unary("math/normalize/"+k.name, "Math", k.name, k.name, func(a T) T { return normalize(k, a) }),
		core.Binary("math/dot/"+k.name, "Math", k.name, k.name, floatT, dot[T]),
	}
}

func mathNodes() []*graph.Description {
	var descs []*graph.Description
	descs = append(descs, structuralNodes(vec2Kind)...)
	descs = append(descs, linearNodes(vec2Kind)...)
	descs = append(descs, metricNodes(vec2Kind)...)

	descs = append(descs, structuralNodes(vec3Kind)...)
	descs = append(descs, linearNodes(vec3Kind)...)
	descs = append(descs, metricNodes(vec3Kind)...)
	descs = append(descs, core.Binary("math/cross/vec3", "Math", Vec3TypeName, Vec3TypeName, Vec3TypeName, Cross))

	descs = append(descs, structuralNodes(vec4Kind)...)
	descs = append(descs, linearNodes(vec4Kind)...)
	descs = append(descs, metricNodes(vec4Kind)...)

	descs = append(descs, structuralNodes(quatKind)...)
	descs = append(descs,
		core.Binary("math/multiply/quat", "Math", QuatTypeName, QuatTypeName, QuatTypeName, Multiply),
		core.Unary("math/normalize/quat", "Math", QuatTypeName, QuatTypeName, func(q Quat) Quat {
			return normalize(quatKind, q)
		}),
		core.Unary("math/toEuler/quat", "Math", QuatTypeName, EulerTypeName, QuatToEuler),
	)

	descs = append(descs, structuralNodes(eulerKind)...)
	descs = append(descs, core.Unary("math/toQuat/euler", "Math", EulerTypeName, QuatTypeName, EulerToQuat))

	descs = append(descs, structuralNodes(colorKind)...)
	descs = append(descs, linearNodes(colorKind)...)
	return descs
}
