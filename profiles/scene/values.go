package scene

import (
	"fmt"
	"math"

	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/values"
)

// Scene value type names
const (
	Vec2TypeName  = "vec2"
	Vec3TypeName  = "vec3"
	Vec4TypeName  = "vec4"
	QuatTypeName  = "quat"
	EulerTypeName = "euler"
	ColorTypeName = "color"
)

// Vec2 is a 2D vector
type Vec2 struct{ X, Y float64 }

// Vec3 is a 3D vector
type Vec3 struct{ X, Y, Z float64 }

// Vec4 is a 4D vector
type Vec4 struct{ X, Y, Z, W float64 }

// Quat is a rotation quaternion; the zero value of the quat type is the identity
type Quat struct{ X, Y, Z, W float64 }

// Euler holds XYZ rotation angles in radians
type Euler struct{ X, Y, Z float64 }

// Color is a linear RGB color with channels in [0,1]
type Color struct{ R, G, B float64 }

// Elements returns the components in declaration order
func (v Vec2) Elements() []float64  { return []float64{v.X, v.Y} }
func (v Vec3) Elements() []float64  { return []float64{v.X, v.Y, v.Z} }
func (v Vec4) Elements() []float64  { return []float64{v.X, v.Y, v.Z, v.W} }
func (q Quat) Elements() []float64  { return []float64{q.X, q.Y, q.Z, q.W} }
func (e Euler) Elements() []float64 { return []float64{e.X, e.Y, e.Z} }
func (c Color) Elements() []float64 { return []float64{c.R, c.G, c.B} }

// Vector is implemented by every scene value type
type Vector interface {
	comparable
	Elements() []float64
}

// kind describes one vector value type: its name, component socket names and
// how to build a value from components
type kind[T Vector] struct {
	name   string
	labels []string
	from   func(e []float64) T
	zero   func() T
	lerp   func(a, b T, t float64) T
}

var (
	vec2Kind = kind[Vec2]{
		name:   Vec2TypeName,
		labels: []string{"x", "y"},
		from:   func(e []float64) Vec2 { return Vec2{e[0], e[1]} },
	}
	vec3Kind = kind[Vec3]{
		name:   Vec3TypeName,
		labels: []string{"x", "y", "z"},
		from:   func(e []float64) Vec3 { return Vec3{e[0], e[1], e[2]} },
	}
	vec4Kind = kind[Vec4]{
		name:   Vec4TypeName,
		labels: []string{"x", "y", "z", "w"},
		from:   func(e []float64) Vec4 { return Vec4{e[0], e[1], e[2], e[3]} },
	}
	quatKind = kind[Quat]{
		name:   QuatTypeName,
		labels: []string{"x", "y", "z", "w"},
		from:   func(e []float64) Quat { return Quat{e[0], e[1], e[2], e[3]} },
		zero:   func() Quat { return Quat{W: 1} },
		lerp:   func(a, b Quat, t float64) Quat { return slerpFn(a, b, t) },
	}
	eulerKind = kind[Euler]{
		name:   EulerTypeName,
		labels: []string{"x", "y", "z"},
		from:   func(e []float64) Euler { return Euler{e[0], e[1], e[2]} },
	}
	colorKind = kind[Color]{
		name:   ColorTypeName,
		labels: []string{"r", "g", "b"},
		from:   func(e []float64) Color { return Color{e[0], e[1], e[2]} },
	}
)

// slerpFn breaks the quatKind <-> Slerp initialization cycle; it is set in init
var slerpFn func(a, b Quat, t float64) Quat

func init() { slerpFn = Slerp }

func (k kind[T]) decode(raw any) (T, error) {
	if v, ok := raw.(T); ok {
		return v, nil
	}
	var zero T
	elems, err := values.ToFloat64Slice(raw)
	if err != nil {
		return zero, fmt.Errorf("%w: %s: %v", errors.ErrInvalidData, k.name, err)
	}
	if len(elems) != len(k.labels) {
		return zero, fmt.Errorf("%w: %s needs %d elements, got %d",
			errors.ErrInvalidData, k.name, len(k.labels), len(elems))
	}
	return k.from(elems), nil
}

func (k kind[T]) valueType() *values.Of[T] {
	interpolate := k.lerp
	if interpolate == nil {
		interpolate = func(a, b T, t float64) T { return mixElements(k, a, b, t) }
	}
	return &values.Of[T]{
		TypeName:    k.name,
		Create:      k.zero,
		Decode:      k.decode,
		Encode:      func(v T) any { return v.Elements() },
		Interpolate: interpolate,
	}
}

// Scene value types. Values serialize as JSON arrays of their components.
var (
	Vec2Type  = vec2Kind.valueType()
	Vec3Type  = vec3Kind.valueType()
	Vec4Type  = vec4Kind.valueType()
	QuatType  = quatKind.valueType()
	EulerType = eulerKind.valueType()
	ColorType = colorKind.valueType()
)

// ValueTypes returns every scene value type
func ValueTypes() []values.ValueType {
	return []values.ValueType{Vec2Type, Vec3Type, Vec4Type, QuatType, EulerType, ColorType}
}

func zip[T Vector](k kind[T], a, b T, fn func(x, y float64) float64) T {
	ea, eb := a.Elements(), b.Elements()
	for i := range ea {
		ea[i] = fn(ea[i], eb[i])
	}
	return k.from(ea)
}

func mapElements[T Vector](k kind[T], a T, fn func(x float64) float64) T {
	e := a.Elements()
	for i := range e {
		e[i] = fn(e[i])
	}
	return k.from(e)
}

func mixElements[T Vector](k kind[T], a, b T, t float64) T {
	return zip(k, a, b, func(x, y float64) float64 { return x*(1-t) + y*t })
}

func dot[T Vector](a, b T) float64 {
	ea, eb := a.Elements(), b.Elements()
	sum := 0.0
	for i := range ea {
		sum += ea[i] * eb[i]
	}
	return sum
}

func length[T Vector](a T) float64 {
	return math.Sqrt(dot(a, a))
}

// normalize returns a unit vector, or a unchanged when its length is zero
func normalize[T Vector](k kind[T], a T) T {
	l := length(a)
	if l == 0 {
		return a
	}
	return mapElements(k, a, func(x float64) float64 { return x / l })
}

// Cross returns the cross product a × b
func Cross(a, b Vec3) Vec3 {
	return Vec3{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

// Multiply composes two rotations: the result applies b first, then a
func Multiply(a, b Quat) Quat {
	return Quat{
		X: a.W*b.X + a.X*b.W + a.Y*b.Z - a.Z*b.Y,
		Y: a.W*b.Y - a.X*b.Z + a.Y*b.W + a.Z*b.X,
		Z: a.W*b.Z + a.X*b.Y - a.Y*b.X + a.Z*b.W,
		W: a.W*b.W - a.X*b.X - a.Y*b.Y - a.Z*b.Z,
	}
}

// Slerp spherically interpolates between two rotations along the shorter arc
func Slerp(a, b Quat, t float64) Quat {
	cos := dot(a, b)
	if cos < 0 {
		b = Quat{-b.X, -b.Y, -b.Z, -b.W}
		cos = -cos
	}
	if cos > 0.9995 {
		return normalize(quatKind, mixElements(quatKind, a, b, t))
	}
	theta := math.Acos(cos)
	sin := math.Sin(theta)
	wa := math.Sin((1-t)*theta) / sin
	wb := math.Sin(t*theta) / sin
	return zip(quatKind, a, b, func(x, y float64) float64 { return wa*x + wb*y })
}

// EulerToQuat converts XYZ-order Euler angles to a quaternion
func EulerToQuat(e Euler) Quat {
	c1, s1 := math.Cos(e.X/2), math.Sin(e.X/2)
	c2, s2 := math.Cos(e.Y/2), math.Sin(e.Y/2)
	c3, s3 := math.Cos(e.Z/2), math.Sin(e.Z/2)
	return Quat{
		X: s1*c2*c3 + c1*s2*s3,
		Y: c1*s2*c3 - s1*c2*s3,
		Z: c1*c2*s3 + s1*s2*c3,
		W: c1*c2*c3 - s1*s2*s3,
	}
}

// QuatToEuler converts a unit quaternion to XYZ-order Euler angles
func QuatToEuler(q Quat) Euler {
	// Rotation matrix elements used by the XYZ decomposition
	m11 := 1 - 2*(q.Y*q.Y+q.Z*q.Z)
	m12 := 2 * (q.X*q.Y - q.W*q.Z)
	m13 := 2 * (q.X*q.Z + q.W*q.Y)
	m22 := 1 - 2*(q.X*q.X+q.Z*q.Z)
	m23 := 2 * (q.Y*q.Z - q.W*q.X)
	m32 := 2 * (q.Y*q.Z + q.W*q.X)
	m33 := 1 - 2*(q.X*q.X+q.Y*q.Y)

	y := math.Asin(math.Max(-1, math.Min(1, m13)))
	if math.Abs(m13) < 0.9999999 {
		return Euler{X: math.Atan2(-m23, m33), Y: y, Z: math.Atan2(-m12, m11)}
	}
	return Euler{X: math.Atan2(m32, m22), Y: y, Z: 0}
}
