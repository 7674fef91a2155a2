package values

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/visualscript/errors"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Core()...))

	vt, err := reg.Get(FloatTypeName)
	require.NoError(t, err)
	assert.Equal(t, FloatTypeName, vt.Name())

	assert.Equal(t, []string{"boolean", "float", "integer", "string"}, reg.Names())
}

func TestRegistry_Duplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Float))

	err := reg.Register(Float)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrDuplicateValueType))
	assert.True(t, errors.IsFatal(err))
}

func TestRegistry_FlowIsReserved(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(&Of[bool]{TypeName: FlowTypeName})
	require.Error(t, err)
}

func TestRegistry_UnknownListsKnownTypes(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Core()...))

	_, err := reg.Get("vec9")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrUnknownValueType))
	assert.Contains(t, err.Error(), "boolean, float, integer, string")
}

func TestRegistry_CloneIsIndependent(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Float))

	clone := reg.Clone()
	require.NoError(t, clone.Register(String))

	assert.True(t, clone.Has(StringTypeName))
	assert.False(t, reg.Has(StringTypeName))
}

func TestCoreTypes_RoundTrip(t *testing.T) {
	samples := map[ValueType][]any{
		Boolean: {true, false},
		Integer: {int64(0), int64(-7), int64(math.MaxInt64)},
		Float:   {0.0, -1.25, 3.5e10, math.NaN(), math.Inf(1), math.Inf(-1)},
		String:  {"", "hello", "ünïcødé"},
	}

	for vt, xs := range samples {
		t.Run(vt.Name(), func(t *testing.T) {
			for _, x := range xs {
				// Push through real JSON so number handling matches graph files
				data, err := json.Marshal(vt.Serialize(x))
				require.NoError(t, err)

				var raw any
				dec := json.NewDecoder(bytes.NewReader(data))
				dec.UseNumber()
				require.NoError(t, dec.Decode(&raw))

				back, err := vt.Deserialize(raw)
				require.NoError(t, err)
				assert.True(t, vt.Equals(x, back), "round trip of %v gave %v", x, back)
			}
		})
	}
}

func TestCoreTypes_LerpEndpoints(t *testing.T) {
	cases := []struct {
		vt   ValueType
		a, b any
	}{
		{Boolean, false, true},
		{Integer, int64(-4), int64(10)},
		{Integer, int64(1<<53 + 1), int64(7)},
		{Integer, int64(7), int64(1<<53 + 1)},
		{Integer, int64(math.MinInt64), int64(math.MaxInt64)},
		{Float, 0.1, 0.3},
		{String, "a", "b"},
	}

	for _, c := range cases {
		t.Run(c.vt.Name(), func(t *testing.T) {
			at0, err := c.vt.Lerp(c.a, c.b, 0)
			require.NoError(t, err)
			assert.True(t, c.vt.Equals(c.a, at0))

			at1, err := c.vt.Lerp(c.a, c.b, 1)
			require.NoError(t, err)
			assert.True(t, c.vt.Equals(c.b, at1))
		})
	}
}

func TestInteger_LerpLargeValues(t *testing.T) {
	v, err := Integer.Lerp(int64(1<<53+1), int64(1<<53+5), 0.5)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<53+3), v)

	v, err = Integer.Lerp(int64(math.MinInt64), int64(math.MaxInt64), 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0, float64(v.(int64)), 2048)
}

func TestFloat_LerpMidpoint(t *testing.T) {
	v, err := Float.Lerp(2.0, 4.0, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, v, 1e-12)
}

func TestOf_LerpNotImplemented(t *testing.T) {
	vt := &Of[[]any]{TypeName: "list"}
	_, err := vt.Lerp([]any{}, []any{}, 0.5)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrNotImplemented))
}

func TestDeserialize_Coercion(t *testing.T) {
	v, err := Integer.Deserialize(json.Number("42"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = Float.Deserialize("2.5")
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	v, err = Boolean.Deserialize(nil)
	require.NoError(t, err)
	assert.Equal(t, false, v)

	_, err = Integer.Deserialize("nope")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}
