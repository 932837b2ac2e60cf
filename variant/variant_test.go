package variant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_Normalization(t *testing.T) {
	tests := []struct {
		name string
		in   any
		kind string
		raw  any
	}{
		{"bool", true, "bool", true},
		{"int", 5, "int", int64(5)},
		{"int8", int8(-3), "int", int64(-3)},
		{"int16", int16(300), "int", int64(300)},
		{"int32", int32(7), "int", int64(7)},
		{"int64", int64(7), "int", int64(7)},
		{"uint", uint(9), "uint", uint64(9)},
		{"uint8", uint8(255), "uint", uint64(255)},
		{"uint32", uint32(12), "uint", uint64(12)},
		{"uint64", uint64(12), "uint", uint64(12)},
		{"float32", float32(1.5), "float", float64(1.5)},
		{"float64", 2.5, "float", 2.5},
		{"string", "hi", "string", "hi"},
		{"date", Date("2014-03-01"), "date", Date("2014-03-01")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(tt.in)
			require.Equal(t, tt.kind, v.Kind())
			require.Equal(t, tt.raw, v.Raw())
			require.False(t, v.IsVoid())
			require.False(t, v.IsNull())
		})
	}
}

func TestNew_SameValueSameVariant(t *testing.T) {
	require.Equal(t, New(int32(5)), New(int64(5)))
	require.Equal(t, New(float32(2)), New(float64(2)))
}

func TestNew_Nil(t *testing.T) {
	v := New(nil)
	require.True(t, v.IsNull())
	require.False(t, v.IsVoid())
	require.Nil(t, v.Raw())
}

func TestNew_VariantPassthrough(t *testing.T) {
	inner := New(42)
	require.Equal(t, inner, New(inner))
}

func TestNew_NestedContainers(t *testing.T) {
	v := New(map[string]any{
		"items": []any{1, "two", 3.0},
		"meta":  map[string]any{"ok": true},
	})
	require.Equal(t, "map", v.Kind())

	m := v.Raw().(Map)
	items := m["items"].Raw().(List)
	require.Len(t, items, 3)
	require.Equal(t, "int", items[0].Kind())
	require.Equal(t, "string", items[1].Kind())
	require.Equal(t, "float", items[2].Kind())

	meta := m["meta"].Raw().(Map)
	require.Equal(t, true, meta["ok"].Raw())
}

func TestNew_TypedSlicesAndMaps(t *testing.T) {
	v := New([]int{1, 2, 3})
	require.Equal(t, "list", v.Kind())
	require.Equal(t, List{New(1), New(2), New(3)}, v.Raw())

	v = New(map[string]int{"a": 1})
	require.Equal(t, "map", v.Kind())
	require.Equal(t, Map{"a": New(1)}, v.Raw())
}

func TestNew_OpaqueValue(t *testing.T) {
	type opaque struct{ n int }

	v := New(opaque{n: 1})
	require.Equal(t, "variant.opaque", v.Kind())
	require.Equal(t, opaque{n: 1}, v.Raw())
}

func TestZeroVariantIsVoid(t *testing.T) {
	var v Variant
	require.True(t, v.IsVoid())
	require.False(t, v.IsNull())
	require.Nil(t, v.Raw())
	require.Equal(t, "void", v.Kind())
}

func TestNull(t *testing.T) {
	v := Null()
	require.True(t, v.IsNull())
	require.False(t, v.IsVoid())
	require.Equal(t, "null", v.Kind())
}

func TestMakeList(t *testing.T) {
	l := MakeList(1, "two", true)
	require.Len(t, l, 3)
	require.Equal(t, int64(1), l[0].Raw())
	require.Equal(t, "two", l[1].Raw())
	require.Equal(t, true, l[2].Raw())
}

func TestMakeMap(t *testing.T) {
	m := MakeMap(map[string]any{"n": 1, "s": "x"})
	require.Equal(t, int64(1), m["n"].Raw())
	require.Equal(t, "x", m["s"].Raw())
}

func TestString_DisplayForms(t *testing.T) {
	tests := []struct {
		name string
		v    Variant
		want string
	}{
		{"void", Variant{}, "<void>"},
		{"null", Null(), "<null>"},
		{"bool", New(true), "true"},
		{"int", New(-3), "-3"},
		{"uint", New(uint(7)), "7"},
		{"float", New(1.25), "1.25"},
		{"string", New("hi"), "hi"},
		{"date", New(Date("2014-03-01")), "2014-03-01"},
		{"list", New(MakeList(1, 2)), "[1, 2]"},
		{"map", New(MakeMap(map[string]any{"b": 2, "a": 1})), "{a: 1, b: 2}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.v.String())
		})
	}
}
