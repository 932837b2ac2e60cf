// Package variant provides the dynamic value container exchanged
// across the scripting boundary.
//
// A Variant wraps one of a small set of normalized kinds: bool, int64,
// uint64, float64, string, Date, List, Map, null, or void. The zero
// Variant is void (no value was ever supplied); Null is an explicit
// null. Values are normalized on construction so two Variants built
// from int32(5) and int64(5) are indistinguishable.
//
// Cast converts a Variant to a concrete Go type with overflow and
// lexical checks. Converter adapts Cast to the deferred.Convert
// signature so handles can be converted per value type.
package variant

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// nullValue marks an explicit null. The zero Variant holds nil, which
// is void.
type nullValue struct{}

// Variant is an immutable dynamic value.
type Variant struct {
	v any
}

// List is an ordered sequence of Variants.
type List []Variant

// Map is a string-keyed collection of Variants.
type Map map[string]Variant

// Date is a date carried as a string. It converts to and from string
// through Cast but keeps its identity so callers can tell dates apart
// from plain strings.
type Date string

func (d Date) String() string {
	return string(d)
}

// Null returns the explicit null Variant.
func Null() Variant {
	return Variant{v: nullValue{}}
}

// New wraps a Go value as a Variant, normalizing it. Signed integers
// widen to int64, unsigned to uint64, float32 to float64. Slices and
// arrays become Lists, string-keyed maps become Maps, both
// recursively. A nil input is the explicit null. Values outside the
// normalized kinds are stored as-is and reported by Kind under their
// Go type name.
func New(v any) Variant {
	switch val := v.(type) {
	case nil:
		return Null()
	case Variant:
		return val
	case List:
		return Variant{v: val}
	case Map:
		return Variant{v: val}
	case Date:
		return Variant{v: val}
	case bool, int64, uint64, float64, string:
		return Variant{v: val}
	case int:
		return Variant{v: int64(val)}
	case int8:
		return Variant{v: int64(val)}
	case int16:
		return Variant{v: int64(val)}
	case int32:
		return Variant{v: int64(val)}
	case uint:
		return Variant{v: uint64(val)}
	case uint8:
		return Variant{v: uint64(val)}
	case uint16:
		return Variant{v: uint64(val)}
	case uint32:
		return Variant{v: uint64(val)}
	case uintptr:
		return Variant{v: uint64(val)}
	case float32:
		return Variant{v: float64(val)}
	case []any:
		return Variant{v: makeListFromSlice(val)}
	case map[string]any:
		return Variant{v: MakeMap(val)}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make(List, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = New(rv.Index(i).Interface())
		}
		return Variant{v: out}
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			out := make(Map, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				out[iter.Key().String()] = New(iter.Value().Interface())
			}
			return Variant{v: out}
		}
	}

	return Variant{v: v}
}

func makeListFromSlice(vals []any) List {
	out := make(List, len(vals))
	for i, v := range vals {
		out[i] = New(v)
	}
	return out
}

// MakeList builds a List by wrapping each value with New.
func MakeList(vals ...any) List {
	return makeListFromSlice(vals)
}

// MakeMap builds a Map by wrapping each value with New.
func MakeMap(m map[string]any) Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = New(v)
	}
	return out
}

// IsVoid reports whether the Variant never received a value.
func (v Variant) IsVoid() bool {
	return v.v == nil
}

// IsNull reports whether the Variant is the explicit null.
func (v Variant) IsNull() bool {
	_, ok := v.v.(nullValue)
	return ok
}

// Raw returns the normalized underlying value. Void and null both
// return nil; use IsVoid and IsNull to tell them apart.
func (v Variant) Raw() any {
	if v.v == nil || v.IsNull() {
		return nil
	}
	return v.v
}

// Kind names the normalized kind for diagnostics: void, null, bool,
// int, uint, float, string, date, list, map, or the Go type name of a
// non-normalized value.
func (v Variant) Kind() string {
	switch v.v.(type) {
	case nil:
		return "void"
	case nullValue:
		return "null"
	case bool:
		return "bool"
	case int64:
		return "int"
	case uint64:
		return "uint"
	case float64:
		return "float"
	case string:
		return "string"
	case Date:
		return "date"
	case List:
		return "list"
	case Map:
		return "map"
	default:
		return reflect.TypeOf(v.v).String()
	}
}

// String renders a display form for logs and the console. It is not
// the lexical form used by Cast.
func (v Variant) String() string {
	switch val := v.v.(type) {
	case nil:
		return "<void>"
	case nullValue:
		return "<null>"
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return val
	case Date:
		return string(val)
	case List:
		return val.String()
	case Map:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

func (l List) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range l {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(v.String())
	}
	sb.WriteByte(']')
	return sb.String()
}

func (m Map) String() string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(m[k].String())
	}
	sb.WriteByte('}')
	return sb.String()
}
