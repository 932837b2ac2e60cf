package variant

import (
	"math"
	"reflect"
	"strconv"

	"github.com/scripthost-io/scripthost/errors"
)

var variantType = reflect.TypeOf(Variant{})

// Cast converts a Variant to a concrete Go type. Numeric kinds
// cross-convert with overflow checks, strings convert lexically to
// and from numbers and bools, Lists convert elementwise to slices,
// Maps to string-keyed maps, and any Variant passes through to
// Variant or any targets. Failures are conversion or overflow errors
// carrying the source kind, target type, and for elements the
// index or key path.
func Cast[U any](v Variant) (U, error) {
	var zero U
	rv, err := castValue(v, reflect.TypeOf(&zero).Elem(), nil)
	if err != nil {
		return zero, err
	}
	return rv.Interface().(U), nil
}

// Converter adapts Cast to the handler signature deferred.Convert
// expects, so a conversion for a given target type can be injected
// into a handle chain.
func Converter[U any]() func(Variant) (U, error) {
	return Cast[U]
}

// ConvertList converts every element of a List, reporting the index
// of the first failing element.
func ConvertList[U any](l List) ([]U, error) {
	t := reflect.TypeOf((*U)(nil)).Elem()
	out := make([]U, len(l))
	for i, elem := range l {
		rv, err := castValue(elem, t, []string{"[" + strconv.Itoa(i) + "]"})
		if err != nil {
			return nil, err
		}
		out[i] = rv.Interface().(U)
	}
	return out, nil
}

func castValue(v Variant, t reflect.Type, path []string) (reflect.Value, error) {
	if t == variantType {
		return reflect.ValueOf(v), nil
	}

	if v.IsVoid() || v.IsNull() {
		if t.Kind() == reflect.Interface && t.NumMethod() == 0 {
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, errors.Conversion(path, v.Kind(), t.String(), "no value to convert")
	}

	switch t.Kind() {
	case reflect.Bool:
		return castBool(v, t, path)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return castInt(v, t, path)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return castUint(v, t, path)
	case reflect.Float32, reflect.Float64:
		return castFloat(v, t, path)
	case reflect.String:
		return castString(v, t, path)
	case reflect.Slice:
		return castSlice(v, t, path)
	case reflect.Map:
		return castMap(v, t, path)
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return reflect.ValueOf(v.Raw()), nil
		}
		rv := reflect.ValueOf(v.v)
		if rv.Type().Implements(t) {
			return rv, nil
		}
		return reflect.Value{}, errors.Conversion(path, v.Kind(), t.String(), "value does not implement target interface")
	default:
		rv := reflect.ValueOf(v.v)
		if rv.Type().AssignableTo(t) {
			return rv, nil
		}
		return reflect.Value{}, errors.Conversion(path, v.Kind(), t.String(), "unsupported target type")
	}
}

func castBool(v Variant, t reflect.Type, path []string) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	switch src := v.v.(type) {
	case bool:
		out.SetBool(src)
	case int64:
		out.SetBool(src != 0)
	case uint64:
		out.SetBool(src != 0)
	case float64:
		out.SetBool(src != 0)
	case string:
		b, err := strconv.ParseBool(src)
		if err != nil {
			return reflect.Value{}, errors.Conversion(path, v.Kind(), t.String(), "not a boolean: "+strconv.Quote(src))
		}
		out.SetBool(b)
	case Date:
		b, err := strconv.ParseBool(string(src))
		if err != nil {
			return reflect.Value{}, errors.Conversion(path, v.Kind(), t.String(), "not a boolean: "+strconv.Quote(string(src)))
		}
		out.SetBool(b)
	default:
		return reflect.Value{}, errors.Conversion(path, v.Kind(), t.String(), "no boolean form")
	}
	return out, nil
}

func castInt(v Variant, t reflect.Type, path []string) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	var i int64
	switch src := v.v.(type) {
	case bool:
		if src {
			i = 1
		}
	case int64:
		i = src
	case uint64:
		if src > math.MaxInt64 {
			return reflect.Value{}, errors.Overflow(path, src, t.String())
		}
		i = int64(src)
	case float64:
		if math.IsNaN(src) || math.IsInf(src, 0) {
			return reflect.Value{}, errors.Conversion(path, v.Kind(), t.String(), "not a finite number")
		}
		if src >= float64(math.MaxInt64) || src < float64(math.MinInt64) {
			return reflect.Value{}, errors.Overflow(path, src, t.String())
		}
		// Truncates toward zero.
		i = int64(src)
	case string:
		return lexicalInt(src, v, t, path)
	case Date:
		return lexicalInt(string(src), v, t, path)
	default:
		return reflect.Value{}, errors.Conversion(path, v.Kind(), t.String(), "no integer form")
	}
	if out.OverflowInt(i) {
		return reflect.Value{}, errors.Overflow(path, i, t.String())
	}
	out.SetInt(i)
	return out, nil
}

func lexicalInt(s string, v Variant, t reflect.Type, path []string) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return reflect.Value{}, errors.Overflow(path, s, t.String())
		}
		return reflect.Value{}, errors.Conversion(path, v.Kind(), t.String(), "not an integer: "+strconv.Quote(s))
	}
	if out.OverflowInt(i) {
		return reflect.Value{}, errors.Overflow(path, i, t.String())
	}
	out.SetInt(i)
	return out, nil
}

func castUint(v Variant, t reflect.Type, path []string) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	var u uint64
	switch src := v.v.(type) {
	case bool:
		if src {
			u = 1
		}
	case int64:
		if src < 0 {
			return reflect.Value{}, errors.Overflow(path, src, t.String())
		}
		u = uint64(src)
	case uint64:
		u = src
	case float64:
		if math.IsNaN(src) || math.IsInf(src, 0) {
			return reflect.Value{}, errors.Conversion(path, v.Kind(), t.String(), "not a finite number")
		}
		if src < 0 || src >= float64(math.MaxUint64) {
			return reflect.Value{}, errors.Overflow(path, src, t.String())
		}
		u = uint64(src)
	case string:
		return lexicalUint(src, v, t, path)
	case Date:
		return lexicalUint(string(src), v, t, path)
	default:
		return reflect.Value{}, errors.Conversion(path, v.Kind(), t.String(), "no integer form")
	}
	if out.OverflowUint(u) {
		return reflect.Value{}, errors.Overflow(path, u, t.String())
	}
	out.SetUint(u)
	return out, nil
}

func lexicalUint(s string, v Variant, t reflect.Type, path []string) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return reflect.Value{}, errors.Overflow(path, s, t.String())
		}
		return reflect.Value{}, errors.Conversion(path, v.Kind(), t.String(), "not an unsigned integer: "+strconv.Quote(s))
	}
	if out.OverflowUint(u) {
		return reflect.Value{}, errors.Overflow(path, u, t.String())
	}
	out.SetUint(u)
	return out, nil
}

func castFloat(v Variant, t reflect.Type, path []string) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	var f float64
	switch src := v.v.(type) {
	case bool:
		if src {
			f = 1
		}
	case int64:
		f = float64(src)
	case uint64:
		f = float64(src)
	case float64:
		f = src
	case string:
		return lexicalFloat(src, v, t, path)
	case Date:
		return lexicalFloat(string(src), v, t, path)
	default:
		return reflect.Value{}, errors.Conversion(path, v.Kind(), t.String(), "no numeric form")
	}
	if out.OverflowFloat(f) {
		return reflect.Value{}, errors.Overflow(path, f, t.String())
	}
	out.SetFloat(f)
	return out, nil
}

func lexicalFloat(s string, v Variant, t reflect.Type, path []string) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return reflect.Value{}, errors.Overflow(path, s, t.String())
		}
		return reflect.Value{}, errors.Conversion(path, v.Kind(), t.String(), "not a number: "+strconv.Quote(s))
	}
	if out.OverflowFloat(f) {
		return reflect.Value{}, errors.Overflow(path, f, t.String())
	}
	out.SetFloat(f)
	return out, nil
}

func castString(v Variant, t reflect.Type, path []string) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	switch src := v.v.(type) {
	case string:
		out.SetString(src)
	case Date:
		out.SetString(string(src))
	case bool:
		out.SetString(strconv.FormatBool(src))
	case int64:
		out.SetString(strconv.FormatInt(src, 10))
	case uint64:
		out.SetString(strconv.FormatUint(src, 10))
	case float64:
		out.SetString(strconv.FormatFloat(src, 'g', -1, 64))
	default:
		return reflect.Value{}, errors.Conversion(path, v.Kind(), t.String(), "no string form")
	}
	return out, nil
}

func castSlice(v Variant, t reflect.Type, path []string) (reflect.Value, error) {
	l, ok := v.v.(List)
	if !ok {
		return reflect.Value{}, errors.Conversion(path, v.Kind(), t.String(), "not a list")
	}
	out := reflect.MakeSlice(t, len(l), len(l))
	for i, elem := range l {
		elemPath := append(append([]string{}, path...), "["+strconv.Itoa(i)+"]")
		ev, err := castValue(elem, t.Elem(), elemPath)
		if err != nil {
			return reflect.Value{}, err
		}
		out.Index(i).Set(ev)
	}
	return out, nil
}

func castMap(v Variant, t reflect.Type, path []string) (reflect.Value, error) {
	m, ok := v.v.(Map)
	if !ok {
		return reflect.Value{}, errors.Conversion(path, v.Kind(), t.String(), "not a map")
	}
	if t.Key().Kind() != reflect.String {
		return reflect.Value{}, errors.Conversion(path, v.Kind(), t.String(), "map keys must be strings")
	}
	out := reflect.MakeMapWithSize(t, len(m))
	for k, elem := range m {
		elemPath := append(append([]string{}, path...), k)
		ev, err := castValue(elem, t.Elem(), elemPath)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), ev)
	}
	return out, nil
}
