package variant

import "encoding/json"

// FromJSON wraps the output of generic encoding/json decoding. It
// accepts the shapes json.Unmarshal produces into any (bool, float64,
// string, []any, map[string]any, nil) plus json.Number from decoders
// configured with UseNumber, which it narrows to int64 when the
// number has no fraction or exponent.
func FromJSON(v any) Variant {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return New(i)
		}
		if f, err := val.Float64(); err == nil {
			return New(f)
		}
		return New(val.String())
	case []any:
		out := make(List, len(val))
		for i, elem := range val {
			out[i] = FromJSON(elem)
		}
		return Variant{v: out}
	case map[string]any:
		out := make(Map, len(val))
		for k, elem := range val {
			out[k] = FromJSON(elem)
		}
		return Variant{v: out}
	default:
		return New(v)
	}
}

// JSON returns a value encoding/json can marshal. Void and null both
// become JSON null; dates become strings; lists and maps convert
// recursively.
func (v Variant) JSON() any {
	switch val := v.v.(type) {
	case nil, nullValue:
		return nil
	case Date:
		return string(val)
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = elem.JSON()
		}
		return out
	case Map:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = elem.JSON()
		}
		return out
	default:
		return val
	}
}
