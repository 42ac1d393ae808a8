// Package codec implements component A: encoding/decoding of values between
// the wire-format tagged unions used by the KV dialects (one JSON object per
// attribute carrying its scalar/collection type tag, e.g. {"S":"hello"},
// {"N":"12"}, {"M":{...}}) and native Go scalars/collections used internally
// by the expression evaluator, path engine, and storage layer.
package codec

import (
	"encoding/base64"
	"encoding/json"
	"strconv"

	"github.com/local-web-services/ldk/internal/ldkerr"
)

// ScalarType enumerates the scalar types a table's key attributes may use.
type ScalarType string

const (
	ScalarString ScalarType = "S"
	ScalarNumber ScalarType = "N"
	ScalarBinary ScalarType = "B"
)

// Value is a tagged-union attribute value, mirroring the wire representation.
// Exactly one field is populated, selected by Tag.
type Value struct {
	Tag  string // S, N, B, BOOL, NULL, L, M, SS, NS, BS
	S    string
	N    string // decimal string, preserves precision on the wire
	B    []byte
	BOOL bool
	NULL bool
	L    []Value
	M    map[string]Value
	SS   []string
	NS   []string
	BS   [][]byte
}

// Item is a tagged-union row: attribute name -> Value.
type Item map[string]Value

// MarshalJSON renders a Value as its wire tagged-union object, e.g. {"S":"x"}.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Tag {
	case "S":
		return json.Marshal(map[string]string{"S": v.S})
	case "N":
		return json.Marshal(map[string]string{"N": v.N})
	case "B":
		return json.Marshal(map[string]string{"B": base64.StdEncoding.EncodeToString(v.B)})
	case "BOOL":
		return json.Marshal(map[string]bool{"BOOL": v.BOOL})
	case "NULL":
		return json.Marshal(map[string]bool{"NULL": true})
	case "L":
		return json.Marshal(map[string][]Value{"L": v.L})
	case "M":
		return json.Marshal(map[string]map[string]Value{"M": v.M})
	case "SS":
		return json.Marshal(map[string][]string{"SS": v.SS})
	case "NS":
		return json.Marshal(map[string][]string{"NS": v.NS})
	case "BS":
		ss := make([]string, len(v.BS))
		for i, b := range v.BS {
			ss[i] = base64.StdEncoding.EncodeToString(b)
		}
		return json.Marshal(map[string][]string{"BS": ss})
	default:
		return nil, ldkerr.Client("SerializationException", "unknown value tag "+v.Tag)
	}
}

// UnmarshalJSON parses a wire tagged-union object back into a Value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for tag, payload := range raw {
		v.Tag = tag
		switch tag {
		case "S":
			return json.Unmarshal(payload, &v.S)
		case "N":
			return json.Unmarshal(payload, &v.N)
		case "B":
			var s string
			if err := json.Unmarshal(payload, &s); err != nil {
				return err
			}
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return err
			}
			v.B = b
			return nil
		case "BOOL":
			return json.Unmarshal(payload, &v.BOOL)
		case "NULL":
			v.NULL = true
			return nil
		case "L":
			return json.Unmarshal(payload, &v.L)
		case "M":
			return json.Unmarshal(payload, &v.M)
		case "SS":
			return json.Unmarshal(payload, &v.SS)
		case "NS":
			return json.Unmarshal(payload, &v.NS)
		case "BS":
			var ss []string
			if err := json.Unmarshal(payload, &ss); err != nil {
				return err
			}
			v.BS = make([][]byte, len(ss))
			for i, s := range ss {
				b, err := base64.StdEncoding.DecodeString(s)
				if err != nil {
					return err
				}
				v.BS[i] = b
			}
			return nil
		}
	}
	return ldkerr.Client("SerializationException", "empty attribute value")
}

// ToNative converts a Value into a native Go representation suitable for the
// expression evaluator and path engine: string, float64-backed Number,
// []byte, bool, nil, []interface{}, or map[string]interface{}.
func (v Value) ToNative() interface{} {
	switch v.Tag {
	case "S":
		return v.S
	case "N":
		return Number(v.N)
	case "B":
		return v.B
	case "BOOL":
		return v.BOOL
	case "NULL":
		return nil
	case "L":
		out := make([]interface{}, len(v.L))
		for i, item := range v.L {
			out[i] = item.ToNative()
		}
		return out
	case "M":
		out := make(map[string]interface{}, len(v.M))
		for k, item := range v.M {
			out[k] = item.ToNative()
		}
		return out
	case "SS":
		out := make([]interface{}, len(v.SS))
		for i, s := range v.SS {
			out[i] = s
		}
		return out
	case "NS":
		out := make([]interface{}, len(v.NS))
		for i, n := range v.NS {
			out[i] = Number(n)
		}
		return out
	case "BS":
		out := make([]interface{}, len(v.BS))
		for i, b := range v.BS {
			out[i] = b
		}
		return out
	default:
		return nil
	}
}

// Number is a decimal-string-backed numeric value, preserving wire precision
// while still supporting arithmetic via the Float64 helper.
type Number string

// Float64 parses the number as a float64, returning 0 on failure.
func (n Number) Float64() float64 {
	f, _ := strconv.ParseFloat(string(n), 64)
	return f
}

// ItemToNative converts a whole Item into map[string]interface{}.
func ItemToNative(item Item) map[string]interface{} {
	out := make(map[string]interface{}, len(item))
	for k, v := range item {
		out[k] = v.ToNative()
	}
	return out
}

// FromNative converts a native Go value (as produced by json.Unmarshal into
// interface{}, or by the expression evaluator/path engine) into a tagged
// Value. Numbers arrive as float64 or json.Number from decoders; both are
// accepted.
func FromNative(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Value{Tag: "NULL", NULL: true}
	case string:
		return Value{Tag: "S", S: t}
	case Number:
		return Value{Tag: "N", N: string(t)}
	case json.Number:
		return Value{Tag: "N", N: string(t)}
	case float64:
		return Value{Tag: "N", N: strconv.FormatFloat(t, 'g', -1, 64)}
	case int:
		return Value{Tag: "N", N: strconv.Itoa(t)}
	case int64:
		return Value{Tag: "N", N: strconv.FormatInt(t, 10)}
	case bool:
		return Value{Tag: "BOOL", BOOL: t}
	case []byte:
		return Value{Tag: "B", B: t}
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, vv := range t {
			m[k] = FromNative(vv)
		}
		return Value{Tag: "M", M: m}
	case []interface{}:
		l := make([]Value, len(t))
		for i, vv := range t {
			l[i] = FromNative(vv)
		}
		return Value{Tag: "L", L: l}
	default:
		return Value{Tag: "NULL", NULL: true}
	}
}

// ItemFromNative converts a map[string]interface{} into an Item.
func ItemFromNative(m map[string]interface{}) Item {
	out := make(Item, len(m))
	for k, v := range m {
		out[k] = FromNative(v)
	}
	return out
}

// KeyString derives the scalar sort key used internally for a table's
// partition/sort key, per the declared ScalarType.
func KeyString(v Value, typ ScalarType) (string, error) {
	switch typ {
	case ScalarString:
		if v.Tag != "S" {
			return "", ldkerr.Client("ValidationException", "key attribute must be type S")
		}
		return v.S, nil
	case ScalarNumber:
		if v.Tag != "N" {
			return "", ldkerr.Client("ValidationException", "key attribute must be type N")
		}
		return v.N, nil
	case ScalarBinary:
		if v.Tag != "B" {
			return "", ldkerr.Client("ValidationException", "key attribute must be type B")
		}
		return base64.StdEncoding.EncodeToString(v.B), nil
	default:
		return "", ldkerr.Client("ValidationException", "unknown key scalar type")
	}
}
