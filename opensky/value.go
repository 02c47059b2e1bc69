package opensky

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the scalar type held by a [Value].
type Kind uint8

const (
	// KindNull is an explicit JSON null, an absent index, or a non-scalar value.
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
)

// String returns the kind name used in logs and test output.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return "null"
	}
}

// Value is a single heterogeneous scalar taken from a state array.
//
// The zero Value is null. Only the field matching Kind is meaningful.
type Value struct {
	Kind Kind
	str  string
	i    int64
	f    float64
	b    bool
}

// Null returns a null [Value].
func Null() Value { return Value{} }

// String wraps s as a string [Value].
func String(s string) Value { return Value{Kind: KindString, str: s} }

// Int wraps n as an integer [Value].
func Int(n int64) Value { return Value{Kind: KindInt, i: n} }

// Float wraps f as a floating-point [Value].
func Float(f float64) Value { return Value{Kind: KindFloat, f: f} }

// Bool wraps b as a boolean [Value].
func Bool(b bool) Value { return Value{Kind: KindBool, b: b} }

// IsNull reports whether v carries no usable value.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// AsString returns the string held by v, if v is a string.
func (v Value) AsString() (string, bool) {
	return v.str, v.Kind == KindString
}

// AsInt returns the integer held by v, if v is an integral number. A float
// with no fractional part, such as 1700000000.0, counts as integral.
func (v Value) AsInt() (int64, bool) {
	switch v.Kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		// 2^63 itself is out of range, hence the strict upper bound
		if v.f == math.Trunc(v.f) && v.f >= math.MinInt64 && v.f < math.MaxInt64 {
			return int64(v.f), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// AsFloat returns v as a float64. Integral numbers are widened because JSON
// does not distinguish 11000 from 11000.0.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// AsBool returns the boolean held by v, if v is a boolean.
func (v Value) AsBool() (bool, bool) {
	return v.b, v.Kind == KindBool
}

// GoString renders v for %#v and test failure messages.
func (v Value) GoString() string {
	switch v.Kind {
	case KindString:
		return strconv.Quote(v.str)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "null"
	}
}

// UnmarshalJSON classifies a raw JSON token. It never fails for well-formed
// JSON: objects and arrays become null, and numbers without a fraction or
// exponent that fit in an int64 become [KindInt].
func (v *Value) UnmarshalJSON(data []byte) error {
	*v = parseValue(bytes.TrimSpace(data))
	return nil
}

// MarshalJSON writes v back in its wire form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.str)
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		return json.Marshal(v.f)
	case KindBool:
		return []byte(strconv.FormatBool(v.b)), nil
	default:
		return []byte("null"), nil
	}
}

func parseValue(data []byte) Value {
	if len(data) == 0 {
		return Null()
	}

	switch data[0] {
	case 'n', '{', '[':
		return Null()
	case 't':
		return Bool(true)
	case 'f':
		return Bool(false)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return Null()
		}
		return String(s)
	}

	text := string(data)
	if !bytes.ContainsAny(data, ".eE") {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return Int(n)
		}
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return Float(f)
	}
	return Null()
}

// RawRecord is one undecoded state array. Index past the end with [RawRecord.At].
type RawRecord []Value

// At returns the value at index i, or null when i is out of range.
func (r RawRecord) At(i int) Value {
	if i < 0 || i >= len(r) {
		return Null()
	}
	return r[i]
}

// UnmarshalJSON decodes a JSON array of scalars. Anything that is not an
// array decodes to an empty record so a single bad row never fails the
// whole response.
func (r *RawRecord) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		*r = RawRecord{}
		return nil
	}

	rec := make(RawRecord, len(items))
	for i, item := range items {
		rec[i] = parseValue(bytes.TrimSpace(item))
	}
	*r = rec
	return nil
}

// String renders the record for debug logging.
func (r RawRecord) String() string {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range r {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprint(&buf, v.GoString())
	}
	buf.WriteByte(']')
	return buf.String()
}
