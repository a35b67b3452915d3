package schemata

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind is the dynamic type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInteger
	KindFloat
	KindBoolean
	KindDateTime
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindDateTime:
		return "datetime"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a dynamically typed field value. DateTime values hold epoch
// seconds. The zero Value is Null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
}

func NullValue() Value { return Value{} }

func StringValue(s string) Value { return Value{kind: KindString, s: s} }

func IntegerValue(i int64) Value { return Value{kind: KindInteger, i: i} }

func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

func BooleanValue(b bool) Value { return Value{kind: KindBoolean, b: b} }

func DateTimeValue(epoch int64) Value { return Value{kind: KindDateTime, i: epoch} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload.
func (v Value) Str() (string, bool) {
	return v.s, v.kind == KindString
}

// Int returns the integer payload of Integer and DateTime values.
func (v Value) Int() (int64, bool) {
	return v.i, v.kind == KindInteger || v.kind == KindDateTime
}

// Float returns the payload of Float values, widening Integer.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInteger:
		return float64(v.i), true
	}
	return 0, false
}

// Bool returns the boolean payload.
func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == KindBoolean
}

// Interface returns the payload as a plain Go value: nil, string, int64,
// float64 or bool.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInteger, KindDateTime:
		return v.i
	case KindFloat:
		return v.f
	case KindBoolean:
		return v.b
	}
	return nil
}

// Equal compares kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == o.s
	case KindInteger, KindDateTime:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindBoolean:
		return v.b == o.b
	}
	return true
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.s)
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindDateTime:
		return "@" + strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.b)
	}
	return "null"
}

// Bounds of int64 as exact float64 values. maxInt64Float itself is out of range.
const (
	minInt64Float = -(1 << 63)
	maxInt64Float = 1 << 63
)

// Coerce converts v to the kind carried by fields of type t. Null stays
// Null. Numeric kinds convert between each other when no precision is
// lost; anything else must already match.
func (v Value) Coerce(t FieldType) (Value, error) {
	if v.kind == KindNull {
		return v, nil
	}
	want := t.Kind()
	if v.kind == want {
		return v, nil
	}
	switch want {
	case KindInteger, KindDateTime:
		var n int64
		switch v.kind {
		case KindInteger, KindDateTime:
			n = v.i
		case KindFloat:
			if v.f != math.Trunc(v.f) || v.f < minInt64Float || v.f >= maxInt64Float {
				return Value{}, fmt.Errorf("cannot convert %s to %s without loss", v, want)
			}
			n = int64(v.f)
		case KindBoolean:
			if v.b {
				n = 1
			}
		default:
			return Value{}, fmt.Errorf("cannot convert %s to %s", v, want)
		}
		return Value{kind: want, i: n}, nil
	case KindFloat:
		if f, ok := v.Float(); ok {
			return FloatValue(f), nil
		}
		if v.kind == KindDateTime {
			return FloatValue(float64(v.i)), nil
		}
	case KindBoolean:
		if v.kind == KindInteger {
			return BooleanValue(v.i != 0), nil
		}
	}
	return Value{}, fmt.Errorf("cannot convert %s to %s", v, want)
}

// Row is a record of named field values.
type Row map[string]Value

// ID returns the integer id carried by the row, if any.
func (r Row) ID() (int64, bool) {
	v, ok := r[ColumnID]
	if !ok || v.kind != KindInteger {
		return 0, false
	}
	return v.i, true
}

// Names returns field names in sorted order.
func (r Row) Names() []string {
	names := make([]string, 0, len(r))
	for k := range r {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Equal reports whether both rows hold the same names with equal values.
func (r Row) Equal(o Row) bool {
	if len(r) != len(o) {
		return false
	}
	for k, v := range r {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
