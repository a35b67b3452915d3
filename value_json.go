package schemata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MarshalJSON renders Float values with a fractional part or exponent so
// that decoding them yields Float again.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindInteger, KindDateTime:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("schemata: cannot encode %v as JSON", v.f)
		}
		s := strconv.FormatFloat(v.f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return []byte(s), nil
	case KindBoolean:
		if v.b {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts strings, booleans and numbers. Numbers whose
// literal contains '.', 'e' or 'E' become Float, others Integer.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ValueFromJSON(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueFromJSON converts a value produced by a json.Decoder with UseNumber.
func ValueFromJSON(raw any) (Value, error) {
	switch x := raw.(type) {
	case string:
		return StringValue(x), nil
	case bool:
		return BooleanValue(x), nil
	case json.Number:
		return numberValue(string(x))
	case float64:
		return numberValue(strconv.FormatFloat(x, 'g', -1, 64))
	case nil:
		return Value{}, &Error{Type: ErrorTypeValidation, Code: ErrCodeInvalidJSON, Message: "null is not a field value"}
	default:
		return Value{}, &Error{Type: ErrorTypeValidation, Code: ErrCodeInvalidJSON, Message: fmt.Sprintf("unsupported JSON value of type %T", raw)}
	}
}

func numberValue(lit string) (Value, error) {
	if strings.ContainsAny(lit, ".eE") {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return Value{}, &Error{Type: ErrorTypeValidation, Code: ErrCodeInvalidJSON, Message: fmt.Sprintf("invalid number %s", lit), Cause: err}
		}
		return FloatValue(f), nil
	}
	i, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		return Value{}, &Error{Type: ErrorTypeValidation, Code: ErrCodeInvalidJSON, Message: fmt.Sprintf("integer %s out of range", lit), Cause: err}
	}
	return IntegerValue(i), nil
}

// RowFromJSON decodes a JSON object into a Row. Every member must be a
// string, boolean or number.
func RowFromJSON(data []byte) (Row, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, &Error{Type: ErrorTypeValidation, Code: ErrCodeInvalidJSON, Message: "body must be a JSON object", Cause: err}
	}
	if obj == nil {
		return nil, &Error{Type: ErrorTypeValidation, Code: ErrCodeInvalidJSON, Message: "body must be a JSON object"}
	}
	return RowFromMap(obj)
}

// RowFromMap converts an already decoded JSON object.
func RowFromMap(obj map[string]any) (Row, error) {
	row := make(Row, len(obj))
	for k, raw := range obj {
		v, err := ValueFromJSON(raw)
		if err != nil {
			if e, ok := err.(*Error); ok {
				return nil, e.WithField(k)
			}
			return nil, err
		}
		row[k] = v
	}
	return row, nil
}

// UnmarshalJSON implements json.Unmarshaler with the RowFromJSON rules.
func (r *Row) UnmarshalJSON(data []byte) error {
	row, err := RowFromJSON(data)
	if err != nil {
		return err
	}
	*r = row
	return nil
}
