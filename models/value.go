package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind identifies which variant a MetaValue holds.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindObject
)

// MetaValue is a metadata value as returned by an upstream provider: a scalar,
// a list, or a nested object. It round-trips losslessly through JSON (numbers
// kept as json.Number, object field order preserved) so the store can persist
// any provider payload without coercing it to a string.
type MetaValue struct {
	Kind   ValueKind
	Str    string
	Num    json.Number
	Bool   bool
	List   []MetaValue
	Fields []MetaField
}

// MetaField is a single key/value pair inside an object-valued MetaValue.
type MetaField struct {
	Key   string
	Value MetaValue
}

func Null() MetaValue                  { return MetaValue{Kind: KindNull} }
func NewString(s string) MetaValue     { return MetaValue{Kind: KindString, Str: s} }
func NewNumber(n json.Number) MetaValue { return MetaValue{Kind: KindNumber, Num: n} }
func NewBool(b bool) MetaValue         { return MetaValue{Kind: KindBool, Bool: b} }
func NewList(vs ...MetaValue) MetaValue { return MetaValue{Kind: KindList, List: vs} }
func NewObject(fields ...MetaField) MetaValue {
	return MetaValue{Kind: KindObject, Fields: fields}
}

// NewInt wraps an integer as a number value.
func NewInt(n int64) MetaValue {
	return MetaValue{Kind: KindNumber, Num: json.Number(strconv.FormatInt(n, 10))}
}

// IsNull reports whether the value is the null variant.
func (v MetaValue) IsNull() bool { return v.Kind == KindNull }

// AsInt returns the value as an int64 if it is a whole number.
func (v MetaValue) AsInt() (int64, bool) {
	if v.Kind != KindNumber {
		return 0, false
	}
	n, err := v.Num.Int64()
	if err != nil {
		return 0, false
	}
	return n, true
}

// AsString returns the string variant's payload.
func (v MetaValue) AsString() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// Field returns the value stored under key in an object-valued MetaValue.
func (v MetaValue) Field(key string) (MetaValue, bool) {
	if v.Kind != KindObject {
		return MetaValue{}, false
	}
	for _, f := range v.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return MetaValue{}, false
}

// MarshalJSON emits the canonical encoding: object fields in insertion order,
// numbers verbatim.
func (v MetaValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		if v.Num == "" {
			return []byte("0"), nil
		}
		return []byte(v.Num), nil
	case KindBool:
		return json.Marshal(v.Bool)
	case KindList:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.List {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindObject:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, f := range v.Fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(f.Key)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			b, err := f.Value.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.Kind)
	}
}

// UnmarshalJSON parses any JSON value into the matching variant.
func (v *MetaValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func decodeValue(dec *json.Decoder) (MetaValue, error) {
	tok, err := dec.Token()
	if err != nil {
		return MetaValue{}, err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (MetaValue, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case string:
		return NewString(t), nil
	case json.Number:
		return NewNumber(t), nil
	case bool:
		return NewBool(t), nil
	case json.Delim:
		switch t {
		case '[':
			list := []MetaValue{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return MetaValue{}, err
				}
				list = append(list, item)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return MetaValue{}, err
			}
			return MetaValue{Kind: KindList, List: list}, nil
		case '{':
			fields := []MetaField{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return MetaValue{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return MetaValue{}, fmt.Errorf("object key is %T, not string", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return MetaValue{}, err
				}
				fields = append(fields, MetaField{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return MetaValue{}, err
			}
			return MetaValue{Kind: KindObject, Fields: fields}, nil
		}
	}
	return MetaValue{}, fmt.Errorf("unexpected JSON token %v", tok)
}

// EncodeValue returns the canonical string form stored in the database.
func EncodeValue(v MetaValue) (string, error) {
	b, err := v.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeValue parses a stored canonical string back into a MetaValue.
func DecodeValue(s string) (MetaValue, error) {
	var v MetaValue
	if err := v.UnmarshalJSON([]byte(s)); err != nil {
		return MetaValue{}, err
	}
	return v, nil
}

// MetadataMap holds an item's metadata keyed by metadata key.
type MetadataMap map[string]MetaValue
