package jsonutil

import (
	"bytes"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"unicode/utf8"
)

const maxDepth = 512

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parse decodes a single JSON document into a Value. Duplicate object keys,
// invalid UTF-8, a byte-order mark and trailing data are rejected.
func Parse(data []byte) (Value, error) {
	if bytes.HasPrefix(data, utf8BOM) {
		return Value{}, encodingErrorf("byte-order mark not allowed")
	}
	if !utf8.Valid(data) {
		return Value{}, encodingErrorf("input is not valid UTF-8")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := parseValue(dec, 0)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, encodingErrorf("trailing data after JSON value")
	}
	return v, nil
}

func parseValue(dec *json.Decoder, depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, encodingErrorf("nesting deeper than %d", maxDepth)
	}
	tok, err := dec.Token()
	if err != nil {
		return Value{}, encodingErrorf("decode: %v", err)
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(string(t))
	case json.Delim:
		switch t {
		case '{':
			members := make(map[string]Value)
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, encodingErrorf("decode key: %v", err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, encodingErrorf("object key is %T", keyTok)
				}
				if _, dup := members[key]; dup {
					return Value{}, encodingErrorf("duplicate object key %q", key)
				}
				member, err := parseValue(dec, depth+1)
				if err != nil {
					return Value{}, err
				}
				members[key] = member
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, encodingErrorf("decode: %v", err)
			}
			return Value{kind: KindObject, obj: members}, nil
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := parseValue(dec, depth+1)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, encodingErrorf("decode: %v", err)
			}
			return Value{kind: KindArray, arr: items}, nil
		}
	}
	return Value{}, encodingErrorf("unexpected token %v", tok)
}

// MarshalJSON renders the canonical form of v.
func (v Value) MarshalJSON() ([]byte, error) {
	return Canonicalize(v)
}

// UnmarshalJSON decodes data with Parse.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

var (
	valueType         = reflect.TypeOf(Value{})
	numberType        = reflect.TypeOf(json.Number(""))
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// FromAny converts a Go value into a Value. Supported inputs are nil, bool,
// strings, integer and float kinds, json.Number, slices and arrays, maps with
// string keys, pointers and interfaces to those, and types that marshal
// themselves with encoding/json (structs, time.Time). NaN, ±Inf, []byte,
// non-string map keys, channels, functions, complex numbers and cyclic
// references fail with an encoding error.
func FromAny(v any) (Value, error) {
	return fromReflect(reflect.ValueOf(v), map[uintptr]bool{}, 0)
}

// MustFromAny is FromAny for fixed literals; it panics on error.
func MustFromAny(v any) Value {
	val, err := FromAny(v)
	if err != nil {
		panic(err)
	}
	return val
}

func fromReflect(rv reflect.Value, visiting map[uintptr]bool, depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, encodingErrorf("nesting deeper than %d", maxDepth)
	}
	if !rv.IsValid() {
		return Null(), nil
	}
	t := rv.Type()
	switch {
	case t == valueType:
		return rv.Interface().(Value), nil
	case t == numberType:
		return Number(rv.String())
	}

	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
		return fromReflect(rv.Elem(), visiting, depth+1)
	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		if t.Elem() == valueType {
			return rv.Elem().Interface().(Value), nil
		}
		if t.Implements(jsonMarshalerType) {
			return viaEncodingJSON(rv)
		}
		addr := rv.Pointer()
		if visiting[addr] {
			return Value{}, encodingErrorf("cyclic reference through %s", t)
		}
		visiting[addr] = true
		defer delete(visiting, addr)
		return fromReflect(rv.Elem(), visiting, depth+1)
	}

	if t.Implements(jsonMarshalerType) {
		return viaEncodingJSON(rv)
	}

	switch rv.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Value{kind: KindNumber, s: strconv.FormatUint(rv.Uint(), 10)}, nil
	case reflect.Float32:
		// Go through the shortest float32 text so 0.1f stays "0.1".
		f, _ := strconv.ParseFloat(strconv.FormatFloat(rv.Float(), 'g', -1, 32), 64)
		return Float(f)
	case reflect.Float64:
		return Float(rv.Float())
	case reflect.Slice:
		if rv.IsNil() {
			return Null(), nil
		}
		if t.Elem().Kind() == reflect.Uint8 {
			return Value{}, encodingErrorf("ambiguous []byte payload")
		}
		addr := rv.Pointer()
		if rv.Len() > 0 && visiting[addr] {
			return Value{}, encodingErrorf("cyclic reference through %s", t)
		}
		visiting[addr] = true
		defer delete(visiting, addr)
		return arrayFrom(rv, visiting, depth)
	case reflect.Array:
		return arrayFrom(rv, visiting, depth)
	case reflect.Map:
		if rv.IsNil() {
			return Null(), nil
		}
		if t.Key().Kind() != reflect.String {
			return Value{}, encodingErrorf("map key type %s is not string", t.Key())
		}
		addr := rv.Pointer()
		if visiting[addr] {
			return Value{}, encodingErrorf("cyclic reference through %s", t)
		}
		visiting[addr] = true
		defer delete(visiting, addr)
		members := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m, err := fromReflect(iter.Value(), visiting, depth+1)
			if err != nil {
				return Value{}, err
			}
			members[iter.Key().String()] = m
		}
		return Value{kind: KindObject, obj: members}, nil
	case reflect.Struct:
		return viaEncodingJSON(rv)
	}
	if t.Implements(textMarshalerType) {
		return viaEncodingJSON(rv)
	}
	return Value{}, encodingErrorf("unsupported type %s", t)
}

func arrayFrom(rv reflect.Value, visiting map[uintptr]bool, depth int) (Value, error) {
	items := make([]Value, rv.Len())
	for i := range items {
		item, err := fromReflect(rv.Index(i), visiting, depth+1)
		if err != nil {
			return Value{}, err
		}
		items[i] = item
	}
	return Value{kind: KindArray, arr: items}, nil
}

func viaEncodingJSON(rv reflect.Value) (Value, error) {
	raw, err := json.Marshal(rv.Interface())
	if err != nil {
		return Value{}, encodingErrorf("marshal %s: %v", rv.Type(), err)
	}
	v, err := Parse(raw)
	if err != nil {
		return Value{}, fmt.Errorf("reparse %s: %w", rv.Type(), err)
	}
	return v, nil
}
