// Package jsonutil implements the canonical JSON value model used for
// content addressing: a closed set of value kinds, a deterministic encoder,
// and a strict decoder.
package jsonutil

import (
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is an immutable JSON value. The zero Value is null.
//
// Numbers are stored as their canonical decimal text, so two numbers are
// equal exactly when their canonical renderings are equal.
type Value struct {
	kind Kind
	b    bool
	s    string
	arr  []Value
	obj  map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// String returns a string value. UTF-8 validity is checked at encode time.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int returns an integer number value.
func Int(i int64) Value { return Value{kind: KindNumber, s: strconv.FormatInt(i, 10)} }

// Float returns a number value for f, or an encoding error for NaN and ±Inf.
func Float(f float64) (Value, error) {
	text, err := formatFloat(f)
	if err != nil {
		return Value{}, err
	}
	return Value{kind: KindNumber, s: text}, nil
}

// Number returns a number value from a JSON number literal, normalized to
// its canonical form.
func Number(literal string) (Value, error) {
	text, err := canonicalNumber(literal)
	if err != nil {
		return Value{}, err
	}
	return Value{kind: KindNumber, s: text}, nil
}

// Array returns an array holding a copy of items.
func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, arr: cp}
}

// Object returns an object holding a copy of members.
func Object(members map[string]Value) Value {
	cp := make(map[string]Value, len(members))
	for k, v := range members {
		cp[k] = v
	}
	return Value{kind: KindObject, obj: cp}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// NumberText returns the canonical decimal text of a number value.
func (v Value) NumberText() (string, bool) {
	if v.kind != KindNumber {
		return "", false
	}
	return v.s, true
}

// Float64 returns the number held by v as a float64.
func (v Value) Float64() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.s, 64)
	return f, err == nil
}

// Int64 returns the number held by v when it is an integer that fits int64.
func (v Value) Int64() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	i, err := strconv.ParseInt(v.s, 10, 64)
	return i, err == nil
}

// Len returns the number of array items or object members.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	default:
		return 0
	}
}

// Items returns a copy of the array items.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	cp := make([]Value, len(v.arr))
	copy(cp, v.arr)
	return cp
}

// Index returns the i-th array item.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Value{}, false
	}
	return v.arr[i], true
}

// Keys returns object member names in canonical (byte-wise) order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the named object member.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	m, ok := v.obj[key]
	return m, ok
}

// Lookup resolves a dot-separated member path such as "selection.strategy_id".
func (v Value) Lookup(path string) (Value, bool) {
	cur := v
	for _, part := range strings.Split(path, ".") {
		next, ok := cur.Get(part)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// With returns a copy of the object v with key set to member.
// A non-object v is treated as an empty object.
func (v Value) With(key string, member Value) Value {
	out := make(map[string]Value, len(v.obj)+1)
	if v.kind == KindObject {
		for k, m := range v.obj {
			out[k] = m
		}
	}
	out[key] = member
	return Value{kind: KindObject, obj: out}
}

// Without returns a copy of the object v with key removed.
func (v Value) Without(key string) Value {
	if v.kind != KindObject {
		return v
	}
	if _, ok := v.obj[key]; !ok {
		return v
	}
	out := make(map[string]Value, len(v.obj))
	for k, m := range v.obj {
		if k != key {
			out[k] = m
		}
	}
	return Value{kind: KindObject, obj: out}
}

// SetPath returns a copy of v with the dot-separated path set to member,
// creating intermediate objects. It fails when an intermediate member exists
// but is not an object.
func (v Value) SetPath(path string, member Value) (Value, error) {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		if v.kind != KindObject && v.kind != KindNull {
			return Value{}, encodingErrorf("set %q on %s", path, v.kind)
		}
		return v.With(head, member), nil
	}
	child, ok := v.Get(head)
	if ok && child.kind != KindObject {
		return Value{}, encodingErrorf("member %q is %s, not object", head, child.kind)
	}
	updated, err := child.SetPath(rest, member)
	if err != nil {
		return Value{}, err
	}
	return v.With(head, updated), nil
}

// WithoutPath returns a copy of v with the dot-separated path removed.
// Missing paths leave v unchanged.
func (v Value) WithoutPath(path string) Value {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		return v.Without(head)
	}
	child, ok := v.Get(head)
	if !ok || child.kind != KindObject {
		return v
	}
	return v.With(head, child.WithoutPath(rest))
}

// Equal reports whether v and o are semantically identical.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber, KindString:
		return v.s == o.s
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, m := range v.obj {
			om, ok := o.obj[k]
			if !ok || !m.Equal(om) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders v as canonical JSON, or a placeholder if it cannot be encoded.
func (v Value) String() string {
	b, err := Canonicalize(v)
	if err != nil {
		return "<invalid: " + err.Error() + ">"
	}
	return string(b)
}
