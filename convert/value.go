package convert

import (
	"fmt"
	"math"
)

// Type identifies the variant held by a Value.
type Type uint8

// Value variants. The set is closed: every input format is normalised into
// one of these before serialization.
const (
	TypeNull Type = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	TypeArray
	TypeObject
)

func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeArray:
		return "array"
	case TypeObject:
		return "object"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Field is one key/value pair of an object. Objects keep their fields in
// source order.
type Field struct {
	Key   string
	Value Value
}

// Value is the structured value every parsed input is converted into.
// The zero Value is null.
type Value struct {
	typ    Type
	b      bool
	i      int64
	f      float64
	s      string
	items  []Value
	fields []Field
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{typ: TypeBool, b: b} }

// Int returns a 64-bit integer value.
func Int(i int64) Value { return Value{typ: TypeInt, i: i} }

// Float returns a 64-bit float value.
func Float(f float64) Value { return Value{typ: TypeFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{typ: TypeString, s: s} }

// Array returns an array value holding items.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{typ: TypeArray, items: items}
}

// Object returns an object value holding fields in the given order.
func Object(fields ...Field) Value {
	if fields == nil {
		fields = []Field{}
	}
	return Value{typ: TypeObject, fields: fields}
}

// Type returns the variant held by v.
func (v Value) Type() Type { return v.typ }

// Bool returns the boolean held by v.
func (v Value) Bool() bool { return v.b }

// Int returns the integer held by v.
func (v Value) Int() int64 { return v.i }

// Float returns the float held by v.
func (v Value) Float() float64 { return v.f }

// Str returns the string held by v.
func (v Value) Str() string { return v.s }

// Items returns the elements of an array value.
func (v Value) Items() []Value { return v.items }

// Fields returns the fields of an object value.
func (v Value) Fields() []Field { return v.fields }

// Get returns the value stored under key in an object.
func (v Value) Get(key string) (Value, bool) {
	for _, f := range v.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Equal reports whether v and other hold the same variant and contents.
// Floats compare bitwise so NaN equals itself.
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeNull:
		return true
	case TypeBool:
		return v.b == other.b
	case TypeInt:
		return v.i == other.i
	case TypeFloat:
		return math.Float64bits(v.f) == math.Float64bits(other.f)
	case TypeString:
		return v.s == other.s
	case TypeArray:
		if len(v.items) != len(other.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(other.items[i]) {
				return false
			}
		}
		return true
	case TypeObject:
		if len(v.fields) != len(other.fields) {
			return false
		}
		for i := range v.fields {
			if v.fields[i].Key != other.fields[i].Key || !v.fields[i].Value.Equal(other.fields[i].Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// GoString renders v as its compact JSON text, for test failure messages.
func (v Value) GoString() string {
	b, err := appendJSON(nil, v, 0)
	if err != nil {
		return fmt.Sprintf("<%s: %v>", v.typ, err)
	}
	return string(b)
}

// objectBuilder accumulates object fields, keeping first-seen key order and
// letting later duplicates overwrite the value.
type objectBuilder struct {
	fields []Field
	index  map[string]int
}

func newObjectBuilder(capacity int) *objectBuilder {
	return &objectBuilder{
		fields: make([]Field, 0, capacity),
		index:  make(map[string]int, capacity),
	}
}

func (b *objectBuilder) set(key string, value Value) {
	if i, ok := b.index[key]; ok {
		b.fields[i].Value = value
		return
	}
	b.index[key] = len(b.fields)
	b.fields = append(b.fields, Field{Key: key, Value: value})
}

func (b *objectBuilder) value() Value {
	return Object(b.fields...)
}
