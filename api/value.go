package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// Kind identifies the concrete shape held by a Value.
type Kind uint8

// Value kinds. The zero Value is KindNull.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a self-describing payload value. Transaction attributes and
// operations are schema-free, so every leaf carries its own kind and
// serializes without reflection.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	m    map[string]Value
}

// Attributes is a schema-free attribute, operation or query map.
type Attributes map[string]Value

// Null returns the explicit null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps an integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a floating point number.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List wraps a list of values. The slice is copied.
func List(items ...Value) Value {
	return Value{kind: KindList, list: append([]Value{}, items...)}
}

// Map wraps attributes. The map is copied shallowly.
func Map(attrs Attributes) Value {
	m := make(map[string]Value, len(attrs))
	for k, v := range attrs {
		m[k] = v
	}
	return Value{kind: KindMap, m: m}
}

// ValueOf converts a native Go value into a Value. Supported inputs are nil,
// booleans, all integer and float kinds, strings, json.Number, json.RawMessage,
// Value, Attributes, Ref, Class, Timestamp, and slices or string-keyed maps of those.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case *Value:
		if x == nil {
			return Null(), nil
		}
		return *x, nil
	case Attributes:
		return Map(x), nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case Ref:
		return String(string(x)), nil
	case Class:
		return String(string(x)), nil
	case Timestamp:
		return Int(int64(x)), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return Float(float64(x)), nil
		}
		return Int(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Float(float64(x)), nil
		}
		return Int(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case json.Number:
		return numberValue(x)
	case json.RawMessage:
		var out Value
		if err := out.UnmarshalJSON(x); err != nil {
			return Value{}, err
		}
		return out, nil
	case []any:
		items := make([]Value, 0, len(x))
		for i, item := range x {
			conv, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items = append(items, conv)
		}
		return Value{kind: KindList, list: items}, nil
	case map[string]any:
		attrs, err := AttributesOf(x)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindMap, m: attrs}, nil
	}
	return reflectValue(reflect.ValueOf(v))
}

func reflectValue(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
		return ValueOf(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		items := make([]Value, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			conv, err := ValueOf(rv.Index(i).Interface())
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items = append(items, conv)
		}
		return Value{kind: KindList, list: items}, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		m := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			conv, err := ValueOf(iter.Value().Interface())
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", iter.Key().String(), err)
			}
			m[iter.Key().String()] = conv
		}
		return Value{kind: KindMap, m: m}, nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	}
	return Value{}, fmt.Errorf("unsupported value type %s", rv.Type())
}

// MustValueOf is ValueOf for literals known to be convertible. It panics on error.
func MustValueOf(v any) Value {
	out, err := ValueOf(v)
	if err != nil {
		panic(err)
	}
	return out
}

// AttributesOf converts a native string-keyed map into Attributes.
func AttributesOf(in map[string]any) (Attributes, error) {
	out := make(Attributes, len(in))
	for k, v := range in {
		conv, err := ValueOf(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = conv
	}
	return out, nil
}

func numberValue(n json.Number) (Value, error) {
	if i, err := n.Int64(); err == nil {
		return Int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return Value{}, fmt.Errorf("invalid number %q", n.String())
	}
	return Float(f), nil
}

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the explicit null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer held by v. Floats with no fractional part convert.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		if v.f == math.Trunc(v.f) && math.Abs(v.f) < 1<<63 {
			return int64(v.f), true
		}
	}
	return 0, false
}

// AsFloat returns the number held by v as a float64.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsList returns a copy of the list held by v.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return append([]Value{}, v.list...), true
}

// AsMap returns a copy of the map held by v.
func (v Value) AsMap() (Attributes, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return Attributes(v.m).Clone(), true
}

// Interface converts v into plain Go values: nil, bool, int64, float64,
// string, []any and map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		return Attributes(v.m).Interface()
	}
	return nil
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			items[i] = item.Clone()
		}
		return Value{kind: KindList, list: items}
	case KindMap:
		return Value{kind: KindMap, m: Attributes(v.m).Clone()}
	}
	return v
}

// Equal reports deep equality. Ints and floats compare by kind, so 1 != 1.0.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return Attributes(v.m).Equal(Attributes(o.m))
	}
	return false
}

func (v Value) String() string {
	data, err := v.MarshalJSON()
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return string(data)
}

// MarshalJSON encodes v recursively. Map keys are written in sorted order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return fmt.Errorf("api: cannot encode %v as JSON", v.f)
		}
		data, err := json.Marshal(v.f)
		if err != nil {
			return err
		}
		buf.Write(data)
		// Integral floats keep a fraction so they decode back as KindFloat.
		if !bytes.ContainsAny(data, ".eE") {
			buf.WriteString(".0")
		}
	case KindString:
		data, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(data)
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		return Attributes(v.m).encode(buf)
	default:
		return fmt.Errorf("api: unknown value kind %d", v.kind)
	}
	return nil
}

// UnmarshalJSON decodes any JSON document into v. Integral numbers that fit
// int64 decode as KindInt, every other number as KindFloat.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	conv, err := fromDecoded(raw)
	if err != nil {
		return err
	}
	*v = conv
	return nil
}

func fromDecoded(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case json.Number:
		return numberValue(x)
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			conv, err := fromDecoded(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = conv
		}
		return Value{kind: KindList, list: items}, nil
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, item := range x {
			conv, err := fromDecoded(item)
			if err != nil {
				return Value{}, err
			}
			m[k] = conv
		}
		return Value{kind: KindMap, m: m}, nil
	}
	return Value{}, fmt.Errorf("api: unexpected decoded type %T", raw)
}

// Clone returns a deep copy of the attributes. Nil stays nil.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v.Clone()
	}
	return out
}

// Equal reports deep equality of two attribute maps.
func (a Attributes) Equal(o Attributes) bool {
	if len(a) != len(o) {
		return false
	}
	for k, v := range a {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Interface converts the attributes to a plain map[string]any.
func (a Attributes) Interface() map[string]any {
	out := make(map[string]any, len(a))
	for k, v := range a {
		out[k] = v.Interface()
	}
	return out
}

// Set stores v under key after converting it with ValueOf.
func (a Attributes) Set(key string, v any) error {
	conv, err := ValueOf(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	a[key] = conv
	return nil
}

// MarshalJSON encodes the attributes with sorted keys. Nil encodes as {}.
func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := a.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a Attributes) encode(buf *bytes.Buffer) error {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := a[k].encode(buf); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// UnmarshalJSON decodes a JSON object into the attributes.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	switch v.kind {
	case KindNull:
		*a = nil
		return nil
	case KindMap:
		*a = Attributes(v.m)
		return nil
	}
	return fmt.Errorf("api: attributes must be a JSON object, got %s", v.kind)
}
