package value

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Payload values are structural documents: null, bool, number, string, list, or record.
// `nil` is treated as null everywhere in this package.
//
// A delta is a record with exactly one `@`-prefixed field (the tag). The tag field holds the
// head (e.g. `{"index": 3}`) and the `value` field holds the tail.
//     {"@update": {"index": 3}, "value": "on"}
//     {"@clear": null}
type Value = *structpb.Value

const TailField = "value"

func Null() Value {
	return structpb.NewNullValue()
}

func Text(s string) Value {
	return structpb.NewStringValue(s)
}

func Num(n float64) Value {
	return structpb.NewNumberValue(n)
}

func Int(n int) Value {
	return structpb.NewNumberValue(float64(n))
}

func Bool(b bool) Value {
	return structpb.NewBoolValue(b)
}

// Of converts a go value (nil, bool, numbers, string, []any, map[string]any) into a value.
func Of(v any) (Value, error) {
	switch w := v.(type) {
	case nil:
		return Null(), nil
	case *structpb.Value:
		return Normalize(w), nil
	default:
		return structpb.NewValue(v)
	}
}

func RequireOf(v any) Value {
	value, err := Of(v)
	if err != nil {
		panic(err)
	}
	return value
}

// Record builds a record from alternating key, value pairs.
func Record(keyValues ...any) Value {
	if len(keyValues)%2 != 0 {
		panic(fmt.Errorf("Record requires key value pairs (%d)", len(keyValues)))
	}
	fields := map[string]*structpb.Value{}
	for i := 0; i < len(keyValues); i += 2 {
		key, ok := keyValues[i].(string)
		if !ok {
			panic(fmt.Errorf("Record key must be a string (%T)", keyValues[i]))
		}
		fields[key] = RequireOf(keyValues[i+1])
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

func List(items ...Value) Value {
	values := make([]*structpb.Value, len(items))
	for i, item := range items {
		values[i] = Normalize(item)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

// Tagged builds a delta record `{"@<tag>": head, "value": tail}`. A nil tail is omitted.
func Tagged(tag string, head Value, tail Value) Value {
	if !strings.HasPrefix(tag, "@") {
		tag = "@" + tag
	}
	fields := map[string]*structpb.Value{
		tag: Normalize(head),
	}
	if tail != nil {
		fields[TailField] = tail
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

func Normalize(v Value) Value {
	if v == nil {
		return Null()
	}
	return v
}

func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.GetKind().(*structpb.Value_NullValue)
	return ok || v.GetKind() == nil
}

func IsText(v Value) bool {
	if v == nil {
		return false
	}
	_, ok := v.GetKind().(*structpb.Value_StringValue)
	return ok
}

func IsRecord(v Value) bool {
	if v == nil {
		return false
	}
	_, ok := v.GetKind().(*structpb.Value_StructValue)
	return ok
}

func TextOf(v Value) (string, bool) {
	if !IsText(v) {
		return "", false
	}
	return v.GetStringValue(), true
}

// IntOf reads an integral number. Non-numbers and fractional numbers are rejected.
func IntOf(v Value) (int, bool) {
	if v == nil {
		return 0, false
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	f := n.NumberValue
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func Equal(a Value, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	return proto.Equal(a, b)
}

// Get returns the field `key` of a record, or nil.
func Get(v Value, key string) Value {
	if !IsRecord(v) {
		return nil
	}
	return v.GetStructValue().GetFields()[key]
}

// Size is the number of fields of a record or items of a list. Null has size 0, any other
// scalar has size 1.
func Size(v Value) int {
	if IsNull(v) {
		return 0
	}
	switch w := v.GetKind().(type) {
	case *structpb.Value_StructValue:
		return len(w.StructValue.GetFields())
	case *structpb.Value_ListValue:
		return len(w.ListValue.GetValues())
	default:
		return 1
	}
}

// Tag returns the `@`-prefixed field name of a delta record, or "" when the value is not a
// delta (no tag field or more than one).
func Tag(v Value) string {
	if !IsRecord(v) {
		return ""
	}
	tag := ""
	for key := range v.GetStructValue().GetFields() {
		if strings.HasPrefix(key, "@") {
			if tag != "" {
				return ""
			}
			tag = key
		}
	}
	return tag
}

func Head(v Value) Value {
	tag := Tag(v)
	if tag == "" {
		return nil
	}
	return Get(v, tag)
}

// Tail is the carried value of a delta. For a record without a `value` field, the tail is the
// record minus its tag.
func Tail(v Value) Value {
	tag := Tag(v)
	if tag == "" {
		return nil
	}
	fields := v.GetStructValue().GetFields()
	if tail, ok := fields[TailField]; ok {
		return tail
	}
	if len(fields) == 1 {
		return nil
	}
	rest := map[string]*structpb.Value{}
	for key, field := range fields {
		if key != tag {
			rest[key] = field
		}
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: rest})
}

func Parse(text string) (Value, error) {
	v := &structpb.Value{}
	if err := protojson.Unmarshal([]byte(text), v); err != nil {
		return nil, err
	}
	return v, nil
}

func RequireParse(text string) Value {
	v, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the value as json with sorted keys.
func String(v Value) string {
	var b strings.Builder
	writeString(&b, Normalize(v))
	return b.String()
}

func writeString(b *strings.Builder, v Value) {
	switch w := v.GetKind().(type) {
	case *structpb.Value_StructValue:
		fields := w.StructValue.GetFields()
		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, key := range keys {
			if 0 < i {
				b.WriteByte(',')
			}
			writeString(b, Text(key))
			b.WriteByte(':')
			writeString(b, Normalize(fields[key]))
		}
		b.WriteByte('}')
	case *structpb.Value_ListValue:
		b.WriteByte('[')
		for i, item := range w.ListValue.GetValues() {
			if 0 < i {
				b.WriteByte(',')
			}
			writeString(b, Normalize(item))
		}
		b.WriteByte(']')
	default:
		out, err := protojson.Marshal(v)
		if err != nil {
			b.WriteString("null")
			return
		}
		b.Write(out)
	}
}
