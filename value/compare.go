package value

import (
	"cmp"
	"sort"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"
)

// Compare returns an integer comparing two values.
// The result will be 0 if a==b, -1 if a < b, and +1 if a > b.
// Order: null < bool < number < string < list < record
func Compare(a Value, b Value) int {
	a = Normalize(a)
	b = Normalize(b)

	rankA := rank(a)
	rankB := rank(b)
	if rankA != rankB {
		return cmp.Compare(rankA, rankB)
	}

	switch w := a.GetKind().(type) {
	case *structpb.Value_BoolValue:
		x := w.BoolValue
		y := b.GetBoolValue()
		if x == y {
			return 0
		}
		if !x {
			return -1
		}
		return 1
	case *structpb.Value_NumberValue:
		return cmp.Compare(w.NumberValue, b.GetNumberValue())
	case *structpb.Value_StringValue:
		return strings.Compare(w.StringValue, b.GetStringValue())
	case *structpb.Value_ListValue:
		return compareLists(w.ListValue.GetValues(), b.GetListValue().GetValues())
	case *structpb.Value_StructValue:
		return compareRecords(w.StructValue.GetFields(), b.GetStructValue().GetFields())
	default:
		return 0
	}
}

func rank(v Value) int {
	switch v.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return 0
	case *structpb.Value_BoolValue:
		return 1
	case *structpb.Value_NumberValue:
		return 2
	case *structpb.Value_StringValue:
		return 3
	case *structpb.Value_ListValue:
		return 4
	case *structpb.Value_StructValue:
		return 5
	}
	return 100
}

func compareLists(a []*structpb.Value, b []*structpb.Value) int {
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i += 1 {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

// records compare field by field in key order
func compareRecords(a map[string]*structpb.Value, b map[string]*structpb.Value) int {
	keysA := sortedKeys(a)
	keysB := sortedKeys(b)
	minLen := min(len(keysA), len(keysB))
	for i := 0; i < minLen; i += 1 {
		if c := strings.Compare(keysA[i], keysB[i]); c != 0 {
			return c
		}
		if c := Compare(a[keysA[i]], b[keysB[i]]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(keysA), len(keysB))
}

func sortedKeys(fields map[string]*structpb.Value) []string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
