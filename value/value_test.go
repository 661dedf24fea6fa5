package value

import (
	"sort"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestEqual(t *testing.T) {
	assert.Equal(t, Equal(nil, Null()), true)
	assert.Equal(t, Equal(nil, Text("")), false)
	assert.Equal(t, Equal(Text("on"), Text("on")), true)
	assert.Equal(t, Equal(Int(1), Num(1.0)), true)
	assert.Equal(t, Equal(Int(1), Text("1")), false)

	a := Record("name", "kitchen", "level", 3, "tags", []any{"a", "b"})
	b := RequireParse(`{"tags": ["a", "b"], "level": 3, "name": "kitchen"}`)
	assert.Equal(t, Equal(a, b), true)
	assert.Equal(t, Equal(a, Record("name", "kitchen")), false)
}

func TestCompare(t *testing.T) {
	ordered := []Value{
		Null(),
		Bool(false),
		Bool(true),
		Int(-1),
		Num(2.5),
		Text("a"),
		Text("b"),
		List(Int(1)),
		List(Int(1), Int(2)),
		Record("a", 1),
		Record("a", 2),
		Record("b", 0),
	}
	for i := range ordered {
		for j := range ordered {
			c := Compare(ordered[i], ordered[j])
			switch {
			case i < j:
				assert.Equal(t, c, -1)
			case j < i:
				assert.Equal(t, c, 1)
			default:
				assert.Equal(t, c, 0)
			}
		}
	}

	shuffled := []Value{Text("b"), Int(3), Null(), Int(1), Text("a")}
	sort.SliceStable(shuffled, func(i, j int) bool {
		return Compare(shuffled[i], shuffled[j]) < 0
	})
	assert.Equal(t, String(List(shuffled...)), `[null,1,3,"a","b"]`)
}

func TestTagged(t *testing.T) {
	update := Tagged("update", Record("index", 3), Text("on"))
	assert.Equal(t, Tag(update), "@update")
	index, ok := IntOf(Get(Head(update), "index"))
	assert.Equal(t, ok, true)
	assert.Equal(t, index, 3)
	assert.Equal(t, Equal(Tail(update), Text("on")), true)

	clear := Tagged("@clear", nil, nil)
	assert.Equal(t, Tag(clear), "@clear")
	assert.Equal(t, Size(clear), 1)
	assert.Equal(t, Tail(clear), nil)

	// a tagged record without a value field carries its remaining fields
	switchOn := RequireParse(`{"@switch": null, "level": 100}`)
	assert.Equal(t, Tag(switchOn), "@switch")
	assert.Equal(t, Equal(Tail(switchOn), Record("level", 100)), true)

	// two tags is not a delta
	assert.Equal(t, Tag(RequireParse(`{"@a": 1, "@b": 2}`)), "")
	assert.Equal(t, Tag(Text("@a")), "")
}

func TestIntOf(t *testing.T) {
	n, ok := IntOf(Int(7))
	assert.Equal(t, ok, true)
	assert.Equal(t, n, 7)

	_, ok = IntOf(Num(1.5))
	assert.Equal(t, ok, false)
	_, ok = IntOf(Text("1"))
	assert.Equal(t, ok, false)
	_, ok = IntOf(nil)
	assert.Equal(t, ok, false)
}

func TestPath(t *testing.T) {
	v := RequireParse(`{"profile": {"name": "ada", "address": {"city": "london"}}}`)
	assert.Equal(t, Equal(GetPath(v, "profile.name"), Text("ada")), true)
	assert.Equal(t, Equal(GetPath(v, "profile.address.city"), Text("london")), true)
	assert.Equal(t, GetPath(v, "profile.missing"), nil)
	assert.Equal(t, GetPath(Text("x"), "profile"), nil)

	_, err := ParsePath("")
	assert.NotEqual(t, err, nil)
	_, err = ParsePath("a..b")
	assert.NotEqual(t, err, nil)
}

func TestString(t *testing.T) {
	v := Record("b", 1, "a", []any{true, nil, "x"})
	assert.Equal(t, String(v), `{"a":[true,null,"x"],"b":1}`)
	assert.Equal(t, String(nil), "null")
}
