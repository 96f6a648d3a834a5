package api

import (
	"encoding/json"
	"math"
	"testing"
)

func TestValueJSONRoundTripNested(t *testing.T) {
	t.Parallel()

	in := Attributes{
		"title":    String("Plan"),
		"archived": Bool(false),
		"rank":     Int(42),
		"ratio":    Float(0.25),
		"estimate": Float(2),
		"offset":   Float(-3),
		"parent":   Null(),
		"tags":     List(String("a"), Int(1), Null()),
		"nested":   Map(Attributes{"deep": List(Map(Attributes{"x": Int(-7)}))}),
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	const want = `{"archived":false,"estimate":2.0,"nested":{"deep":[{"x":-7}]},"offset":-3.0,"parent":null,"rank":42,"ratio":0.25,"tags":["a",1,null],"title":"Plan"}`
	if string(data) != want {
		t.Fatalf("unexpected encoding:\n got %s\nwant %s", data, want)
	}
	var out Attributes
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Equal(in) {
		t.Fatalf("round trip mismatch: %v", out)
	}
}

func TestValueNumberKinds(t *testing.T) {
	t.Parallel()

	var v Value
	if err := json.Unmarshal([]byte(`[1, 1.5, 9223372036854775807, 1e300]`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	items, ok := v.AsList()
	if !ok || len(items) != 4 {
		t.Fatalf("expected list of 4, got %v", v)
	}
	wantKinds := []Kind{KindInt, KindFloat, KindInt, KindFloat}
	for i, k := range wantKinds {
		if items[i].Kind() != k {
			t.Fatalf("item %d: expected %s, got %s", i, k, items[i].Kind())
		}
	}
	if n, ok := items[2].AsInt(); !ok || n != math.MaxInt64 {
		t.Fatalf("unexpected max int %d", n)
	}
}

func TestValueOfNatives(t *testing.T) {
	t.Parallel()

	v, err := ValueOf(map[string]any{
		"a": 1,
		"b": []string{"x", "y"},
		"c": map[string]int{"n": 2},
		"d": nil,
		"e": Ref("doc-1"),
		"f": json.Number("3.5"),
	})
	if err != nil {
		t.Fatalf("ValueOf: %v", err)
	}
	got, _ := json.Marshal(v)
	const want = `{"a":1,"b":["x","y"],"c":{"n":2},"d":null,"e":"doc-1","f":3.5}`
	if string(got) != want {
		t.Fatalf("unexpected encoding %s", got)
	}
	if _, err := ValueOf(struct{}{}); err == nil {
		t.Fatal("expected error for struct input")
	}
	if _, err := ValueOf(map[int]string{1: "x"}); err == nil {
		t.Fatal("expected error for non-string map keys")
	}
}

func TestValueRejectsNonFinite(t *testing.T) {
	t.Parallel()

	if _, err := json.Marshal(Float(math.NaN())); err == nil {
		t.Fatal("expected NaN to fail encoding")
	}
}

func TestAttributesCloneIsDeep(t *testing.T) {
	t.Parallel()

	inner := Attributes{"k": String("v")}
	orig := Attributes{"m": Map(inner), "l": List(Int(1))}
	clone := orig.Clone()
	m, _ := clone["m"].AsMap()
	m["k"] = String("changed")
	clone["m"] = Map(m)
	if got, _ := orig["m"].AsMap(); !got["k"].Equal(String("v")) {
		t.Fatalf("clone mutated original: %v", orig)
	}
}

func TestAttributesUnmarshalRejectsNonObject(t *testing.T) {
	t.Parallel()

	var a Attributes
	if err := json.Unmarshal([]byte(`[1,2]`), &a); err == nil {
		t.Fatal("expected error for array input")
	}
	if err := json.Unmarshal([]byte(`null`), &a); err != nil || a != nil {
		t.Fatalf("expected nil attributes for null, got %v (%v)", a, err)
	}
}

func TestValueInterface(t *testing.T) {
	t.Parallel()

	v := Map(Attributes{"n": Int(3), "l": List(Bool(true), Null())})
	plain, ok := v.Interface().(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", v.Interface())
	}
	if plain["n"] != int64(3) {
		t.Fatalf("unexpected n %#v", plain["n"])
	}
	l := plain["l"].([]any)
	if l[0] != true || l[1] != nil {
		t.Fatalf("unexpected list %#v", l)
	}
}
