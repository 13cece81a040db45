package fieldpath

import (
	"reflect"
	"testing"
)

// entity implements Accessor and RelationResolver for tests.
type entity struct {
	attrs     map[string]any
	relations map[string]any
}

func (e *entity) Field(name string) (any, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func (e *entity) Relation(name string) (any, bool) {
	v, ok := e.relations[name]
	return v, ok
}

func TestResolve(t *testing.T) {
	nested := map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c": 5,
			},
		},
	}

	user := &entity{
		attrs: map[string]any{"email": "sam@example.com", "profile": "inline"},
		relations: map[string]any{
			"profile": &entity{attrs: map[string]any{"city": "Lisboa"}},
		},
	}

	cases := []struct {
		name   string
		path   string
		source any
		want   any
		found  bool
	}{
		{"nested map hit", "a.b.c", nested, 5, true},
		{"nested map miss", "a.x.c", nested, nil, false},
		{"single segment", "a", map[string]any{"a": "v"}, "v", true},
		{"empty path", "", nested, nil, false},
		{"nil source", "a", nil, nil, false},
		{"string map", "k", map[string]string{"k": "v"}, "v", true},
		{"accessor attribute", "email", user, "sam@example.com", true},
		{"relation traversal", "profile.city", user, "Lisboa", true},
		{"terminal segment reads attribute not relation", "profile", user, "inline", true},
		{"unknown attribute", "missing", user, nil, false},
		{"scalar mid-path", "a.b.c.d", nested, nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, found := Resolve(tc.path, tc.source)
			if found != tc.found {
				t.Fatalf("Resolve(%q) found = %v, want %v", tc.path, found, tc.found)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Resolve(%q) = %v, want %v", tc.path, got, tc.want)
			}
		})
	}
}

func TestResolveFirst(t *testing.T) {
	sources := []any{
		map[string]any{"name": "first"},
		map[string]any{"name": "second", "only_second": true},
	}

	if v, ok := ResolveFirst("name", sources); !ok || v != "first" {
		t.Fatalf("ResolveFirst(name) = %v, %v; want first, true", v, ok)
	}
	if v, ok := ResolveFirst("only_second", sources); !ok || v != true {
		t.Fatalf("ResolveFirst(only_second) = %v, %v; want true, true", v, ok)
	}
	if _, ok := ResolveFirst("absent", sources); ok {
		t.Fatal("ResolveFirst(absent) should miss")
	}
}

func TestSuggestPaths(t *testing.T) {
	schema := MapSchema{
		Attrs: []string{"id", "name"},
		Rels: map[string]Schema{
			"customer": MapSchema{
				Attrs: []string{"email"},
				Rels: map[string]Schema{
					"address": MapSchema{Attrs: []string{"city"}},
				},
			},
		},
	}

	got := SuggestPaths(schema, 1)
	want := []string{"customer.email", "id", "name"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SuggestPaths depth 1 = %v, want %v", got, want)
	}

	got = SuggestPaths(schema, 2)
	want = []string{"customer.address.city", "customer.email", "id", "name"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SuggestPaths depth 2 = %v, want %v", got, want)
	}

	if paths := SuggestPaths(nil, 3); paths != nil {
		t.Fatalf("SuggestPaths(nil) = %v, want nil", paths)
	}
}
