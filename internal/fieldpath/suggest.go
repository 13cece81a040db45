package fieldpath

import "sort"

// Schema describes the shape of an entity for authoring tools: its direct
// attributes and the schemas of its named relations.
type Schema interface {
	Fields() []string
	Relations() map[string]Schema
}

// SuggestPaths returns every addressable dotted path on schema: direct
// attributes plus up to maxDepth levels of related-entity attributes.
// Results are sorted for stable presentation in pickers.
func SuggestPaths(schema Schema, maxDepth int) []string {
	if schema == nil {
		return nil
	}
	var out []string
	collect(schema, "", maxDepth, &out)
	sort.Strings(out)
	return out
}

func collect(s Schema, prefix string, depth int, out *[]string) {
	for _, f := range s.Fields() {
		*out = append(*out, prefix+f)
	}
	if depth <= 0 {
		return
	}
	for name, rel := range s.Relations() {
		if rel == nil {
			continue
		}
		collect(rel, prefix+name+".", depth-1, out)
	}
}

// MapSchema is a Schema over a plain map shape, handy for tests and for
// trigger configurations that declare their fields inline.
type MapSchema struct {
	Attrs []string
	Rels  map[string]Schema
}

func (m MapSchema) Fields() []string             { return m.Attrs }
func (m MapSchema) Relations() map[string]Schema { return m.Rels }
