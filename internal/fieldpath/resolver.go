// Package fieldpath navigates dotted paths ("user.profile.email") through
// heterogeneous nested data: string-keyed maps, entities exposing the Accessor
// capability, and lazily materialized relations.
package fieldpath

import "strings"

// Accessor is the capability an entity implements to expose named attributes
// without runtime introspection.
type Accessor interface {
	// Field returns the attribute value by name. The second return is false
	// when the entity has no such attribute.
	Field(name string) (any, bool)
}

// RelationResolver is the optional capability for entities whose related
// records load lazily. Relation is only consulted on non-terminal path
// segments, so resolving "order.customer.email" materializes the customer
// record while "order.customer" reads it as a plain attribute.
type RelationResolver interface {
	Relation(name string) (any, bool)
}

// Resolve walks path segment by segment through source.
//
// It returns (nil, false) the instant any segment is unresolvable. A present
// attribute holding nil and an invalid path are indistinguishable to callers;
// both read as "no value".
func Resolve(path string, source any) (any, bool) {
	if path == "" {
		return nil, false
	}
	return resolve(strings.Split(path, "."), source)
}

func resolve(segments []string, current any) (any, bool) {
	for i, seg := range segments {
		terminal := i == len(segments)-1

		next, ok := step(seg, current, terminal)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// step resolves one segment. Relations are tried first on non-terminal
// segments; the terminal segment is always a plain attribute read.
func step(seg string, current any, terminal bool) (any, bool) {
	if current == nil {
		return nil, false
	}
	if !terminal {
		if rr, ok := current.(RelationResolver); ok {
			if v, ok := rr.Relation(seg); ok {
				return v, true
			}
		}
	}
	switch src := current.(type) {
	case Accessor:
		return src.Field(seg)
	case map[string]any:
		v, ok := src[seg]
		return v, ok
	case map[string]string:
		v, ok := src[seg]
		return v, ok
	}
	return nil, false
}

// ResolveFirst resolves path against each source in order and returns the
// first hit. Used when an event carries several data items and the path does
// not say which one it addresses.
func ResolveFirst(path string, sources []any) (any, bool) {
	for _, src := range sources {
		if v, ok := Resolve(path, src); ok {
			return v, true
		}
	}
	return nil, false
}
