// Package records holds the loosely typed record tree produced by decoding
// entity store XML.
//
// The source format does not say whether an element appears once or many
// times, so a child may be stored as a single Record or as a sequence of them.
// Every reader of such a field goes through List or Records instead of
// inspecting the container shape itself.
package records

import "fmt"

const (
	// AttributesKey holds the element's attributes.
	AttributesKey = "attributes"

	// TextKey holds character data of an element that also has attributes or
	// children.
	TextKey = "#text"
)

// Record is one decoded element. Child elements are stored under their tag
// name, attributes under AttributesKey and text under TextKey.
type Record map[string]any

// List returns v as an ordered sequence of zero, one or many items.
// Absent fields yield nil, sequences are returned as-is and anything else is
// wrapped in a one-element slice.
func List(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []Record:
		out := make([]any, len(t))
		for i, r := range t {
			out[i] = r
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

// Records is List for fields holding child elements. Text-only elements are
// wrapped so their text stays reachable through Text.
func Records(v any) []Record {
	items := List(v)
	if len(items) == 0 {
		return nil
	}

	out := make([]Record, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case Record:
			out = append(out, t)
		case map[string]any:
			out = append(out, Record(t))
		case string:
			out = append(out, Record{TextKey: t})
		case nil:
			out = append(out, Record{})
		default:
			out = append(out, Record{TextKey: fmt.Sprint(t)})
		}
	}
	return out
}

// Children returns the child elements stored under key.
func (r Record) Children(key string) []Record {
	if r == nil {
		return nil
	}
	return Records(r[key])
}

// Child returns the first child element stored under key, or nil.
func (r Record) Child(key string) Record {
	children := r.Children(key)
	if len(children) == 0 {
		return nil
	}
	return children[0]
}

// Has reports whether the record has a field under key.
func (r Record) Has(key string) bool {
	if r == nil {
		return false
	}
	_, ok := r[key]
	return ok
}

// Attr returns the named attribute, or "" when absent.
func (r Record) Attr(name string) string {
	if r == nil {
		return ""
	}
	switch attrs := r[AttributesKey].(type) {
	case Record:
		return stringOf(attrs[name])
	case map[string]any:
		return stringOf(attrs[name])
	case map[string]string:
		return attrs[name]
	}
	return ""
}

// Text returns the element's character data.
func (r Record) Text() string {
	if r == nil {
		return ""
	}
	return stringOf(r[TextKey])
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
