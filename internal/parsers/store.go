package parsers

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/Benny93/fedgraph/internal/federation"
	"github.com/Benny93/fedgraph/internal/records"
)

// Root elements accepted for entity store documents.
var storeRoots = []string{"entityStoreData", "entityStore"}

const defaultCardinality = "*"

// XMLStoreParser decodes entity store XML documents.
type XMLStoreParser struct {
	opts Options
}

// NewXMLStoreParser creates an XML store parser.
func NewXMLStoreParser(opts Options) *XMLStoreParser {
	d := DefaultOptions()
	if opts.Sentinel == "" {
		opts.Sentinel = d.Sentinel
	}
	if opts.MarkerAttribute == "" {
		opts.MarkerAttribute = d.MarkerAttribute
	}
	if opts.NullReference == "" {
		opts.NullReference = d.NullReference
	}
	return &XMLStoreParser{opts: opts}
}

// Format returns the document format this parser handles.
func (p *XMLStoreParser) Format() string {
	return "xml"
}

// Parse decodes an entity store document.
func (p *XMLStoreParser) Parse(filePath string, content []byte) (*federation.Store, error) {
	doc, err := DecodeXML(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filePath, err)
	}
	store, err := p.Convert(StoreName(filePath), doc)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filePath, err)
	}
	return store, nil
}

// Convert turns a decoded document into a store.
func (p *XMLStoreParser) Convert(name string, doc records.Record) (*federation.Store, error) {
	var root records.Record
	for _, key := range storeRoots {
		if doc.Has(key) {
			root = doc.Child(key)
			break
		}
	}
	if root == nil {
		return nil, fmt.Errorf("%w: no entityStoreData root element", ErrMalformedStore)
	}

	store := &federation.Store{Name: name}
	for _, t := range root.Children("entityType") {
		store.EntityTypeDefs = append(store.EntityTypeDefs, p.entityType(name, t))
	}
	for _, e := range root.Children("entity") {
		store.EntityInstances = append(store.EntityInstances, p.entity(name, e))
	}
	return store, nil
}

func (p *XMLStoreParser) entityType(store string, t records.Record) federation.EntityTypeDef {
	def := federation.EntityTypeDef{
		Name:        t.Attr("name"),
		IsAbstract:  flag(t.Attr("abstract")),
		ExtendsName: t.Attr("extends"),
		StoreID:     store,
	}
	if def.ExtendsName == "" {
		def.ExtendsName = p.opts.Sentinel
	}

	for _, c := range t.Children("componentType") {
		def.Components = append(def.Components, federation.ComponentRef{
			TargetTypeName: c.Attr("name"),
			Cardinality:    cardinality(c),
		})
	}

	for _, f := range t.Children("field") {
		typ := f.Attr("type")
		switch {
		case strings.HasPrefix(typ, "@"), strings.HasPrefix(typ, "^"):
			def.ReferenceFields = append(def.ReferenceFields, federation.ReferenceFieldDef{
				FieldName:      f.Attr("name"),
				TargetTypeName: typ[1:],
				Cardinality:    cardinality(f),
				IsHard:         typ[0] == '@',
			})
		default:
			def.Fields = append(def.Fields, federation.FieldDef{
				Name:        f.Attr("name"),
				Type:        typ,
				Cardinality: cardinality(f),
			})
		}
	}
	return def
}

func (p *XMLStoreParser) entity(store string, e records.Record) federation.EntityInstance {
	inst := federation.EntityInstance{
		ID:        e.Attr("entityPK"),
		ParentID:  federation.NormalizeParent(e.Attr("parentPK"), p.opts.NullReference),
		TypeName:  e.Attr("type"),
		StoreID:   store,
		HasMarker: flag(e.Attr(p.opts.MarkerAttribute)),
	}

	for _, fv := range e.Children("fval") {
		field := federation.FieldValue{FieldName: fv.Attr("name")}
		if fv.Has("value") {
			for _, v := range fv.Children("value") {
				field.Values = append(field.Values, value(v))
			}
		} else if text := fv.Text(); text != "" {
			field.Values = append(field.Values, federation.LiteralValue(text))
		}
		inst.FieldValues = append(inst.FieldValues, field)
	}
	return inst
}

// value reads one <value> element: a key chain when it nests <key>
// elements, a literal otherwise.
func value(v records.Record) federation.Value {
	if !v.Has("key") {
		return federation.LiteralValue(strings.TrimSpace(v.Text()))
	}

	var hops []federation.Hop
	for key := v.Child("key"); key != nil; key = key.Child("key") {
		hop := federation.Hop{TargetTypeName: key.Attr("type")}
		for _, id := range key.Children("id") {
			hop.Keys = append(hop.Keys, federation.MatchKey{
				FieldName: id.Attr("field"),
				Value:     id.Attr("value"),
			})
		}
		hops = append(hops, hop)
	}
	return federation.ChainValue(hops...)
}

func cardinality(r records.Record) string {
	if c := r.Attr("cardinality"); c != "" {
		return c
	}
	return defaultCardinality
}
