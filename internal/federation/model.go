// Package federation defines the typed input model of a federation: entity
// stores with their entity-type definitions and entity instances.
//
// Values of these types are produced once per imported archive and are
// read-only for the graph builders.
package federation

import "time"

// DefaultSentinel is the implicit base type every lineage ends in.
const DefaultSentinel = "Entity"

// DefaultNullReference is the literal the source format uses for "no target"
// and "no parent".
const DefaultNullReference = "-1"

// NormalizeParent maps the top-level parent markers "", "0" and nullRef to
// the empty parent id.
func NormalizeParent(parentID, nullRef string) string {
	if nullRef == "" {
		nullRef = DefaultNullReference
	}
	switch parentID {
	case "0", nullRef:
		return ""
	}
	return parentID
}

// ComponentRef is a composition link from a type to a component type.
type ComponentRef struct {
	// TargetTypeName is the name of the composed type.
	TargetTypeName string

	// Cardinality is the declared multiplicity ("1", "*", ...).
	Cardinality string
}

// ReferenceFieldDef declares a reference field on an entity type.
type ReferenceFieldDef struct {
	// FieldName is the field carrying the reference on instances.
	FieldName string

	// TargetTypeName is the referenced type.
	TargetTypeName string

	// Cardinality is the declared multiplicity.
	Cardinality string

	// IsHard marks references that are mandatory for integrity.
	IsHard bool
}

// FieldDef is a plain (non-reference) field declaration.
type FieldDef struct {
	Name        string
	Type        string
	Cardinality string
}

// EntityTypeDef is one entity-type definition of a store.
type EntityTypeDef struct {
	// Name is the type name, unique within a federation.
	Name string

	// IsAbstract marks types that cannot be instantiated.
	IsAbstract bool

	// ExtendsName is the parent type, or the sentinel for top-level types.
	ExtendsName string

	// Components lists composed sub-object types.
	Components []ComponentRef

	// ReferenceFields lists the reference fields declared on this type only.
	ReferenceFields []ReferenceFieldDef

	// Fields lists the remaining declared fields.
	Fields []FieldDef

	// StoreID is the name of the owning store.
	StoreID string
}

// MatchKey is one (field, value) pair a key-chain hop matches on.
type MatchKey struct {
	FieldName string
	Value     string
}

// Hop is one step of a key chain. A well-formed hop has exactly one key.
type Hop struct {
	TargetTypeName string
	Keys           []MatchKey
}

// Single returns the hop's only key. It reports false when the hop carries
// zero or several keys.
func (h Hop) Single() (MatchKey, bool) {
	if len(h.Keys) != 1 {
		return MatchKey{}, false
	}
	return h.Keys[0], true
}

// KeyChain addresses an instance through a sequence of hops, starting at the
// top level of the instance tree.
type KeyChain struct {
	Hops []Hop
}

// ValueKind tells how a raw field value is encoded.
type ValueKind int

const (
	ValueEmpty ValueKind = iota
	ValueLiteral
	ValueKeyChain
)

// Value is one raw field value: a literal, a key chain, or nothing.
type Value struct {
	Kind    ValueKind
	Literal string
	Chain   KeyChain
}

// LiteralValue returns a literal value.
func LiteralValue(s string) Value {
	if s == "" {
		return Value{Kind: ValueEmpty}
	}
	return Value{Kind: ValueLiteral, Literal: s}
}

// ChainValue returns a key-chain value made of the given hops.
func ChainValue(hops ...Hop) Value {
	return Value{Kind: ValueKeyChain, Chain: KeyChain{Hops: hops}}
}

// IsEmpty reports whether the value carries nothing.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case ValueLiteral:
		return v.Literal == ""
	case ValueKeyChain:
		return false
	default:
		return true
	}
}

// FieldValue holds the values an instance carries for one field. Fields with
// multi-valued cardinality carry several values.
type FieldValue struct {
	FieldName string
	Values    []Value
}

// EntityInstance is one concrete record of an entity type.
type EntityInstance struct {
	// ID is the instance's primary key.
	ID string

	// ParentID is the containing instance; empty for top-level instances.
	ParentID string

	// TypeName is the governing entity type.
	TypeName string

	// StoreID is the name of the owning store.
	StoreID string

	// HasMarker is set when the source flags the instance (finalizer).
	HasMarker bool

	// FieldValues lists the field values in source order.
	FieldValues []FieldValue
}

// IsTopLevel reports whether the instance has no parent.
func (e *EntityInstance) IsTopLevel() bool {
	return e.ParentID == ""
}

// Field returns the first field value with the given name.
func (e *EntityInstance) Field(name string) (FieldValue, bool) {
	for _, fv := range e.FieldValues {
		if fv.FieldName == name {
			return fv, true
		}
	}
	return FieldValue{}, false
}

// Literal returns the first literal value of the named field, or "".
func (e *EntityInstance) Literal(name string) string {
	fv, ok := e.Field(name)
	if !ok {
		return ""
	}
	for _, v := range fv.Values {
		if v.Kind == ValueLiteral && v.Literal != "" {
			return v.Literal
		}
	}
	return ""
}

// Store is a named schema and data unit.
type Store struct {
	Name            string
	EntityTypeDefs  []EntityTypeDef
	EntityInstances []EntityInstance
}

// Federation is an imported archive: an ordered list of stores.
type Federation struct {
	ID   string
	Name string
	// Digest identifies the archive content the stores were decoded from.
	Digest     string
	Stores     []Store
	ImportedAt time.Time
}

// Summary describes a stored federation without its records.
type Summary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Digest      string    `json:"digest,omitempty"`
	Stores      []string  `json:"stores"`
	EntityTypes int       `json:"entityTypes"`
	Entities    int       `json:"entities"`
	ImportedAt  time.Time `json:"importedAt"`
}

// Summary returns the federation's summary.
func (f *Federation) Summary() Summary {
	s := Summary{
		ID:         f.ID,
		Name:       f.Name,
		Digest:     f.Digest,
		Stores:     make([]string, 0, len(f.Stores)),
		ImportedAt: f.ImportedAt,
	}
	for _, store := range f.Stores {
		s.Stores = append(s.Stores, store.Name)
		s.EntityTypes += len(store.EntityTypeDefs)
		s.Entities += len(store.EntityInstances)
	}
	return s
}
