// Package resolver turns the reference field values of entity instances into
// target instance ids.
//
// A value either names its target literally or encodes a key chain: a
// sequence of (type, field, value) hops walked from the top of the instance
// tree down to the target.
package resolver

import (
	"errors"
	"fmt"

	"github.com/Benny93/fedgraph/internal/diagnostics"
	"github.com/Benny93/fedgraph/internal/federation"
	"github.com/Benny93/fedgraph/internal/hierarchy"
)

var (
	// ErrEmptyKeyChain is returned for a key chain without hops.
	ErrEmptyKeyChain = errors.New("key chain has no hops")

	// ErrMultiKeyHop is returned for a hop that does not carry exactly one
	// (field, value) pair.
	ErrMultiKeyHop = errors.New("hop does not carry exactly one match key")

	// ErrUnresolved is returned when no instance matches a hop.
	ErrUnresolved = errors.New("no instance matches hop")
)

// DefaultNullReference is the literal the source format uses for "no target".
const DefaultNullReference = federation.DefaultNullReference

// Reference is one resolved reference of an instance.
type Reference struct {
	SourceID       string
	TargetID       string
	FieldName      string
	TargetTypeName string
	Cardinality    string
	IsHard         bool

	// ViaKeyChain is false when the target id was given literally.
	ViaKeyChain bool
}

// Options configures a Resolver.
type Options struct {
	// NullReference is a literal value treated as unset. Defaults to
	// DefaultNullReference.
	NullReference string
}

type lookupKey struct {
	parent   string
	typeName string
	field    string
	value    string
}

// Resolver resolves references against one combined instance set. It is not
// safe for concurrent use.
type Resolver struct {
	hier  *hierarchy.Hierarchy
	opts  Options
	diags *diagnostics.Collector

	// index maps a (parent, type, field, value) tuple to the first matching
	// instance in input order.
	index  map[lookupKey]string
	fields map[string][]federation.ReferenceFieldDef
}

// New indexes instances for hop lookups. The order of instances defines the
// tie break between several instances matching the same hop.
func New(h *hierarchy.Hierarchy, instances []federation.EntityInstance, opts Options, diags *diagnostics.Collector) *Resolver {
	if diags == nil {
		diags = diagnostics.NewCollector(nil)
	}
	if opts.NullReference == "" {
		opts.NullReference = DefaultNullReference
	}

	r := &Resolver{
		hier:   h,
		opts:   opts,
		diags:  diags,
		index:  make(map[lookupKey]string),
		fields: make(map[string][]federation.ReferenceFieldDef),
	}

	for i := range instances {
		inst := &instances[i]
		for _, fv := range inst.FieldValues {
			for _, v := range fv.Values {
				if v.Kind != federation.ValueLiteral {
					continue
				}
				key := lookupKey{
					parent:   federation.NormalizeParent(inst.ParentID, opts.NullReference),
					typeName: inst.TypeName,
					field:    fv.FieldName,
					value:    v.Literal,
				}
				if _, taken := r.index[key]; !taken {
					r.index[key] = inst.ID
				}
			}
		}
	}
	return r
}

// ReferenceFields returns the reference fields of a type including inherited
// ones, subtype declarations first. A field name declared again by an
// ancestor keeps the subtype's declaration.
func (r *Resolver) ReferenceFields(typeName string) []federation.ReferenceFieldDef {
	if cached, ok := r.fields[typeName]; ok {
		return cached
	}

	var out []federation.ReferenceFieldDef
	seen := make(map[string]bool)
	for _, name := range r.hier.Ancestry(typeName) {
		def := r.hier.Def(name)
		if def == nil {
			continue
		}
		for _, f := range def.ReferenceFields {
			if f.FieldName == "" || seen[f.FieldName] {
				continue
			}
			seen[f.FieldName] = true
			out = append(out, f)
		}
	}
	r.fields[typeName] = out
	return out
}

// ResolveChain walks a key chain from the top level of the instance tree and
// returns the id of the instance the last hop lands on.
func (r *Resolver) ResolveChain(chain federation.KeyChain) (string, error) {
	if len(chain.Hops) == 0 {
		return "", ErrEmptyKeyChain
	}

	current := ""
	for i, hop := range chain.Hops {
		key, ok := hop.Single()
		if !ok {
			return "", fmt.Errorf("hop %d (%s, %d keys): %w", i+1, hop.TargetTypeName, len(hop.Keys), ErrMultiKeyHop)
		}
		id, found := r.index[lookupKey{parent: current, typeName: hop.TargetTypeName, field: key.FieldName, value: key.Value}]
		if !found {
			return "", fmt.Errorf("hop %d (%s.%s=%q): %w", i+1, hop.TargetTypeName, key.FieldName, key.Value, ErrUnresolved)
		}
		current = id
	}
	return current, nil
}

// Resolve returns the references of one instance. Absent fields are skipped
// silently. Fields present without a value are reported at info level and
// unresolvable ones as warnings; both are skipped.
func (r *Resolver) Resolve(e *federation.EntityInstance) []Reference {
	if r.hier.Def(e.TypeName) == nil {
		r.diags.Warn(diagnostics.CodeUnknownInstanceType,
			diagnostics.Context{Store: e.StoreID, Type: e.TypeName, Instance: e.ID},
			"instance %s has unknown type %s", e.ID, e.TypeName)
		return nil
	}

	var refs []Reference
	for _, field := range r.ReferenceFields(e.TypeName) {
		fv, ok := e.Field(field.FieldName)
		if !ok {
			continue
		}
		if len(fv.Values) == 0 {
			r.unset(e, field.FieldName, "")
			continue
		}
		for _, v := range fv.Values {
			ref := Reference{
				SourceID:       e.ID,
				FieldName:      field.FieldName,
				TargetTypeName: field.TargetTypeName,
				Cardinality:    field.Cardinality,
				IsHard:         field.IsHard,
			}

			switch v.Kind {
			case federation.ValueLiteral:
				if v.Literal == "" || v.Literal == r.opts.NullReference {
					r.unset(e, field.FieldName, v.Literal)
					continue
				}
				ref.TargetID = v.Literal
			case federation.ValueKeyChain:
				id, err := r.ResolveChain(v.Chain)
				if err != nil {
					r.report(e, field.FieldName, err)
					continue
				}
				ref.TargetID = id
				ref.ViaKeyChain = true
			default:
				r.unset(e, field.FieldName, "")
				continue
			}
			refs = append(refs, ref)
		}
	}
	return refs
}

// ResolveAll resolves every instance in order.
func (r *Resolver) ResolveAll(instances []federation.EntityInstance) []Reference {
	var refs []Reference
	for i := range instances {
		refs = append(refs, r.Resolve(&instances[i])...)
	}
	return refs
}

func (r *Resolver) unset(e *federation.EntityInstance, field, literal string) {
	r.diags.Info(diagnostics.CodeUnsetReference,
		diagnostics.Context{Store: e.StoreID, Type: e.TypeName, Instance: e.ID, Field: field, Detail: literal},
		"reference %s.%s has no value", e.ID, field)
}

func (r *Resolver) report(e *federation.EntityInstance, field string, err error) {
	ctx := diagnostics.Context{Store: e.StoreID, Type: e.TypeName, Instance: e.ID, Field: field, Detail: err.Error()}
	switch {
	case errors.Is(err, ErrMultiKeyHop):
		r.diags.Warn(diagnostics.CodeMultiKeyHop, ctx, "reference %s.%s uses a multi-key hop", e.ID, field)
	case errors.Is(err, ErrEmptyKeyChain):
		r.diags.Warn(diagnostics.CodeEmptyKeyChain, ctx, "reference %s.%s has an empty key chain", e.ID, field)
	default:
		r.diags.Warn(diagnostics.CodeUnresolvedReference, ctx, "reference %s.%s did not resolve", e.ID, field)
	}
}
