package builder

import (
	"strconv"

	"github.com/Benny93/fedgraph/internal/colors"
	"github.com/Benny93/fedgraph/internal/diagnostics"
	"github.com/Benny93/fedgraph/internal/federation"
	"github.com/Benny93/fedgraph/internal/graph"
	"github.com/Benny93/fedgraph/internal/hierarchy"
	"github.com/Benny93/fedgraph/internal/resolver"
)

// BuildInstanceGraph emits one node per entity instance, a component edge to
// each instance's parent, and one reference edge per resolved reference.
// Instances are combined across stores in store order; that order is the
// tie break for key-chain resolution.
func BuildInstanceGraph(stores []federation.Store, h *hierarchy.Hierarchy, opts Options, diags *diagnostics.Collector) *graph.Graph {
	opts = opts.withDefaults()
	if diags == nil {
		diags = diagnostics.NewCollector(opts.Logger)
	}

	instances := combineInstances(stores, opts.NullReference, diags)
	g := graph.New()

	storeIndex := make(map[string]int, len(stores))
	for i, s := range stores {
		if _, ok := storeIndex[s.Name]; !ok {
			storeIndex[s.Name] = i
		}
	}

	for i := range instances {
		e := &instances[i]
		idx := storeIndex[e.StoreID]
		g.AddNode(&graph.GraphNode{
			ID:         e.ID,
			Label:      instanceLabel(e, opts),
			GroupKey:   e.StoreID,
			ColorIndex: idx,
			DomainSize: len(stores),
			Color:      colors.Assign(idx, len(stores)),
			Kind:       graph.NodeInstance,
			IsRoot:     e.IsTopLevel(),
			HasMarker:  e.HasMarker,
			Properties: map[string]any{
				"type":     e.TypeName,
				"store":    e.StoreID,
				"parentId": e.ParentID,
			},
		})
	}

	for i := range instances {
		e := &instances[i]
		if e.IsTopLevel() {
			continue
		}
		if !g.HasNode(e.ParentID) {
			diags.Warn(diagnostics.CodeUnknownParent,
				diagnostics.Context{Store: e.StoreID, Type: e.TypeName, Instance: e.ID, Target: e.ParentID},
				"instance %s has unknown parent %s", e.ID, e.ParentID)
			continue
		}
		g.AddEdge(&graph.GraphEdge{
			ID:           graph.GenerateEdgeID(graph.EdgeComponent, e.ID, e.ParentID, ""),
			Kind:         graph.EdgeComponent,
			Source:       e.ID,
			Target:       e.ParentID,
			Weight:       opts.Weights.Parent,
			DisplayColor: colors.WithAlpha(g.GetNode(e.ID).Color, opts.EdgeAlpha),
		})
	}

	r := resolver.New(h, instances, resolver.Options{NullReference: opts.NullReference}, diags)
	ordinals := make(map[string]int)
	for i := range instances {
		e := &instances[i]
		for _, ref := range r.Resolve(e) {
			if !g.HasNode(ref.TargetID) {
				diags.Info(diagnostics.CodeDanglingReference,
					diagnostics.Context{Store: e.StoreID, Type: e.TypeName, Instance: e.ID, Field: ref.FieldName, Target: ref.TargetID},
					"reference %s.%s points at missing instance %s", e.ID, ref.FieldName, ref.TargetID)
				continue
			}

			key := e.ID + "\x00" + ref.FieldName
			n := ordinals[key]
			ordinals[key] = n + 1

			g.AddEdge(&graph.GraphEdge{
				ID:           graph.GenerateEdgeID(graph.EdgeReference, e.ID, ref.TargetID, ref.FieldName+"."+strconv.Itoa(n)),
				Kind:         graph.EdgeReference,
				Source:       e.ID,
				Target:       ref.TargetID,
				Label:        ref.FieldName,
				IsHard:       ref.IsHard,
				Weight:       opts.Weights.reference(ref.IsHard),
				DisplayColor: colors.WithAlpha(g.GetNode(e.ID).Color, opts.EdgeAlpha),
				Properties: map[string]any{
					"cardinality": ref.Cardinality,
					"keyChain":    ref.ViaKeyChain,
				},
			})
		}
	}
	return g
}

// combineInstances flattens the instances of all stores, attributing each to
// its store, mapping top-level parent markers to no parent, and dropping
// instances without an id and repeated ids after the first.
func combineInstances(stores []federation.Store, nullRef string, diags *diagnostics.Collector) []federation.EntityInstance {
	var out []federation.EntityInstance
	seen := make(map[string]string)
	for _, s := range stores {
		for _, e := range s.EntityInstances {
			if e.StoreID == "" {
				e.StoreID = s.Name
			}
			e.ParentID = federation.NormalizeParent(e.ParentID, nullRef)
			if e.ID == "" {
				diags.Warn(diagnostics.CodeMissingInstanceID,
					diagnostics.Context{Store: e.StoreID, Type: e.TypeName},
					"instance of type %s in store %s has no id", e.TypeName, e.StoreID)
				continue
			}
			if first, dup := seen[e.ID]; dup {
				diags.Warn(diagnostics.CodeDuplicateInstance,
					diagnostics.Context{Store: e.StoreID, Type: e.TypeName, Instance: e.ID, Detail: "first defined in " + first},
					"instance %s is defined more than once", e.ID)
				continue
			}
			seen[e.ID] = e.StoreID
			out = append(out, e)
		}
	}
	return out
}

// instanceLabel is the first name-like field, cut to the configured length,
// followed by the type in parentheses. Without a name it is the type alone.
func instanceLabel(e *federation.EntityInstance, opts Options) string {
	for _, field := range opts.NameFields {
		name := e.Literal(field)
		if name == "" {
			continue
		}
		if runes := []rune(name); len(runes) > opts.LabelMaxLength {
			name = string(runes[:opts.LabelMaxLength])
		}
		return name + " (" + e.TypeName + ")"
	}
	if e.TypeName == "" {
		return e.ID
	}
	return e.TypeName
}
