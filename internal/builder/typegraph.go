package builder

import (
	"strconv"

	"github.com/Benny93/fedgraph/internal/colors"
	"github.com/Benny93/fedgraph/internal/diagnostics"
	"github.com/Benny93/fedgraph/internal/graph"
	"github.com/Benny93/fedgraph/internal/hierarchy"
)

// BuildTypeGraph emits one node per entity type and its extends, component
// and reference edges. Edges to unknown types are kept and flagged as
// unresolved.
func BuildTypeGraph(h *hierarchy.Hierarchy, opts Options, diags *diagnostics.Collector) *graph.Graph {
	opts = opts.withDefaults()
	if diags == nil {
		diags = diagnostics.NewCollector(opts.Logger)
	}

	g := graph.New()
	domain := h.MaxDomainIndex()

	for _, n := range h.Nodes() {
		props := map[string]any{
			"abstract":        n.Def.IsAbstract,
			"store":           n.Def.StoreID,
			"rootDomainIndex": n.RootDomainIndex,
			"parent":          n.ParentName,
		}
		if n.RootTypeName != "" {
			props["rootType"] = n.RootTypeName
		}
		g.AddNode(&graph.GraphNode{
			ID:         n.TypeName,
			Label:      n.TypeName,
			GroupKey:   n.Def.StoreID,
			ColorIndex: n.RootDomainIndex,
			DomainSize: domain,
			Color:      colors.Assign(n.RootDomainIndex, domain),
			Kind:       graph.NodeType,
			IsRoot:     n.IsRoot(),
			Properties: props,
		})
	}

	for _, n := range h.Nodes() {
		addTypeEdges(g, h, n, opts, diags)
	}
	return g
}

func addTypeEdges(g *graph.Graph, h *hierarchy.Hierarchy, n *hierarchy.Node, opts Options, diags *diagnostics.Collector) {
	def := n.Def
	edgeColor := colors.WithAlpha(g.GetNode(n.TypeName).Color, opts.EdgeAlpha)
	known := func(name string) bool {
		_, ok := h.Node(name)
		return ok
	}

	// The declared parent, not the effective one: a dangling extends still
	// shows up, flagged.
	if ext := def.ExtendsName; ext != "" && ext != h.Sentinel() {
		g.AddEdge(&graph.GraphEdge{
			ID:               graph.GenerateEdgeID(graph.EdgeExtends, def.Name, ext, ""),
			Kind:             graph.EdgeExtends,
			Source:           def.Name,
			Target:           ext,
			Weight:           opts.Weights.Extends,
			DisplayColor:     edgeColor,
			UnresolvedTarget: !known(ext),
		})
	}

	for i, c := range def.Components {
		ctx := diagnostics.Context{Store: def.StoreID, Type: def.Name, Target: c.TargetTypeName}
		if c.TargetTypeName == "" {
			diags.Warn(diagnostics.CodeUnknownComponentTarget, ctx,
				"component %d of type %s has no target type, skipped", i, def.Name)
			continue
		}
		unresolved := !known(c.TargetTypeName)
		if unresolved {
			diags.Warn(diagnostics.CodeUnknownComponentTarget, ctx,
				"component of type %s targets unknown type %s", def.Name, c.TargetTypeName)
		}
		g.AddEdge(&graph.GraphEdge{
			ID:               graph.GenerateEdgeID(graph.EdgeComponent, def.Name, c.TargetTypeName, strconv.Itoa(i)),
			Kind:             graph.EdgeComponent,
			Source:           def.Name,
			Target:           c.TargetTypeName,
			Weight:           opts.Weights.Component,
			DisplayColor:     edgeColor,
			UnresolvedTarget: unresolved,
			Properties:       map[string]any{"cardinality": c.Cardinality},
		})
	}

	for _, f := range def.ReferenceFields {
		ctx := diagnostics.Context{Store: def.StoreID, Type: def.Name, Field: f.FieldName, Target: f.TargetTypeName}
		if f.TargetTypeName == "" {
			diags.Warn(diagnostics.CodeUnknownReferenceTarget, ctx,
				"reference %s.%s has no target type, skipped", def.Name, f.FieldName)
			continue
		}
		unresolved := !known(f.TargetTypeName)
		if unresolved {
			diags.Warn(diagnostics.CodeUnknownReferenceTarget, ctx,
				"reference %s.%s targets unknown type %s", def.Name, f.FieldName, f.TargetTypeName)
		}
		g.AddEdge(&graph.GraphEdge{
			ID:               graph.GenerateEdgeID(graph.EdgeReference, def.Name, f.TargetTypeName, f.FieldName),
			Kind:             graph.EdgeReference,
			Source:           def.Name,
			Target:           f.TargetTypeName,
			Label:            f.FieldName,
			IsHard:           f.IsHard,
			Weight:           opts.Weights.reference(f.IsHard),
			DisplayColor:     edgeColor,
			UnresolvedTarget: unresolved,
			Properties:       map[string]any{"cardinality": f.Cardinality},
		})
	}
}
