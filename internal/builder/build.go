// Package builder assembles federation graphs.
//
// Build is the single entry point: it derives the type hierarchy for all
// stores of a federation, then emits either the type graph or the instance
// graph together with the diagnostics collected on the way. A build is pure
// and synchronous; it either returns a complete graph or fails on an
// inheritance cycle without a partial result.
package builder

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/Benny93/fedgraph/internal/diagnostics"
	"github.com/Benny93/fedgraph/internal/federation"
	"github.com/Benny93/fedgraph/internal/graph"
	"github.com/Benny93/fedgraph/internal/hierarchy"
)

// Result is the output of one build.
type Result struct {
	// BuildID identifies this build in logs and API responses.
	BuildID string `json:"buildId"`

	Mode        Mode                     `json:"mode"`
	Graph       *graph.Graph             `json:"graph"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics"`

	// Hierarchy is the derived type hierarchy, shared by both modes.
	Hierarchy *hierarchy.Hierarchy `json:"-"`
}

// Build builds the graph of the given mode over all stores.
func Build(stores []federation.Store, mode Mode, opts Options) (*Result, error) {
	if mode != ModeTypes && mode != ModeInstances {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	opts = opts.withDefaults()

	buildID := uuid.NewString()
	logger := opts.Logger
	if logger != nil {
		logger = logger.With("build", buildID, "mode", string(mode))
	}
	diags := diagnostics.NewCollector(logger)

	h, err := BuildHierarchy(stores, opts, diags)
	if err != nil {
		return nil, err
	}

	var g *graph.Graph
	switch mode {
	case ModeTypes:
		g = BuildTypeGraph(h, opts, diags)
	case ModeInstances:
		g = BuildInstanceGraph(stores, h, opts, diags)
	}

	if logger != nil {
		logger.Debug("graph built",
			"nodes", g.NodeCount(),
			"edges", g.EdgeCount(),
			"diagnostics", diags.Len())
	}

	items := diags.Items()
	if items == nil {
		items = []diagnostics.Diagnostic{}
	}
	return &Result{
		BuildID:     buildID,
		Mode:        mode,
		Graph:       g,
		Diagnostics: items,
		Hierarchy:   h,
	}, nil
}

// BuildHierarchy derives the hierarchy over the type definitions of all
// stores, in store order. Definitions without a store id are attributed to
// the store they came from.
func BuildHierarchy(stores []federation.Store, opts Options, diags *diagnostics.Collector) (*hierarchy.Hierarchy, error) {
	opts = opts.withDefaults()

	var defs []federation.EntityTypeDef
	for _, s := range stores {
		for _, def := range s.EntityTypeDefs {
			if def.StoreID == "" {
				def.StoreID = s.Name
			}
			defs = append(defs, def)
		}
	}

	h, err := hierarchy.Build(defs, hierarchy.Options{
		Sentinel:    opts.Sentinel,
		RootAliases: opts.RootAliases,
	}, diags)
	if err != nil {
		return nil, fmt.Errorf("building hierarchy: %w", err)
	}
	return h, nil
}

// Document is the serialized build output handed to renderers.
type Document struct {
	BuildID     string                   `json:"buildId"`
	Mode        Mode                     `json:"mode"`
	Nodes       []*graph.GraphNode       `json:"nodes"`
	Edges       []*graph.GraphEdge       `json:"edges"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics"`
}

// Document returns the result as a renderer document. When classes are given
// only edges of those classes are kept; nodes are always kept.
func (r *Result) Document(classes ...graph.EdgeClass) Document {
	g := r.Graph
	if len(classes) > 0 {
		g = g.Filter(classes...)
	}
	snap := g.Snapshot()
	return Document{
		BuildID:     r.BuildID,
		Mode:        r.Mode,
		Nodes:       snap.Nodes,
		Edges:       snap.Edges,
		Diagnostics: r.Diagnostics,
	}
}
