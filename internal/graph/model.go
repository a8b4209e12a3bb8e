// Package graph provides the renderer-agnostic graph model for fedgraph.
//
// It defines the node and edge types produced from a federation, either one
// node per entity type (type graph) or one node per entity instance
// (instance graph), and the typed edges between them.
package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownEdgeClass is returned for an edge class name that is not one of
// AllEdgeClasses.
var ErrUnknownEdgeClass = errors.New("unknown edge class")

// NodeKind tells what a node stands for.
type NodeKind string

const (
	NodeType     NodeKind = "type"
	NodeInstance NodeKind = "instance"
)

// EdgeKind tells what relationship an edge stands for.
type EdgeKind string

const (
	EdgeExtends   EdgeKind = "extends"
	EdgeComponent EdgeKind = "component"
	EdgeReference EdgeKind = "reference"
)

// EdgeClass splits reference edges by hardness, as filter controls do.
type EdgeClass string

const (
	ClassExtends       EdgeClass = "extends"
	ClassComponent     EdgeClass = "component"
	ClassReferenceHard EdgeClass = "referenceHard"
	ClassReferenceSoft EdgeClass = "referenceSoft"
)

// AllEdgeClasses lists every edge class.
var AllEdgeClasses = []EdgeClass{ClassExtends, ClassComponent, ClassReferenceHard, ClassReferenceSoft}

// GraphNode represents a node in a federation graph.
type GraphNode struct {
	// ID is the unique identifier: the type name or the instance id.
	ID string `json:"id"`

	// Label is the display text.
	Label string `json:"label"`

	// GroupKey is the owning store name.
	GroupKey string `json:"group"`

	// ColorIndex is the index the color was assigned from.
	ColorIndex int `json:"colorIndex"`

	// DomainSize is the size of the color domain ColorIndex lives in.
	DomainSize int `json:"domainSize"`

	// Color is the assigned display color (#rrggbb).
	Color string `json:"color"`

	// Kind is the node kind.
	Kind NodeKind `json:"kind"`

	// IsRoot marks root types and top-level instances.
	IsRoot bool `json:"isRoot"`

	// HasMarker marks instances carrying a finalizer flag.
	HasMarker bool `json:"hasMarker"`

	// Properties holds additional metadata.
	Properties map[string]any `json:"properties,omitempty"`
}

// GraphEdge represents a directed edge in a federation graph.
type GraphEdge struct {
	// ID is the unique identifier for the edge.
	ID string `json:"id"`

	// Kind is the edge kind.
	Kind EdgeKind `json:"kind"`

	// Source is the ID of the source node.
	Source string `json:"source"`

	// Target is the ID of the target node.
	Target string `json:"target"`

	// Label is the field name for references, empty otherwise.
	Label string `json:"label,omitempty"`

	// IsHard is set on hard references.
	IsHard bool `json:"isHard"`

	// Weight is the layout weight.
	Weight int `json:"weight"`

	// DisplayColor is the source color with alpha (#rrggbbaa).
	DisplayColor string `json:"color"`

	// UnresolvedTarget marks schema edges whose target type is unknown.
	UnresolvedTarget bool `json:"unresolvedTarget,omitempty"`

	// Properties holds additional metadata (e.g., cardinality).
	Properties map[string]any `json:"properties,omitempty"`
}

// Class returns the edge's filter class.
func (e *GraphEdge) Class() EdgeClass {
	switch e.Kind {
	case EdgeExtends:
		return ClassExtends
	case EdgeComponent:
		return ClassComponent
	default:
		if e.IsHard {
			return ClassReferenceHard
		}
		return ClassReferenceSoft
	}
}

// GenerateEdgeID creates a deterministic edge ID.
// Format: {kind}:{source}->{target}[#{discriminator}]
func GenerateEdgeID(kind EdgeKind, source, target, discriminator string) string {
	id := string(kind) + ":" + source + "->" + target
	if discriminator != "" {
		id += "#" + discriminator
	}
	return id
}

// ParseEdgeClass validates an edge class name.
func ParseEdgeClass(s string) (EdgeClass, bool) {
	for _, c := range AllEdgeClasses {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// ParseEdgeClasses parses edge class names. Each name may itself be a
// comma-separated list. No names yields nil, which callers treat as "all".
func ParseEdgeClasses(names ...string) ([]EdgeClass, error) {
	var classes []EdgeClass
	for _, name := range names {
		for _, part := range strings.Split(name, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			c, ok := ParseEdgeClass(part)
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownEdgeClass, part)
			}
			classes = append(classes, c)
		}
	}
	return classes, nil
}
