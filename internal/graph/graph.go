// Package graph provides the in-memory federation graph for fedgraph.
//
// The graph is map-backed for O(1) lookups by ID and keeps insertion order so
// that output is stable across runs. Secondary indexes on node kind, edge kind
// and adjacency keep queries proportional to the result set.
package graph

import (
	"encoding/json"
	"slices"
	"sync"
)

// idList is an insertion-ordered set of IDs.
type idList struct {
	ids  []string
	seen map[string]struct{}
}

func (l *idList) add(id string) {
	if l.seen == nil {
		l.seen = make(map[string]struct{})
	}
	if _, ok := l.seen[id]; ok {
		return
	}
	l.seen[id] = struct{}{}
	l.ids = append(l.ids, id)
}

func (l *idList) remove(id string) {
	if l == nil {
		return
	}
	if _, ok := l.seen[id]; !ok {
		return
	}
	delete(l.seen, id)
	if i := slices.Index(l.ids, id); i >= 0 {
		l.ids = slices.Delete(l.ids, i, i+1)
	}
}

func (l *idList) len() int {
	if l == nil {
		return 0
	}
	return len(l.ids)
}

// Graph is an in-memory directed graph of federation types or instances.
//
// Adding a node or edge with an existing ID replaces it in place. Edges may
// point at IDs that have no node, as unresolved schema edges do.
type Graph struct {
	mu        sync.RWMutex
	nodes     map[string]*GraphNode
	edges     map[string]*GraphEdge
	nodeOrder idList
	edgeOrder idList

	// Secondary indexes, kept in sync by AddNode and AddEdge.
	byNodeKind map[NodeKind]*idList
	byEdgeKind map[EdgeKind]*idList
	outgoing   map[string]*idList
	incoming   map[string]*idList
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:      make(map[string]*GraphNode),
		edges:      make(map[string]*GraphEdge),
		byNodeKind: make(map[NodeKind]*idList),
		byEdgeKind: make(map[EdgeKind]*idList),
		outgoing:   make(map[string]*idList),
		incoming:   make(map[string]*idList),
	}
}

func listFor[K comparable](m map[K]*idList, key K) *idList {
	l, ok := m[key]
	if !ok {
		l = &idList{}
		m[key] = l
	}
	return l
}

// AddNode adds a node, replacing any node with the same ID.
func (g *Graph) AddNode(node *GraphNode) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.nodes[node.ID]; ok && old.Kind != node.Kind {
		g.byNodeKind[old.Kind].remove(node.ID)
	}
	g.nodes[node.ID] = node
	g.nodeOrder.add(node.ID)
	listFor(g.byNodeKind, node.Kind).add(node.ID)
}

// AddEdge adds an edge, replacing any edge with the same ID.
func (g *Graph) AddEdge(edge *GraphEdge) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.edges[edge.ID]; ok {
		g.byEdgeKind[old.Kind].remove(edge.ID)
		g.outgoing[old.Source].remove(edge.ID)
		g.incoming[old.Target].remove(edge.ID)
	}
	g.edges[edge.ID] = edge
	g.edgeOrder.add(edge.ID)
	listFor(g.byEdgeKind, edge.Kind).add(edge.ID)
	listFor(g.outgoing, edge.Source).add(edge.ID)
	listFor(g.incoming, edge.Target).add(edge.ID)
}

// GetNode returns the node with the given ID, or nil.
func (g *Graph) GetNode(id string) *GraphNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// GetEdge returns the edge with the given ID, or nil.
func (g *Graph) GetEdge(id string) *GraphEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[id]
}

// HasNode reports whether a node with the given ID exists.
func (g *Graph) HasNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// CountNodesByKind returns the number of nodes of a kind.
func (g *Graph) CountNodesByKind(kind NodeKind) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.byNodeKind[kind].len()
}

// CountEdgesByKind returns the number of edges of a kind.
func (g *Graph) CountEdgesByKind(kind EdgeKind) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.byEdgeKind[kind].len()
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*GraphNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodesFor(&g.nodeOrder)
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []*GraphEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edgesFor(&g.edgeOrder, nil)
}

// NodesByKind returns the nodes of a kind in insertion order.
func (g *Graph) NodesByKind(kind NodeKind) []*GraphNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodesFor(g.byNodeKind[kind])
}

// EdgesByKind returns the edges of a kind in insertion order.
func (g *Graph) EdgesByKind(kind EdgeKind) []*GraphEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edgesFor(g.byEdgeKind[kind], nil)
}

// GetOutgoing returns edges originating from the given node.
// If kinds are given, only edges of those kinds are returned.
func (g *Graph) GetOutgoing(nodeID string, kinds ...EdgeKind) []*GraphEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edgesFor(g.outgoing[nodeID], kinds)
}

// GetIncoming returns edges targeting the given node.
// If kinds are given, only edges of those kinds are returned.
func (g *Graph) GetIncoming(nodeID string, kinds ...EdgeKind) []*GraphEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edgesFor(g.incoming[nodeID], kinds)
}

func (g *Graph) nodesFor(l *idList) []*GraphNode {
	if l.len() == 0 {
		return nil
	}
	out := make([]*GraphNode, 0, len(l.ids))
	for _, id := range l.ids {
		out = append(out, g.nodes[id])
	}
	return out
}

func (g *Graph) edgesFor(l *idList, kinds []EdgeKind) []*GraphEdge {
	if l.len() == 0 {
		return nil
	}
	out := make([]*GraphEdge, 0, len(l.ids))
	for _, id := range l.ids {
		e := g.edges[id]
		if len(kinds) > 0 && !slices.Contains(kinds, e.Kind) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Filter returns a new graph with every node and only the edges whose class
// is listed. Nodes and edges are shared, not copied.
func (g *Graph) Filter(classes ...EdgeClass) *Graph {
	out := New()
	for _, n := range g.Nodes() {
		out.AddNode(n)
	}
	for _, e := range g.Edges() {
		if slices.Contains(classes, e.Class()) {
			out.AddEdge(e)
		}
	}
	return out
}

// Stats returns a summary of graph size.
func (g *Graph) Stats() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := map[string]int{
		"nodes": len(g.nodes),
		"edges": len(g.edges),
	}
	for kind, l := range g.byEdgeKind {
		stats["edges."+string(kind)] = l.len()
	}
	return stats
}

// Snapshot is the serialized form handed to renderers.
type Snapshot struct {
	Nodes []*GraphNode `json:"nodes"`
	Edges []*GraphEdge `json:"edges"`
}

// Snapshot returns the graph's nodes and edges in insertion order. Empty
// graphs yield empty, non-nil slices.
func (g *Graph) Snapshot() Snapshot {
	s := Snapshot{Nodes: g.Nodes(), Edges: g.Edges()}
	if s.Nodes == nil {
		s.Nodes = []*GraphNode{}
	}
	if s.Edges == nil {
		s.Edges = []*GraphEdge{}
	}
	return s
}

// MarshalJSON encodes the graph as {"nodes": [...], "edges": [...]}.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Snapshot())
}
