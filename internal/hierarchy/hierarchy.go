// Package hierarchy builds the inheritance forest of a federation's entity
// types and assigns every type a root lineage and a color domain index.
package hierarchy

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/Benny93/fedgraph/internal/diagnostics"
	"github.com/Benny93/fedgraph/internal/federation"
)

// ErrHierarchyCycle is matched by every *CycleError.
var ErrHierarchyCycle = errors.New("inheritance cycle")

// CycleError reports the types whose extends relation forms a cycle.
type CycleError struct {
	// Types holds the sorted names of every type on a cycle.
	Types []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("inheritance cycle between types: %s", strings.Join(e.Types, ", "))
}

// Is makes errors.Is(err, ErrHierarchyCycle) hold.
func (e *CycleError) Is(target error) bool {
	return target == ErrHierarchyCycle
}

// Node is the derived hierarchy entry of one entity type.
type Node struct {
	// TypeName is the type's name.
	TypeName string

	// ParentName is the effective parent: the declared one, or the sentinel
	// for top-level types and types with a dangling extends.
	ParentName string

	// RootTypeName is the lineage root, empty for top-level types.
	RootTypeName string

	// RootDomainIndex is the 1-based root discovery index, 0 for lineages
	// without descendants.
	RootDomainIndex int

	// ChildNames lists the direct subtypes in definition order.
	ChildNames []string

	// Def is the type's definition.
	Def *federation.EntityTypeDef
}

// IsRoot reports whether the type heads a lineage: it is top-level and has
// at least one descendant. Leaf-only top-level types are not roots.
func (n *Node) IsRoot() bool {
	return n.RootTypeName == "" && n.RootDomainIndex > 0
}

// Options configures Build.
type Options struct {
	// Sentinel is the implicit base type. Defaults to federation.DefaultSentinel.
	Sentinel string

	// RootAliases name container types whose direct subtypes are treated as
	// top-level, like direct subtypes of the sentinel.
	RootAliases []string
}

// Hierarchy is the inheritance forest of one federation.
type Hierarchy struct {
	sentinel string
	nodes    map[string]*Node
	order    []string
	roots    []string
	maxIndex int
}

// Build derives the hierarchy from defs. Types are taken in the given order;
// a repeated name keeps its first definition and is reported as a
// duplicate. It fails with a *CycleError when the extends relation is cyclic.
func Build(defs []federation.EntityTypeDef, opts Options, diags *diagnostics.Collector) (*Hierarchy, error) {
	if diags == nil {
		diags = diagnostics.NewCollector(nil)
	}
	sentinel := opts.Sentinel
	if sentinel == "" {
		sentinel = federation.DefaultSentinel
	}

	h := &Hierarchy{
		sentinel: sentinel,
		nodes:    make(map[string]*Node, len(defs)),
	}

	for i := range defs {
		def := &defs[i]
		if def.Name == "" || def.Name == sentinel {
			continue
		}
		if existing, ok := h.nodes[def.Name]; ok {
			diags.Warn(diagnostics.CodeDuplicateType,
				diagnostics.Context{Store: def.StoreID, Type: def.Name, Detail: "first defined in " + existing.Def.StoreID},
				"type %s is defined more than once", def.Name)
			continue
		}
		h.nodes[def.Name] = &Node{TypeName: def.Name, Def: def}
		h.order = append(h.order, def.Name)
	}

	for _, name := range h.order {
		node := h.nodes[name]
		ext := node.Def.ExtendsName
		switch {
		case ext == "" || ext == sentinel:
			node.ParentName = sentinel
		case h.nodes[ext] == nil:
			diags.Warn(diagnostics.CodeDanglingExtends,
				diagnostics.Context{Store: node.Def.StoreID, Type: name, Target: ext},
				"type %s extends unknown type %s, treated as top-level", name, ext)
			node.ParentName = sentinel
		default:
			node.ParentName = ext
		}
	}

	if cyclic := h.findCycles(); len(cyclic) > 0 {
		return nil, &CycleError{Types: cyclic}
	}

	children := make(map[string][]string, len(h.order))
	for _, name := range h.order {
		parent := h.nodes[name].ParentName
		children[parent] = append(children[parent], name)
	}
	for _, name := range h.order {
		h.nodes[name].ChildNames = children[name]
	}

	h.walk(children, opts.RootAliases)
	return h, nil
}

// findCycles ascends from every type towards the sentinel and returns the
// sorted names of all types that lie on a cycle.
func (h *Hierarchy) findCycles() []string {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make(map[string]int, len(h.order))
	cyclic := make(map[string]bool)

	for _, start := range h.order {
		var path []string
		cur := start
		for cur != h.sentinel && state[cur] == unvisited {
			state[cur] = onPath
			path = append(path, cur)
			cur = h.nodes[cur].ParentName
		}
		if cur != h.sentinel && state[cur] == onPath {
			idx := slices.Index(path, cur)
			for _, name := range path[idx:] {
				cyclic[name] = true
			}
		}
		for _, name := range path {
			state[name] = done
		}
	}

	if len(cyclic) == 0 {
		return nil
	}
	names := make([]string, 0, len(cyclic))
	for name := range cyclic {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// walk assigns roots and domain indexes with an explicit-stack preorder walk
// from the sentinel, visiting children in definition order.
func (h *Hierarchy) walk(children map[string][]string, aliases []string) {
	type frame struct {
		name string
		root string
	}

	var stack []frame
	push := func(names []string, root string) {
		for i := len(names) - 1; i >= 0; i-- {
			stack = append(stack, frame{name: names[i], root: root})
		}
	}

	visited := make(map[string]bool, len(h.order))
	index := make(map[string]int)
	push(children[h.sentinel], "")

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[f.name] {
			continue
		}
		visited[f.name] = true

		node := h.nodes[f.name]
		childRoot := f.root
		if f.root == "" {
			if len(node.ChildNames) > 0 {
				h.roots = append(h.roots, f.name)
				index[f.name] = len(h.roots)
			}
			node.RootDomainIndex = index[f.name]
			childRoot = f.name
		} else {
			node.RootTypeName = f.root
			node.RootDomainIndex = index[f.root]
		}

		if slices.Contains(aliases, f.name) {
			childRoot = ""
		}
		push(node.ChildNames, childRoot)
	}

	h.maxIndex = len(h.roots) + 1
}

// Sentinel returns the implicit base type name.
func (h *Hierarchy) Sentinel() string {
	return h.sentinel
}

// Node returns the hierarchy entry of a type.
func (h *Hierarchy) Node(name string) (*Node, bool) {
	n, ok := h.nodes[name]
	return n, ok
}

// Def returns the definition of a type, or nil.
func (h *Hierarchy) Def(name string) *federation.EntityTypeDef {
	if n, ok := h.nodes[name]; ok {
		return n.Def
	}
	return nil
}

// Nodes returns every entry in definition order.
func (h *Hierarchy) Nodes() []*Node {
	out := make([]*Node, 0, len(h.order))
	for _, name := range h.order {
		out = append(out, h.nodes[name])
	}
	return out
}

// Len returns the number of distinct types.
func (h *Hierarchy) Len() int {
	return len(h.order)
}

// Roots returns the root types in discovery order.
func (h *Hierarchy) Roots() []string {
	return slices.Clone(h.roots)
}

// MaxDomainIndex returns the color domain size: the root count plus one for
// the shared bucket 0.
func (h *Hierarchy) MaxDomainIndex() int {
	return h.maxIndex
}

// Ancestry returns name followed by its ancestors up to, excluding, the
// sentinel. It returns nil for unknown types.
func (h *Hierarchy) Ancestry(name string) []string {
	if _, ok := h.nodes[name]; !ok {
		return nil
	}
	var chain []string
	for cur := name; cur != h.sentinel && len(chain) <= len(h.order); {
		node, ok := h.nodes[cur]
		if !ok {
			break
		}
		chain = append(chain, cur)
		cur = node.ParentName
	}
	return chain
}
