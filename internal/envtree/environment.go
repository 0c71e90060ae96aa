package envtree

import (
	"slices"

	"github.com/roach88/envgraph/internal/ir"
)

// Environment is one scope of the tree: the root or the body of a module.
// Nodes and edges are kept in insertion order so dumps are deterministic.
type Environment struct {
	ID       string
	Nodes    []*ir.Node
	Edges    []ir.Edge
	Children map[string]*Environment
}

func newEnvironment(id string) *Environment {
	return &Environment{
		ID:       id,
		Children: make(map[string]*Environment),
	}
}

// Node returns the node with the given id.
func (e *Environment) Node(id string) (*ir.Node, bool) {
	i := e.indexOf(id)
	if i < 0 {
		return nil, false
	}
	return e.Nodes[i], true
}

// NodeByLabel returns the first node in order with the given label.
func (e *Environment) NodeByLabel(label string) (*ir.Node, bool) {
	for _, n := range e.Nodes {
		if n.Label == label {
			return n, true
		}
	}
	return nil, false
}

// Edge returns the edge with the given id.
func (e *Environment) Edge(id string) (ir.Edge, bool) {
	for _, edge := range e.Edges {
		if edge.ID == id {
			return edge, true
		}
	}
	return ir.Edge{}, false
}

// EdgesInto returns the edges whose target is nodeID.
func (e *Environment) EdgesInto(nodeID string) []ir.Edge {
	var out []ir.Edge
	for _, edge := range e.Edges {
		if edge.Target == nodeID {
			out = append(out, edge)
		}
	}
	return out
}

// EdgesFrom returns the edges whose source is nodeID.
func (e *Environment) EdgesFrom(nodeID string) []ir.Edge {
	var out []ir.Edge
	for _, edge := range e.Edges {
		if edge.Source == nodeID {
			out = append(out, edge)
		}
	}
	return out
}

// ChildIDs returns the ids of child Environments in sorted order.
func (e *Environment) ChildIDs() []string {
	ids := make([]string, 0, len(e.Children))
	for id := range e.Children {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// NodeIDs returns the node ids in order.
func (e *Environment) NodeIDs() []string {
	ids := make([]string, len(e.Nodes))
	for i, n := range e.Nodes {
		ids[i] = n.ID
	}
	return ids
}

func (e *Environment) indexOf(id string) int {
	for i, n := range e.Nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (e *Environment) removeEdgesTouching(nodeID string) {
	e.Edges = slices.DeleteFunc(e.Edges, func(edge ir.Edge) bool {
		return edge.Source == nodeID || edge.Target == nodeID
	})
}

func (e *Environment) clone() *Environment {
	c := newEnvironment(e.ID)
	c.Nodes = make([]*ir.Node, len(e.Nodes))
	for i, n := range e.Nodes {
		c.Nodes[i] = n.Clone()
	}
	c.Edges = append([]ir.Edge(nil), e.Edges...)
	for id, child := range e.Children {
		c.Children[id] = child.clone()
	}
	return c
}
