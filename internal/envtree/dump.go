package envtree

import (
	"fmt"

	"github.com/roach88/envgraph/internal/ir"
)

// Canonical renders the committed content of the tree (Environments, nodes
// in order, edges in insertion order) as canonical JSON. Cursor state is not
// part of the dump. Equal trees produce byte-identical dumps, which golden
// files and the pass log rely on.
func (t *Tree) Canonical() ([]byte, error) {
	var envs []any
	t.Walk(func(env *Environment) bool {
		envs = append(envs, environmentMap(env))
		return true
	})
	data, err := ir.MarshalCanonical(map[string]any{"environments": envs})
	if err != nil {
		return nil, fmt.Errorf("canonical tree: %w", err)
	}
	return data, nil
}

// Digest returns the content hash of Canonical.
func (t *Tree) Digest() (string, error) {
	data, err := t.Canonical()
	if err != nil {
		return "", err
	}
	return ir.DigestCanonical(data), nil
}

func environmentMap(env *Environment) map[string]any {
	nodes := make([]any, len(env.Nodes))
	for i, n := range env.Nodes {
		nodes[i] = nodeMap(n)
	}
	edges := make([]any, len(env.Edges))
	for i, e := range env.Edges {
		m := map[string]any{
			"id":     e.ID,
			"kind":   string(e.Kind),
			"source": e.Source,
			"target": e.Target,
		}
		if e.Action != "" {
			m["action"] = e.Action
		}
		edges[i] = m
	}
	children := make([]any, 0, len(env.Children))
	for _, id := range env.ChildIDs() {
		children = append(children, id)
	}
	return map[string]any{
		"id":       env.ID,
		"nodes":    nodes,
		"edges":    edges,
		"children": children,
	}
}

func nodeMap(n *ir.Node) map[string]any {
	m := map[string]any{
		"id":    n.ID,
		"label": n.Label,
		"kind":  string(n.Kind),
		"position": map[string]any{
			"x": n.Position.X,
			"y": n.Position.Y,
		},
	}
	if n.Value != "" {
		m["value"] = n.Value
	}
	if n.Definition != "" {
		m["definition"] = n.Definition
	}
	if n.Action != "" {
		m["action"] = n.Action
	}
	if len(n.Columns) > 0 {
		cols := make([]any, len(n.Columns))
		for i, c := range n.Columns {
			cols[i] = map[string]any{"name": c.Name, "type": c.Type}
		}
		m["columns"] = cols
	}
	if len(n.Rows) > 0 {
		rows := make([]any, len(n.Rows))
		for i, r := range n.Rows {
			rows[i] = r
		}
		m["rows"] = rows
	}
	if len(n.Params) > 0 {
		m["params"] = n.Params
	}
	if len(n.Parsed) > 0 {
		parsed := make([]any, len(n.Parsed))
		for i, p := range n.Parsed {
			parsed[i] = map[string]any{"param": p.Param, "value": p.Value, "output": p.Output}
		}
		m["parsed"] = parsed
	}
	return m
}
