package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/envgraph/internal/envtree"
	"github.com/roach88/envgraph/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestTree builds root{x, g, m{y@m, n@m{z@m@n}}} with one reference
// edge x->g and a table payload on y@m.
func createTestTree(t *testing.T) *envtree.Tree {
	t.Helper()
	tree := envtree.New()
	add := func(envID string, n *ir.Node) {
		t.Helper()
		if err := tree.AddNode(envID, n); err != nil {
			t.Fatalf("AddNode(%q) failed: %v", n.ID, err)
		}
	}

	add(ir.RootEnvID, &ir.Node{ID: "x", Label: "x", Kind: ir.KindVariable, Value: "3", Position: ir.Position{X: 20, Y: 20}})
	add(ir.RootEnvID, &ir.Node{ID: "g", Label: "g", Kind: ir.KindDefinition, Definition: "x + x", Position: ir.Position{X: 300, Y: 20}})
	add(ir.RootEnvID, &ir.Node{ID: "m", Label: "m", Kind: ir.KindModule, Params: map[string]string{"k": "int"}})
	add("m", &ir.Node{
		ID:      "y@m",
		Label:   "y",
		Kind:    ir.KindTable,
		Columns: []ir.Column{{Name: "a", Type: "int"}},
		Rows:    []map[string]any{{"a": float64(1)}},
	})
	add("m", &ir.Node{ID: "n@m", Label: "n", Kind: ir.KindModule})
	add("n@m", &ir.Node{ID: "z@m@n", Label: "z", Kind: ir.KindVariable, Value: "Int(1)"})

	edge := ir.NewEdge(ir.EdgeReference, "x", "g")
	if err := tree.AddEdge(ir.RootEnvID, edge); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}
	return tree
}
