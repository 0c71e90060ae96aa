package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/envgraph/internal/envtree"
	"github.com/roach88/envgraph/internal/ir"
)

// fixtureTree builds root{x, inc, g} with x->g and inc=>x, plus module m{y@m}.
func fixtureTree(t *testing.T) *envtree.Tree {
	t.Helper()
	tree := envtree.New()
	require.NoError(t, tree.AddNode(ir.RootEnvID, &ir.Node{ID: "x", Label: "x", Kind: ir.KindVariable, Value: "1", Position: ir.Position{X: 20, Y: 20}}))
	require.NoError(t, tree.AddNode(ir.RootEnvID, &ir.Node{ID: "inc", Label: "inc", Kind: ir.KindAction, Action: "x := x + 1"}))
	require.NoError(t, tree.AddNode(ir.RootEnvID, &ir.Node{ID: "g", Label: "g", Kind: ir.KindDefinition, Definition: "x"}))
	require.NoError(t, tree.AddNode(ir.RootEnvID, &ir.Node{ID: "m", Label: "m", Kind: ir.KindModule}))
	tree.EnsureEnvironment("m")
	require.NoError(t, tree.AddNode("m", &ir.Node{ID: "y@m", Label: "y", Kind: ir.KindVariable}))

	require.NoError(t, tree.AddEdge(ir.RootEnvID, ir.NewEdge(ir.EdgeReference, "x", "g")))
	act := ir.NewEdge(ir.EdgeAction, "inc", "x")
	act.Action = "x := x + 1"
	require.NoError(t, tree.AddEdge(ir.RootEnvID, act))
	return tree
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	tree := fixtureTree(t)

	errs := EvaluateAssertions(tree, []Assertion{
		{Type: AssertNodeExists, Node: "x", Kind: "Variable", Env: "root", Value: "1", Position: &Point{X: 20, Y: 20}},
		{Type: AssertNodeExists, Node: "y@m", Env: "m"},
		{Type: AssertNodeAbsent, Node: "z"},
		{Type: AssertEdgeExists, Source: "x", Target: "g"},
		{Type: AssertEdgeExists, Source: "inc", Target: "x", EdgeKind: "action", Action: "x := x + 1"},
		{Type: AssertEdgeAbsent, Source: "g", Target: "x"},
		{Type: AssertEdgeAbsent, Source: "inc", Target: "x"},
		{Type: AssertNodeOrder, Nodes: []string{"x", "inc", "g", "m"}},
		{Type: AssertNodeOrder, Env: "m", Nodes: []string{"y@m"}},
		{Type: AssertEnvExists, Env: "m"},
		{Type: AssertEnvAbsent, Env: "n@m"},
		{Type: AssertNodeCount, Count: intPtr(5)},
		{Type: AssertNodeCount, Env: "m", Count: intPtr(1)},
		{Type: AssertEdgeCount, Count: intPtr(2)},
		{Type: AssertEdgeCount, Env: "m", Count: intPtr(0)},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tree := fixtureTree(t)

	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{"missing node", Assertion{Type: AssertNodeExists, Node: "q"}, "not found"},
		{"wrong kind", Assertion{Type: AssertNodeExists, Node: "x", Kind: "Table"}, "kind Variable"},
		{"wrong env", Assertion{Type: AssertNodeExists, Node: "y@m", Env: "root"}, "environment m"},
		{"wrong value", Assertion{Type: AssertNodeExists, Node: "x", Value: "2"}, `value "1"`},
		{"wrong position", Assertion{Type: AssertNodeExists, Node: "x", Position: &Point{X: 0, Y: 0}}, "at (20,20)"},
		{"present node", Assertion{Type: AssertNodeAbsent, Node: "x"}, "node exists"},
		{"missing edge", Assertion{Type: AssertEdgeExists, Source: "g", Target: "x"}, "reference edge g -> x"},
		{"wrong cargo", Assertion{Type: AssertEdgeExists, Source: "inc", Target: "x", EdgeKind: "action", Action: "x := 0"}, `carrying "x := x + 1"`},
		{"present edge", Assertion{Type: AssertEdgeAbsent, Source: "x", Target: "g"}, "edge exists"},
		{"order", Assertion{Type: AssertNodeOrder, Nodes: []string{"g", "x"}}, "nodes [x inc g m]"},
		{"order unknown env", Assertion{Type: AssertNodeOrder, Env: "zz", Nodes: []string{}}, "not found"},
		{"env exists", Assertion{Type: AssertEnvExists, Env: "zz"}, "exists=false"},
		{"env absent", Assertion{Type: AssertEnvAbsent, Env: "m"}, "exists=true"},
		{"node count", Assertion{Type: AssertNodeCount, Count: intPtr(9)}, "Actual: 5"},
		{"edge count env", Assertion{Type: AssertEdgeCount, Env: "zz", Count: intPtr(0)}, "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(tree, []Assertion{tt.assertion})
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.want)
			assert.Contains(t, errs[0], "Assertion failed: "+tt.assertion.Type)
		})
	}
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertEdgeExists,
		Expected: "reference edge x -> g",
		Actual:   "not found",
		Nodes:    []string{"root: x, g"},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: edge_exists")
	assert.Contains(t, msg, "  Expected: reference edge x -> g")
	assert.Contains(t, msg, "  Actual: not found")
	assert.Contains(t, msg, "Tree:\n  root: x, g")
}
