package envtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/envgraph/internal/ir"
)

func variable(id, value string) *ir.Node {
	label, _ := ir.ParseQualified(id)
	return &ir.Node{ID: id, Label: label, Kind: ir.KindVariable, Value: value}
}

func module(id string) *ir.Node {
	label, _ := ir.ParseQualified(id)
	return &ir.Node{ID: id, Label: label, Kind: ir.KindModule}
}

// buildNested creates root{x, m{y, n{z}}}.
func buildNested(t *testing.T) *Tree {
	t.Helper()
	tree := New()
	require.NoError(t, tree.AddNode(ir.RootEnvID, variable("x", "1")))
	require.NoError(t, tree.AddNode(ir.RootEnvID, module("m")))
	require.NoError(t, tree.AddNode("m", variable("y@m", "2")))
	require.NoError(t, tree.AddNode("m", module("n@m")))
	require.NoError(t, tree.AddNode("n@m", variable("z@m@n", "3")))
	return tree
}

// =============================================================================
// Environments
// =============================================================================

func TestNewTreeHasEmptyRoot(t *testing.T) {
	tree := New()
	assert.Equal(t, ir.RootEnvID, tree.Root().ID)
	assert.Equal(t, ir.RootEnvID, tree.Current().ID)
	assert.Equal(t, []string{ir.RootEnvID}, tree.Path())
	assert.Zero(t, tree.NodeCount())
}

func TestEnsureEnvironmentSynthesizesAncestors(t *testing.T) {
	tree := New()

	env, synthesized := tree.EnsureEnvironment("o@m@n")
	assert.Equal(t, "o@m@n", env.ID)
	assert.Equal(t, []string{"m", "n@m"}, synthesized)

	m, ok := tree.Environment("m")
	require.True(t, ok)
	assert.Contains(t, m.Children, "n@m")
	n, ok := tree.Environment("n@m")
	require.True(t, ok)
	assert.Same(t, env, n.Children["o@m@n"])

	again, synthesized := tree.EnsureEnvironment("o@m@n")
	assert.Same(t, env, again)
	assert.Empty(t, synthesized)
}

func TestEnvironmentIDsDepthFirst(t *testing.T) {
	tree := buildNested(t)
	tree.EnsureEnvironment("a")
	assert.Equal(t, []string{ir.RootEnvID, "a", "m", "n@m"}, tree.EnvironmentIDs())
}

// =============================================================================
// Nodes
// =============================================================================

func TestAddNodeRejectsDuplicateIDAcrossTree(t *testing.T) {
	tree := buildNested(t)

	err := tree.AddNode("n@m", variable("x", "9"))
	require.ErrorIs(t, err, ErrNodeExists)
	assert.Equal(t, 5, tree.NodeCount())
}

func TestAddLocalNodePrependsModules(t *testing.T) {
	tree := New()
	require.NoError(t, tree.AddLocalNode(ir.RootEnvID, variable("x", "1")))
	require.NoError(t, tree.AddLocalNode(ir.RootEnvID, module("m")))
	require.NoError(t, tree.AddLocalNode(ir.RootEnvID, variable("y", "2")))

	assert.Equal(t, []string{"m", "x", "y"}, tree.Root().NodeIDs())
}

func TestUpdateNodeKeepsID(t *testing.T) {
	tree := buildNested(t)

	require.NoError(t, tree.UpdateNode("y@m", func(n *ir.Node) {
		n.Value = "20"
		n.ID = "hijacked"
	}))

	n, ok := tree.FindByID("y@m")
	require.True(t, ok)
	assert.Equal(t, "20", n.Value)

	err := tree.UpdateNode("missing", func(*ir.Node) {})
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestRemoveNodeDropsTouchingEdges(t *testing.T) {
	tree := New()
	require.NoError(t, tree.AddNode(ir.RootEnvID, variable("x", "1")))
	require.NoError(t, tree.AddNode(ir.RootEnvID, &ir.Node{ID: "g", Label: "g", Kind: ir.KindDefinition, Definition: "x"}))
	require.NoError(t, tree.AddEdge(ir.RootEnvID, ir.NewEdge(ir.EdgeReference, "x", "g")))

	assert.True(t, tree.RemoveNode("x"))
	assert.Empty(t, tree.Root().Edges)
	assert.False(t, tree.RemoveNode("x"))
}

func TestRemoveModuleCascades(t *testing.T) {
	tree := buildNested(t)

	assert.True(t, tree.RemoveNode("m"))

	_, ok := tree.Environment("m")
	assert.False(t, ok)
	_, ok = tree.Environment("n@m")
	assert.False(t, ok)
	_, ok = tree.FindByID("y@m")
	assert.False(t, ok)
	_, ok = tree.FindByID("z@m@n")
	assert.False(t, ok)
	assert.NotContains(t, tree.Root().Children, "m")
	assert.Equal(t, 1, tree.NodeCount())
}

func TestRemoveModuleTruncatesPath(t *testing.T) {
	tree := buildNested(t)
	require.NoError(t, tree.Enter("n@m"))
	tree.SetParamInput("p", "1")

	tree.RemoveNode("n@m")

	assert.Equal(t, []string{ir.RootEnvID, "m"}, tree.Path())
	assert.Empty(t, tree.ParamInputs())
}

func TestRestoreScope(t *testing.T) {
	tree := buildNested(t)

	ok := tree.RestoreScope([]string{ir.RootEnvID, "m", "n@m"}, map[string]string{"p": "1"})
	require.True(t, ok)
	assert.Equal(t, "n@m", tree.Current().ID)
	assert.Equal(t, map[string]string{"p": "1"}, tree.ParamInputs())
	assert.Empty(t, tree.TakeLayoutRequests())
}

func TestRestoreScopeRejectsBrokenPath(t *testing.T) {
	tests := []struct {
		name string
		path []string
	}{
		{"empty", nil},
		{"not from root", []string{"m"}},
		{"missing environment", []string{ir.RootEnvID, "gone"}},
		{"skips a level", []string{ir.RootEnvID, "n@m"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := buildNested(t)
			require.NoError(t, tree.Enter("m"))

			assert.False(t, tree.RestoreScope(tt.path, nil))
			assert.Equal(t, []string{ir.RootEnvID, "m"}, tree.Path())
		})
	}
}

func TestSetOrder(t *testing.T) {
	tree := buildNested(t)

	require.NoError(t, tree.SetOrder(ir.RootEnvID, []string{"m", "x"}))
	assert.Equal(t, []string{"m", "x"}, tree.Root().NodeIDs())

	assert.Error(t, tree.SetOrder(ir.RootEnvID, []string{"m"}))
	assert.ErrorIs(t, tree.SetOrder(ir.RootEnvID, []string{"m", "q"}), ErrNodeNotFound)
	assert.ErrorIs(t, tree.SetOrder("nowhere", nil), ErrEnvironmentNotFound)
}

func TestRename(t *testing.T) {
	tree := buildNested(t)
	require.NoError(t, tree.AddNode("m", &ir.Node{ID: "g@m", Label: "g", Kind: ir.KindDefinition, Definition: "y"}))
	require.NoError(t, tree.AddEdge("m", ir.NewEdge(ir.EdgeReference, "y@m", "g@m")))

	newID, err := tree.Rename("y@m", "w")
	require.NoError(t, err)
	assert.Equal(t, "w@m", newID)

	n, ok := tree.FindByID("w@m")
	require.True(t, ok)
	assert.Equal(t, "w", n.Label)
	_, ok = tree.FindByID("y@m")
	assert.False(t, ok)

	env, _ := tree.Environment("m")
	assert.Empty(t, env.Edges)

	_, err = tree.Rename("n@m", "k")
	assert.Error(t, err)
	_, err = tree.Rename("w@m", "g")
	assert.ErrorIs(t, err, ErrNodeExists)
}

// =============================================================================
// Edges
// =============================================================================

func TestAddEdgeIsIdempotent(t *testing.T) {
	tree := New()
	require.NoError(t, tree.AddNode(ir.RootEnvID, &ir.Node{ID: "inc", Label: "inc", Kind: ir.KindAction, Action: "total := total + 1"}))
	require.NoError(t, tree.AddNode(ir.RootEnvID, variable("total", "0")))

	e := ir.NewEdge(ir.EdgeAction, "inc", "total")
	e.Action = "total := total + 1"
	require.NoError(t, tree.AddEdge(ir.RootEnvID, e))
	require.NoError(t, tree.AddEdge(ir.RootEnvID, e))

	assert.Len(t, tree.Root().Edges, 1)
	assert.Equal(t, 1, tree.EdgeCount())
}

func TestAddEdgeRejectsCrossEnvironment(t *testing.T) {
	tree := buildNested(t)

	err := tree.AddEdge("m", ir.NewEdge(ir.EdgeReference, "x", "y@m"))
	assert.ErrorIs(t, err, ErrEdgeEndpoint)

	err = tree.AddEdge("m", ir.NewEdge(ir.EdgeReference, "y@m", "x"))
	assert.ErrorIs(t, err, ErrEdgeEndpoint)
}

func TestRemoveEdge(t *testing.T) {
	tree := buildNested(t)
	e := ir.NewEdge(ir.EdgeReference, "x", "m")
	require.NoError(t, tree.AddEdge(ir.RootEnvID, e))

	assert.True(t, tree.RemoveEdge(ir.RootEnvID, e.ID))
	assert.False(t, tree.RemoveEdge(ir.RootEnvID, e.ID))
	assert.False(t, tree.RemoveEdge("nowhere", e.ID))
}

// =============================================================================
// Scope cursor
// =============================================================================

func TestEnterExit(t *testing.T) {
	tree := buildNested(t)
	tree.SetParamInput("a", "1")

	require.NoError(t, tree.Enter("n@m"))
	assert.Equal(t, []string{ir.RootEnvID, "m", "n@m"}, tree.Path())
	assert.Equal(t, "n@m", tree.Current().ID)
	assert.Empty(t, tree.ParamInputs())
	assert.Equal(t, []string{"n@m"}, tree.TakeLayoutRequests())

	assert.True(t, tree.Exit())
	assert.Equal(t, "m", tree.Current().ID)
	assert.True(t, tree.Exit())
	assert.False(t, tree.Exit())
	assert.Equal(t, ir.RootEnvID, tree.Current().ID)
}

func TestEnterRejectsNonModule(t *testing.T) {
	tree := buildNested(t)
	assert.ErrorIs(t, tree.Enter("x"), ErrNotModule)
	assert.ErrorIs(t, tree.Enter("missing"), ErrNodeNotFound)
}

func TestEnterCreatesEnvironmentLazily(t *testing.T) {
	tree := New()
	require.NoError(t, tree.AddNode(ir.RootEnvID, module("m")))
	_, ok := tree.Environment("m")
	assert.False(t, ok)

	require.NoError(t, tree.Enter("m"))
	_, ok = tree.Environment("m")
	assert.True(t, ok)
}

func TestSetCurrentJumpsBack(t *testing.T) {
	tree := buildNested(t)
	require.NoError(t, tree.Enter("n@m"))
	tree.SetParamInput("p", "2")

	require.NoError(t, tree.SetCurrent(ir.RootEnvID))
	assert.Equal(t, []string{ir.RootEnvID}, tree.Path())
	assert.Empty(t, tree.ParamInputs())

	assert.ErrorIs(t, tree.SetCurrent("n@m"), ErrEnvironmentNotFound)
}

func TestTakeLayoutRequestsClearsAndDropsMissing(t *testing.T) {
	tree := buildNested(t)
	tree.RequestLayout("m")
	tree.RequestLayout(ir.RootEnvID)
	tree.RequestLayout("gone")

	assert.Equal(t, []string{"m", ir.RootEnvID}, tree.TakeLayoutRequests())
	assert.Empty(t, tree.TakeLayoutRequests())
}

// =============================================================================
// Lookup
// =============================================================================

func TestFindByIDAcrossTree(t *testing.T) {
	tree := buildNested(t)

	n, ok := tree.FindByID("z@m@n")
	require.True(t, ok)
	assert.Equal(t, "3", n.Value)

	env, ok := tree.EnvironmentOf("z@m@n")
	require.True(t, ok)
	assert.Equal(t, "n@m", env.ID)
}

func TestFindByLabelFirstMatch(t *testing.T) {
	tree := buildNested(t)
	require.NoError(t, tree.AddNode("n@m", variable("y@m@n", "inner")))

	n, ok := tree.FindByLabel("y")
	require.True(t, ok)
	assert.Equal(t, "y@m", n.ID)

	n, ok = tree.FindLabelIn("n@m", "y")
	require.True(t, ok)
	assert.Equal(t, "y@m@n", n.ID)

	_, ok = tree.FindByLabel("nope")
	assert.False(t, ok)
}

func TestSearchAndFilter(t *testing.T) {
	tree := buildNested(t)
	require.NoError(t, tree.AddNode(ir.RootEnvID, variable("Xylo", "")))

	ids := func(nodes []*ir.Node) []string {
		var out []string
		for _, n := range nodes {
			out = append(out, n.ID)
		}
		return out
	}

	assert.Equal(t, []string{"x", "Xylo"}, ids(tree.Search("X")))
	assert.Equal(t, []string{"m", "n@m"}, ids(tree.Filter(ir.KindModule)))
	assert.Empty(t, tree.Filter())
}

// =============================================================================
// Clone
// =============================================================================

func TestCloneIsIndependent(t *testing.T) {
	tree := buildNested(t)
	require.NoError(t, tree.Enter("m"))

	c := tree.Clone()
	require.NoError(t, c.UpdateNode("y@m", func(n *ir.Node) { n.Value = "changed" }))
	require.NoError(t, c.AddNode("n@m", variable("w@m@n", "4")))
	c.RemoveNode("x")

	orig, _ := tree.FindByID("y@m")
	assert.Equal(t, "2", orig.Value)
	_, ok := tree.FindByID("w@m@n")
	assert.False(t, ok)
	_, ok = tree.FindByID("x")
	assert.True(t, ok)

	assert.Equal(t, tree.Path(), c.Path())
	cm, _ := c.Environment("m")
	tm, _ := tree.Environment("m")
	assert.NotSame(t, tm, cm)
}

func TestReplaceCommitsClone(t *testing.T) {
	tree := buildNested(t)
	c := tree.Clone()
	c.RemoveNode("m")

	tree.Replace(c)

	assert.Equal(t, 1, tree.NodeCount())
	_, ok := tree.Environment("m")
	assert.False(t, ok)
}
