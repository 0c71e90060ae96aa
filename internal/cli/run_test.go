package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/envgraph/internal/testutil"
)

// runLines runs the engine over input lines and returns stdout.
func runLines(t *testing.T, db string, message bool, lines ...string) string {
	t.Helper()
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "json"},
		Database:    db,
		Input:       "-",
		Message:     message,
		Tokens:      testutil.NewSequentialTokens("run"),
	}
	out := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader(strings.Join(lines, "\n") + "\n"))
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})

	require.NoError(t, runEngine(opts, cmd))
	return out.String()
}

func TestRun_ProcessesLinesInOrder(t *testing.T) {
	t.Setenv("ENVGRAPH_CONFIRMATIONS", "none")
	db := filepath.Join(t.TempDir(), "envgraph.db")

	out := runLines(t, db, false,
		string(testutil.NewSnapshot().Var("x", "3", "int").JSON(t)),
		"",
		string(testutil.NewSnapshot().Def("g", "x + x", "6").JSON(t)),
	)

	resps := decodeResponses[passResponse](t, out)
	require.Len(t, resps, 2)
	assert.Equal(t, "run-1", resps[0].Data.Token)
	assert.Equal(t, []string{"x"}, resps[0].Data.Created)
	assert.Equal(t, "run-2", resps[1].Data.Token)
	assert.Equal(t, []string{"x->g"}, resps[1].Data.EdgesAdded)

	tree := loadTree(t, db)
	assert.Equal(t, 2, tree.NodeCount())
}

func TestRun_CycleDoesNotBlockLaterPasses(t *testing.T) {
	t.Setenv("ENVGRAPH_CONFIRMATIONS", "none")
	db := filepath.Join(t.TempDir(), "envgraph.db")

	out := runLines(t, db, false,
		string(testutil.NewSnapshot().Def("a", "b + 1", "0").Def("b", "a + 1", "0").JSON(t)),
		string(testutil.NewSnapshot().Var("x", "3", "int").JSON(t)),
	)

	resps := decodeResponses[passResponse](t, out)
	require.Len(t, resps, 2)
	assert.Equal(t, "error", resps[0].Status)
	require.NotNil(t, resps[0].Error)
	assert.Equal(t, CodeCycleDetected, resps[0].Error.Code)
	assert.Equal(t, "ok", resps[1].Status)
	assert.Equal(t, int64(2), resps[1].Data.Seq)

	_, ok := loadTree(t, db).FindByID("a")
	assert.False(t, ok)
}

func TestRun_Confirmation(t *testing.T) {
	t.Setenv("ENVGRAPH_CONFIRMATIONS", "none")
	db := filepath.Join(t.TempDir(), "envgraph.db")

	runLines(t, db, false,
		string(testutil.NewSnapshot().Var("x", "3", "int").Var("y", "1", "int").JSON(t)),
		string(testutil.NewSnapshot().Def("g", "x + x", "6").JSON(t)),
		`{"confirm": {"node": "g", "dependencies": ["y"]}}`,
	)

	root := loadTree(t, db).Root()
	_, ok := root.Edge("y->g")
	assert.True(t, ok)
	_, ok = root.Edge("x->g")
	assert.False(t, ok)
}

func TestRun_Messages(t *testing.T) {
	db := filepath.Join(t.TempDir(), "envgraph.db")

	out := runLines(t, db, true,
		string(testutil.NewSnapshot().Var("x", "3", "int").Message(t, "")),
	)

	resps := decodeResponses[passResponse](t, out)
	require.Len(t, resps, 1)
	assert.Equal(t, []string{"x"}, resps[0].Data.Created)
	assert.Empty(t, resps[0].Warnings)
}

func TestRun_MissingInputFile(t *testing.T) {
	dir := t.TempDir()
	cmd := NewRunCommand(&RootOptions{Format: "text"})

	_, err := execute(t, cmd, "--db", filepath.Join(dir, "envgraph.db"), "--input", filepath.Join(dir, "missing.jsonl"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestParseConfirmation(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		wantOK bool
		node   string
		deps   []string
	}{
		{"confirmation", `{"confirm": {"node": "g", "dependencies": ["x", "y"]}}`, true, "g", []string{"x", "y"}},
		{"no dependencies", `{"confirm": {"node": "g"}}`, true, "g", nil},
		{"missing node", `{"confirm": {"dependencies": []}}`, false, "", nil},
		{"snapshot", `{"x": {"name": "x", "val": "3", "type": "int"}}`, false, "", nil},
		{"extra keys", `{"confirm": {"node": "g"}, "x": {}}`, false, "", nil},
		{"not json", `nope`, false, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := parseConfirmation([]byte(tt.line))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.node, c.NodeID)
			assert.Equal(t, tt.deps, c.Dependencies)
		})
	}
}
