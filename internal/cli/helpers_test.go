package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/envgraph/internal/envtree"
	"github.com/roach88/envgraph/internal/store"
	"github.com/roach88/envgraph/internal/testutil"
)

// execute runs cmd with args and returns stdout and the error.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// seedDB applies x = 3 then g = x + x and returns the database path.
func seedDB(t *testing.T) (db string, dir string) {
	t.Helper()
	dir = t.TempDir()
	db = filepath.Join(dir, "envgraph.db")

	first := writeFile(t, dir, "1.json", testutil.NewSnapshot().Var("x", "3", "int").JSON(t))
	second := writeFile(t, dir, "2.json", testutil.NewSnapshot().
		Def("g", "x + x", "6").
		Action("inc", "x := x + 1").
		Module("m", testutil.NewSnapshot().Var("y", "2", "int")).
		JSON(t))

	_, err := execute(t, NewApplyCommand(&RootOptions{Format: "text"}), "--db", db, first, second)
	require.NoError(t, err)
	return db, dir
}

// loadTree reads the committed tree straight from the store.
func loadTree(t *testing.T, db string) *envtree.Tree {
	t.Helper()
	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	tree, err := st.LoadTree(context.Background())
	require.NoError(t, err)
	return tree
}

// decodeResponses decodes a stream of JSON responses.
func decodeResponses[T any](t *testing.T, out string) []T {
	t.Helper()
	var resps []T
	dec := json.NewDecoder(bytes.NewBufferString(out))
	for dec.More() {
		var r T
		require.NoError(t, dec.Decode(&r))
		resps = append(resps, r)
	}
	return resps
}

type passResponse struct {
	Status   string      `json:"status"`
	Data     PassSummary `json:"data"`
	Error    *CLIError   `json:"error"`
	Warnings []string    `json:"warnings"`
}
