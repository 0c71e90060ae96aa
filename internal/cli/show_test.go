package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShow_TextTree(t *testing.T) {
	db, _ := seedDB(t)

	out, err := execute(t, NewShowCommand(&RootOptions{Format: "text"}), "--db", db)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "root\n"), out)
	assert.Contains(t, out, "\n  x [Variable] = 3 @ (")
	assert.Contains(t, out, "\n  g [Definition] := x + x @ (")
	assert.Contains(t, out, "\n  m [Module] @ (")
	assert.Contains(t, out, "\n  x -> g\n")
	assert.Contains(t, out, "\n  inc => x (x := x + 1)\n")
	assert.Contains(t, out, "\n  m\n    y [Variable] = 2 @ (")
}

func TestShow_JSONTree(t *testing.T) {
	db, _ := seedDB(t)

	out, err := execute(t, NewShowCommand(&RootOptions{Format: "json"}), "--db", db)
	require.NoError(t, err)

	resps := decodeResponses[struct {
		Status string `json:"status"`
		Data   struct {
			Environments []struct {
				ID       string   `json:"id"`
				Children []string `json:"children"`
			} `json:"environments"`
		} `json:"data"`
	}](t, out)
	require.Len(t, resps, 1)
	assert.Equal(t, "ok", resps[0].Status)
	require.NotEmpty(t, resps[0].Data.Environments)
	assert.Equal(t, "root", resps[0].Data.Environments[0].ID)
}

func TestShow_Filters(t *testing.T) {
	db, _ := seedDB(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"search", []string{"--search", "Y"}, "y@m\tVariable\tm"},
		{"kind", []string{"--kind", "Definition"}, "g\tDefinition\troot"},
		{"kind within env", []string{"--kind", "Variable", "--env", "m"}, "y@m\tVariable\tm"},
		{"no match", []string{"--search", "zzz"}, "No matching nodes."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--db", db}, tt.args...)
			out, err := execute(t, NewShowCommand(&RootOptions{Format: "text"}), args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want+"\n", out)
		})
	}
}

func TestShow_EnvSubtree(t *testing.T) {
	db, _ := seedDB(t)

	out, err := execute(t, NewShowCommand(&RootOptions{Format: "text"}), "--db", db, "--env", "m")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "  m\n"), out)
	assert.NotContains(t, out, "root")
}

func TestShow_Errors(t *testing.T) {
	db, dir := seedDB(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown env", []string{"--db", db, "--env", "nope"}},
		{"unknown kind", []string{"--db", db, "--kind", "Bogus"}},
		{"missing database", []string{"--db", filepath.Join(dir, "missing.db")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, NewShowCommand(&RootOptions{Format: "text"}), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestWithin(t *testing.T) {
	assert.True(t, within("m", "m"))
	assert.True(t, within("n@m", "m"))
	assert.True(t, within("m", "root"))
	assert.False(t, within("root", "m"))
	assert.False(t, within("m@n", "m"))
}
