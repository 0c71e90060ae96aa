package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ValidFile(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/dependent_definition.yaml")
	require.NoError(t, err)

	assert.Equal(t, "dependent_definition", s.Name)
	require.Len(t, s.Steps, 2)
	assert.NotNil(t, s.Steps[0].Snapshot)
	require.NotNil(t, s.Steps[1].Expect)
	assert.Equal(t, OutcomeCommitted, s.Steps[1].Expect.Outcome)
	assert.Equal(t, []string{"g"}, s.Steps[1].Expect.Created)
	require.Len(t, s.Assertions, 4)
	assert.Equal(t, AssertNodeExists, s.Assertions[0].Type)
	assert.Equal(t, &Point{X: 300, Y: 20}, s.Assertions[0].Position)
}

func TestLoadScenario_AllFixturesParse(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		t.Run(filepath.Base(f), func(t *testing.T) {
			_, err := LoadScenario(f)
			assert.NoError(t, err)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: typo
description: misspelled key
step:
  - snapshot: {}
assertions:
  - type: node_count
    count: 0
`), 0644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "description: d\nsteps: [{snapshot: {}}]\nassertions: [{type: node_count, count: 0}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: n\nsteps: [{snapshot: {}}]\nassertions: [{type: node_count, count: 0}]\n",
			want: "description is required",
		},
		{
			name: "no steps",
			yaml: "name: n\ndescription: d\nassertions: [{type: node_count, count: 0}]\n",
			want: "steps list is required",
		},
		{
			name: "no assertions",
			yaml: "name: n\ndescription: d\nsteps: [{snapshot: {}}]\n",
			want: "assertions list is required",
		},
		{
			name: "empty step",
			yaml: "name: n\ndescription: d\nsteps: [{expect: {outcome: committed}}]\nassertions: [{type: node_count, count: 0}]\n",
			want: "exactly one of snapshot, message or confirm",
		},
		{
			name: "two inputs in one step",
			yaml: "name: n\ndescription: d\nsteps: [{snapshot: {}, confirm: {node: g}}]\nassertions: [{type: node_count, count: 0}]\n",
			want: "exactly one of snapshot, message or confirm",
		},
		{
			name: "confirm without node",
			yaml: "name: n\ndescription: d\nsteps: [{confirm: {dependencies: [x]}}]\nassertions: [{type: node_count, count: 0}]\n",
			want: "node is required",
		},
		{
			name: "confirm with pass outcome",
			yaml: "name: n\ndescription: d\nsteps: [{confirm: {node: g}, expect: {outcome: committed}}]\nassertions: [{type: node_count, count: 0}]\n",
			want: "outcome \"committed\" must be one of",
		},
		{
			name: "unknown assertion",
			yaml: "name: n\ndescription: d\nsteps: [{snapshot: {}}]\nassertions: [{type: final_state}]\n",
			want: "unknown assertion type",
		},
		{
			name: "count missing",
			yaml: "name: n\ndescription: d\nsteps: [{snapshot: {}}]\nassertions: [{type: edge_count}]\n",
			want: "non-negative count is required",
		},
		{
			name: "edge without target",
			yaml: "name: n\ndescription: d\nsteps: [{snapshot: {}}]\nassertions: [{type: edge_exists, source: x}]\n",
			want: "source and target are required",
		},
		{
			name: "bad layout",
			yaml: "name: n\ndescription: d\nlayout: {policy: spiral}\nsteps: [{snapshot: {}}]\nassertions: [{type: node_count, count: 0}]\n",
			want: "layout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseScenario_ZeroCountAllowed(t *testing.T) {
	s, err := ParseScenario([]byte("name: n\ndescription: d\nsteps: [{snapshot: {}}]\nassertions: [{type: node_count, count: 0}]\n"))
	require.NoError(t, err)
	require.NotNil(t, s.Assertions[0].Count)
	assert.Equal(t, 0, *s.Assertions[0].Count)
}
