package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_CreateVariable(t *testing.T) {
	// Regenerate with:
	//   go test ./internal/harness -run TestRunWithGolden_CreateVariable -update
	result, err := RunWithGolden(t, mustLoad(t, "create_variable"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunWithGolden_UpdateThenAssert(t *testing.T) {
	dir := t.TempDir()
	scenario := mustLoad(t, "delete_cascade")

	result, err := Run(scenario)
	require.NoError(t, err)
	data, err := Snapshot(scenario, result)
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir(dir), goldie.WithNameSuffix(".golden"))
	require.NoError(t, g.Update(t, scenario.Name, data))

	_, err = RunWithGolden(t, scenario, goldie.WithFixtureDir(dir))
	require.NoError(t, err)

	written, err := os.ReadFile(filepath.Join(dir, scenario.Name+".golden"))
	require.NoError(t, err)
	assert.Equal(t, data, written)
}

func TestSnapshot_Deterministic(t *testing.T) {
	scenario := mustLoad(t, "idempotence")

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestSnapshot_Contents(t *testing.T) {
	scenario := mustLoad(t, "cycle_rejected")
	result, err := Run(scenario)
	require.NoError(t, err)

	data, err := Snapshot(scenario, result)
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"scenario":"cycle_rejected"`)
	assert.Contains(t, s, `"cycle":["a","b","a"]`)
	assert.Contains(t, s, `"outcome":"rejected"`)
	assert.Contains(t, s, `"token":"pass-2"`)
	assert.Contains(t, s, `"warnings":["CYCLE_DETECTED"]`)
	assert.Contains(t, s, `"id":"x->g"`)
	assert.NotContains(t, s, `"id":"a"`)
}
