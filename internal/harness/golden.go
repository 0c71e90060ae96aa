package harness

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/envgraph/internal/ir"
)

// Snapshot renders a scenario result as canonical JSON: the scenario name,
// one entry per step and the final tree dump. Equal runs produce identical
// bytes.
func Snapshot(scenario *Scenario, result *Result) ([]byte, error) {
	steps := make([]any, len(result.Steps))
	for i, sr := range result.Steps {
		steps[i] = stepMap(sr)
	}

	dump, err := result.Tree.Canonical()
	if err != nil {
		return nil, err
	}
	var tree any
	if err := json.Unmarshal(dump, &tree); err != nil {
		return nil, fmt.Errorf("decode tree dump: %w", err)
	}

	data, err := ir.MarshalCanonical(map[string]any{
		"scenario": scenario.Name,
		"steps":    steps,
		"tree":     tree,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal golden snapshot: %w", err)
	}
	return data, nil
}

func stepMap(sr StepResult) map[string]any {
	m := map[string]any{
		"step":          sr.Step,
		"kind":          sr.Kind,
		"outcome":       sr.Outcome,
		"edges_added":   sr.EdgesAdded,
		"edges_removed": sr.EdgesRemoved,
	}
	if sr.Seq != 0 {
		m["seq"] = sr.Seq
	}
	if sr.Token != "" {
		m["token"] = sr.Token
	}
	lists := map[string][]string{
		"created":  sr.Created,
		"updated":  sr.Updated,
		"deleted":  sr.Deleted,
		"warnings": sr.Warnings,
		"cycle":    sr.Cycle,
	}
	for k, v := range lists {
		if len(v) > 0 {
			m[k] = v
		}
	}
	return m
}

// RunWithGolden executes a scenario and compares its Snapshot against a
// golden file, by default testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...goldie.Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result, opts...); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result, opts ...goldie.Option) error {
	t.Helper()

	data, err := Snapshot(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t, append([]goldie.Option{
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	}, opts...)...)
	g.Assert(t, scenario.Name, data)
	return nil
}
