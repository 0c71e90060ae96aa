package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/envgraph/internal/envtree"
	"github.com/roach88/envgraph/internal/reconcile"
	"github.com/roach88/envgraph/internal/testutil"
)

// Harness drives one scenario against a fresh tree.
type Harness struct {
	rec *reconcile.Reconciler
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against an empty in-memory tree with sequential pass
// tokens, so results are reproducible and can be compared with golden files.
//
// Execution flow:
// 1. Create an empty tree and a reconciler with the scenario's layout
// 2. Deliver every step in order, checking its expect clause
// 3. Evaluate assertions against the final tree
//
// A rejected pass is an outcome, not an error. Run only returns an error if
// a step could not be delivered at all.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	tree := envtree.New()
	rec, err := reconcile.New(tree,
		reconcile.WithLayout(scenario.Layout.Options()),
		reconcile.WithTokenGenerator(testutil.NewSequentialTokens(scenario.TokenPrefix)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciler: %w", err)
	}
	h := &Harness{rec: rec}

	result := NewResult()
	result.Tree = tree
	for i, step := range scenario.Steps {
		sr, err := h.runStep(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.Steps = append(result.Steps, sr)
		if step.Expect != nil {
			for _, msg := range checkExpect(sr, step.Expect) {
				result.AddError(fmt.Sprintf("step %d: %s", i, msg))
			}
		}
	}

	for _, msg := range EvaluateAssertions(tree, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) runStep(ctx context.Context, i int, step Step) (StepResult, error) {
	switch {
	case step.Confirm != nil:
		return h.confirm(ctx, i, step.Confirm)
	case step.Message != nil:
		data, err := encodeMessage(step.Message)
		if err != nil {
			return StepResult{}, err
		}
		res, err := h.rec.ApplyMessage(ctx, data)
		return passResult(i, "message", h.rec.Clock().Current(), res, err)
	default:
		data, err := json.Marshal(step.Snapshot)
		if err != nil {
			return StepResult{}, fmt.Errorf("encode snapshot: %w", err)
		}
		res, err := h.rec.ApplyJSON(ctx, data)
		return passResult(i, "snapshot", h.rec.Clock().Current(), res, err)
	}
}

func (h *Harness) confirm(ctx context.Context, i int, c *ConfirmStep) (StepResult, error) {
	res, err := h.rec.ApplyConfirmation(ctx, reconcile.Confirmation{
		NodeID:       c.Node,
		Dependencies: c.Dependencies,
	})
	if err != nil {
		return StepResult{}, err
	}
	sr := StepResult{
		Step:         i,
		Kind:         "confirm",
		Outcome:      OutcomeApplied,
		EdgesAdded:   len(res.Added),
		EdgesRemoved: len(res.Removed),
	}
	if res.Stale {
		sr.Outcome = OutcomeStale
		sr.Warnings = warningCodes([]error{res.Warning})
	}
	return sr, nil
}

func passResult(i int, kind string, seq int64, res *reconcile.PassResult, err error) (StepResult, error) {
	sr := StepResult{Step: i, Kind: kind, Seq: seq}
	if err != nil {
		var re *reconcile.RuntimeError
		if !errors.As(err, &re) || re.Code != reconcile.ErrCodeCycleDetected {
			return sr, err
		}
		sr.Token = re.PassToken
		sr.Outcome = OutcomeRejected
		sr.Cycle = re.Path
		sr.Warnings = []string{string(re.Code)}
		return sr, nil
	}

	sr.Token = res.Token
	sr.Outcome = OutcomeCommitted
	sr.Created = res.Created
	sr.Updated = res.Updated
	sr.Deleted = res.Deleted
	sr.EdgesAdded = len(res.EdgesAdded)
	sr.EdgesRemoved = len(res.EdgesRemoved)
	sr.Warnings = warningCodes(res.Warnings)
	return sr, nil
}

func warningCodes(warnings []error) []string {
	var codes []string
	for _, w := range warnings {
		if code, ok := reconcile.CodeOf(w); ok {
			codes = append(codes, string(code))
		}
	}
	return codes
}

func encodeMessage(m *MessageStep) ([]byte, error) {
	env, err := json.Marshal(m.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode message snapshot: %w", err)
	}
	msg := map[string]any{"env": string(env), "err": nil}
	if m.Err != "" {
		msg["err"] = m.Err
	}
	return json.Marshal(msg)
}

// checkExpect compares a step result with its expect clause.
func checkExpect(sr StepResult, e *StepExpect) []string {
	var errs []string
	if e.Outcome != "" && e.Outcome != sr.Outcome {
		errs = append(errs, fmt.Sprintf("expected outcome %s, got %s", e.Outcome, sr.Outcome))
	}

	lists := []struct {
		name      string
		want, got []string
	}{
		{"created", e.Created, sr.Created},
		{"updated", e.Updated, sr.Updated},
		{"deleted", e.Deleted, sr.Deleted},
		{"cycle", e.Cycle, sr.Cycle},
	}
	for _, l := range lists {
		if l.want != nil && !slices.Equal(l.want, l.got) {
			errs = append(errs, fmt.Sprintf("expected %s %v, got %v", l.name, l.want, l.got))
		}
	}

	if e.Warnings != nil {
		want := slices.Sorted(slices.Values(e.Warnings))
		got := slices.Sorted(slices.Values(sr.Warnings))
		if !slices.Equal(want, got) {
			errs = append(errs, fmt.Sprintf("expected warnings %v, got %v", e.Warnings, sr.Warnings))
		}
	}
	return errs
}
