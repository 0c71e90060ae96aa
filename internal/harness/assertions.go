package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/envgraph/internal/envtree"
	"github.com/roach88/envgraph/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Nodes    []string // Environment listing of the final tree
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Nodes) > 0 {
		fmt.Fprintf(&buf, "\nTree:\n")
		for _, line := range e.Nodes {
			fmt.Fprintf(&buf, "  %s\n", line)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion against tree and returns the
// failure messages.
func EvaluateAssertions(tree *envtree.Tree, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(tree, a); err != nil {
			if ae, ok := err.(*AssertionError); ok {
				ae.Nodes = listing(tree)
			}
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluate(tree *envtree.Tree, a Assertion) error {
	switch a.Type {
	case AssertNodeExists:
		return assertNodeExists(tree, a)
	case AssertNodeAbsent:
		if _, ok := tree.FindByID(a.Node); ok {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("node %s absent", a.Node),
				Actual:   "node exists",
			}
		}
		return nil
	case AssertEdgeExists:
		return assertEdgeExists(tree, a)
	case AssertEdgeAbsent:
		if _, ok := findEdge(tree, a); ok {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("no %s edge %s -> %s", edgeKind(a), a.Source, a.Target),
				Actual:   "edge exists",
			}
		}
		return nil
	case AssertNodeOrder:
		return assertNodeOrder(tree, a)
	case AssertEnvExists, AssertEnvAbsent:
		_, ok := tree.Environment(a.Env)
		if ok != (a.Type == AssertEnvExists) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("environment %s exists=%t", a.Env, !ok),
				Actual:   fmt.Sprintf("exists=%t", ok),
			}
		}
		return nil
	case AssertNodeCount, AssertEdgeCount:
		return assertCount(tree, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertNodeExists(tree *envtree.Tree, a Assertion) error {
	n, ok := tree.FindByID(a.Node)
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("node %s", a.Node),
			Actual:   "not found",
		}
	}

	if a.Kind != "" && string(n.Kind) != a.Kind {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("node %s of kind %s", a.Node, a.Kind),
			Actual:   fmt.Sprintf("kind %s", n.Kind),
		}
	}
	if a.Env != "" {
		env, _ := tree.EnvironmentOf(a.Node)
		if env == nil || env.ID != a.Env {
			actual := "no environment"
			if env != nil {
				actual = env.ID
			}
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("node %s in environment %s", a.Node, a.Env),
				Actual:   fmt.Sprintf("environment %s", actual),
			}
		}
	}
	if a.Value != "" && n.Value != a.Value {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("node %s with value %q", a.Node, a.Value),
			Actual:   fmt.Sprintf("value %q", n.Value),
		}
	}
	if a.Position != nil && (n.Position.X != a.Position.X || n.Position.Y != a.Position.Y) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("node %s at (%g,%g)", a.Node, a.Position.X, a.Position.Y),
			Actual:   fmt.Sprintf("at (%g,%g)", n.Position.X, n.Position.Y),
		}
	}
	return nil
}

func edgeKind(a Assertion) ir.EdgeKind {
	if a.EdgeKind == "" {
		return ir.EdgeReference
	}
	return ir.EdgeKind(a.EdgeKind)
}

func findEdge(tree *envtree.Tree, a Assertion) (ir.Edge, bool) {
	env, ok := tree.EnvironmentOf(a.Source)
	if !ok {
		return ir.Edge{}, false
	}
	return env.Edge(ir.EdgeID(edgeKind(a), a.Source, a.Target))
}

func assertEdgeExists(tree *envtree.Tree, a Assertion) error {
	e, ok := findEdge(tree, a)
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s edge %s -> %s", edgeKind(a), a.Source, a.Target),
			Actual:   "not found",
		}
	}
	if a.Action != "" && e.Action != a.Action {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("edge %s -> %s carrying %q", a.Source, a.Target, a.Action),
			Actual:   fmt.Sprintf("carrying %q", e.Action),
		}
	}
	return nil
}

func envOrRoot(tree *envtree.Tree, id string) (*envtree.Environment, bool) {
	if id == "" {
		return tree.Root(), true
	}
	return tree.Environment(id)
}

func assertNodeOrder(tree *envtree.Tree, a Assertion) error {
	env, ok := envOrRoot(tree, a.Env)
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("environment %s", a.Env),
			Actual:   "not found",
		}
	}
	got := env.NodeIDs()
	if !slices.Equal(got, a.Nodes) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("nodes %v", a.Nodes),
			Actual:   fmt.Sprintf("nodes %v", got),
		}
	}
	return nil
}

func assertCount(tree *envtree.Tree, a Assertion) error {
	var got int
	if a.Env == "" {
		if a.Type == AssertNodeCount {
			got = tree.NodeCount()
		} else {
			got = tree.EdgeCount()
		}
	} else {
		env, ok := tree.Environment(a.Env)
		if !ok {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("environment %s", a.Env),
				Actual:   "not found",
			}
		}
		if a.Type == AssertNodeCount {
			got = len(env.Nodes)
		} else {
			got = len(env.Edges)
		}
	}

	if got != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d", *a.Count),
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}

// listing renders one line per Environment for failure context.
func listing(tree *envtree.Tree) []string {
	var lines []string
	tree.Walk(func(env *envtree.Environment) bool {
		lines = append(lines, fmt.Sprintf("%s: %s", env.ID, strings.Join(env.NodeIDs(), ", ")))
		return true
	})
	return lines
}
