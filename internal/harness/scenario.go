package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/envgraph/internal/layout"
)

// Scenario defines a conformance test scenario.
// A scenario feeds a sequence of snapshots, server messages and dependency
// confirmations into a fresh reconciler and asserts on each pass and on the
// final tree.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// TokenPrefix prefixes the sequential pass tokens (default "pass").
	TokenPrefix string `yaml:"token_prefix,omitempty"`

	// Layout overrides the default layered layout.
	Layout *LayoutSpec `yaml:"layout,omitempty"`

	// Steps run in order. Each step is exactly one of snapshot, message or
	// confirm.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final tree.
	Assertions []Assertion `yaml:"assertions"`
}

// LayoutSpec selects the layout policy for a scenario.
type LayoutSpec struct {
	Policy    string `yaml:"policy"`
	Direction string `yaml:"direction,omitempty"`
}

// Options converts the layout block to layout options.
func (l *LayoutSpec) Options() layout.Options {
	if l == nil {
		return layout.DefaultOptions()
	}
	return layout.Options{
		Policy:    layout.Policy(l.Policy),
		Direction: layout.Direction(l.Direction),
	}
}

// Step is one input delivered to the reconciler.
type Step struct {
	// Snapshot is a bare snapshot document keyed by entry name.
	Snapshot map[string]any `yaml:"snapshot,omitempty"`

	// Message is a snapshot wrapped in a server message envelope.
	Message *MessageStep `yaml:"message,omitempty"`

	// Confirm is a dependency confirmation from the external engine.
	Confirm *ConfirmStep `yaml:"confirm,omitempty"`

	// Expect validates the outcome of this step.
	Expect *StepExpect `yaml:"expect,omitempty"`
}

// MessageStep is a server message: a snapshot plus the engine's error text.
type MessageStep struct {
	Snapshot map[string]any `yaml:"snapshot"`
	Err      string         `yaml:"err,omitempty"`
}

// ConfirmStep is the authoritative dependency list for one node.
type ConfirmStep struct {
	Node         string   `yaml:"node"`
	Dependencies []string `yaml:"dependencies"`
}

// StepExpect specifies the expected outcome of a step. Unset fields are not
// checked; an explicit empty list asserts emptiness.
type StepExpect struct {
	// Outcome is committed or rejected for snapshot steps, applied or stale
	// for confirmations.
	Outcome string `yaml:"outcome,omitempty"`

	// Created, Updated and Deleted are compared in order.
	Created []string `yaml:"created,omitempty"`
	Updated []string `yaml:"updated,omitempty"`
	Deleted []string `yaml:"deleted,omitempty"`

	// Warnings lists expected warning codes in any order.
	Warnings []string `yaml:"warnings,omitempty"`

	// Cycle is the expected cycle path of a rejected pass.
	Cycle []string `yaml:"cycle,omitempty"`
}

// Step outcomes.
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
	OutcomeApplied   = "applied"
	OutcomeStale     = "stale"
)

// Assertion validates the final tree.
type Assertion struct {
	// Type specifies the assertion type:
	// - "node_exists": Node exists, optionally with kind, env, value, position
	// - "node_absent": Node does not exist
	// - "edge_exists": Edge source->target exists, optionally with action
	// - "edge_absent": Edge source->target does not exist
	// - "node_order": Env's nodes are exactly Nodes, in order
	// - "env_exists" / "env_absent": Environment exists or not
	// - "node_count" / "edge_count": Count in Env, or in the whole tree
	Type string `yaml:"type"`

	Node     string `yaml:"node,omitempty"`
	Kind     string `yaml:"kind,omitempty"`
	Env      string `yaml:"env,omitempty"`
	Value    string `yaml:"value,omitempty"`
	Position *Point `yaml:"position,omitempty"`

	Source   string `yaml:"source,omitempty"`
	Target   string `yaml:"target,omitempty"`
	EdgeKind string `yaml:"edge_kind,omitempty"`
	Action   string `yaml:"action,omitempty"`

	Nodes []string `yaml:"nodes,omitempty"`
	Count *int     `yaml:"count,omitempty"`
}

// Point is an expected node position.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Assertion type constants.
const (
	AssertNodeExists = "node_exists"
	AssertNodeAbsent = "node_absent"
	AssertEdgeExists = "edge_exists"
	AssertEdgeAbsent = "edge_absent"
	AssertNodeOrder  = "node_order"
	AssertEnvExists  = "env_exists"
	AssertEnvAbsent  = "env_absent"
	AssertNodeCount  = "node_count"
	AssertEdgeCount  = "edge_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if err := s.Layout.Options().Validate(); err != nil {
		return fmt.Errorf("layout: %w", err)
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step) error {
	set := 0
	if step.Snapshot != nil {
		set++
	}
	if step.Message != nil {
		set++
	}
	if step.Confirm != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of snapshot, message or confirm is required", index)
	}
	if step.Message != nil && step.Message.Snapshot == nil {
		return fmt.Errorf("steps[%d].message: snapshot is required", index)
	}
	if step.Confirm != nil && step.Confirm.Node == "" {
		return fmt.Errorf("steps[%d].confirm: node is required", index)
	}

	if step.Expect == nil || step.Expect.Outcome == "" {
		return nil
	}
	valid := []string{OutcomeCommitted, OutcomeRejected}
	if step.Confirm != nil {
		valid = []string{OutcomeApplied, OutcomeStale}
	}
	if !slices.Contains(valid, step.Expect.Outcome) {
		return fmt.Errorf("steps[%d].expect: outcome %q must be one of %v", index, step.Expect.Outcome, valid)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertNodeExists, AssertNodeAbsent:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for %s", index, a.Type)
		}
	case AssertEdgeExists, AssertEdgeAbsent:
		if a.Source == "" || a.Target == "" {
			return fmt.Errorf("assertions[%d]: source and target are required for %s", index, a.Type)
		}
	case AssertNodeOrder:
		if a.Nodes == nil {
			return fmt.Errorf("assertions[%d]: nodes list is required for node_order", index)
		}
	case AssertEnvExists, AssertEnvAbsent:
		if a.Env == "" {
			return fmt.Errorf("assertions[%d]: env is required for %s", index, a.Type)
		}
	case AssertNodeCount, AssertEdgeCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
