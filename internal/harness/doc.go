// Package harness provides conformance testing for the reconciliation engine.
//
// The harness feeds scenario steps into a fresh reconciler, checks each
// step's outcome and validates the final Environment tree.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	layout: { policy: layered, direction: LR }   # optional
//	steps:
//	  - snapshot:
//	      x: { name: x, val: "3", type: int }
//	    expect:
//	      outcome: committed
//	      created: [x]
//	  - message:
//	      snapshot: { g: { name: g, val: "4", type: int, exp: "x + 1", keyword: def } }
//	      err: "division by zero"
//	  - confirm: { node: g, dependencies: [x] }
//	assertions:
//	  - type: node_exists
//	    node: x
//	    kind: Variable
//	    position: { x: 20, y: 20 }
//	  - type: edge_exists
//	    source: x
//	    target: g
//
// # Assertion Types
//
//   - node_exists / node_absent: node by qualified id, optionally checking
//     kind, env, value and position
//   - edge_exists / edge_absent: edge by source, target and edge_kind
//     (default reference), optionally checking the action cargo
//   - node_order: exact node order of an Environment (default root)
//   - env_exists / env_absent: Environment by id
//   - node_count / edge_count: counts in one Environment or the whole tree
//
// # Deterministic Testing
//
// Pass tokens come from testutil.SequentialTokens ("pass-1", "pass-2", ...)
// and the logical clock starts at zero, so Snapshot renders identical bytes
// on every run. RunWithGolden compares that rendering with a goldie golden
// file.
package harness
