// Package snapshot decodes environment snapshots pushed by the execution
// engine and flattens them into records ready for reconciliation.
//
// A snapshot maps names to descriptors:
//
//	{"x": {"name": "x", "val": "3", "type": "int", "keyword": "var"},
//	 "m": {"name": "m", "type": "module", "commands": {...}}}
//
// Each descriptor is checked against an embedded CUE schema (schema.cue).
// Validation failures never reject the snapshot: the entry is decoded
// leniently and a *MalformedError is reported as a warning. Module entries
// carry a nested snapshot in "commands"; Flatten walks it recursively and
// qualifies nested names with their module path.
//
// The structured value encodings (table rows, constructor wrappers,
// function rows) are treated as a versioned wire format; see ParseValue.
package snapshot
