// Package ir provides the core graph types for envgraph.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// data model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Node ids are qualified: label first, then the module path from
//     outermost to innermost, joined with "@" (see ParseQualified)
//   - Edge ids are derived from (kind, source, target) and nothing else,
//     so repeated inference never produces duplicates
//   - Kind is a closed enumeration produced by one classification function
//   - All JSON tags use snake_case
package ir
