// Package envtree holds the tree of Environments: the root scope and one
// scope per module, each with its own ordered nodes and edges.
//
// Tree is a single-writer state container. Every mutation goes through one
// of its explicit operations (AddNode, UpdateNode, RemoveNode, AddEdge,
// RemoveEdge, SetOrder) and none of them are safe for concurrent use.
// Reconciliation works on a Clone and commits with Replace, so a failed pass
// never leaves partial changes behind.
//
// Invariants maintained by Tree:
//   - Node ids are unique across the whole tree
//   - Edge endpoints belong to the edge's Environment
//   - Deleting a Module node deletes the Environment it owns, with all of
//     its nodes and descendant Environments
package envtree
