// Package infer derives reference and action edges for a node.
//
// Local inference scans the node's payload text. Reference edges come from
// identifier-like tokens matched against node labels in the same
// Environment. Action targets come from an ordered list of rules behind a
// Matcher; the first rule that matches decides the target.
//
// When the execution engine reports an explicit dependency list for a node,
// ApplyAuthoritative uses it instead of the text. Both paths derive edge ids
// from (kind, source, target), so repeated calls never churn edges.
package infer
