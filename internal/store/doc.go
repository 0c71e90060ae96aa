// Package store provides SQLite-backed checkpoints of the committed
// Environment tree and the reconciliation pass log.
//
// # Tables
//
//   - environments, nodes, edges: the committed tree, rewritten whole by
//     every checkpoint. Each row carries an ord column so that node order
//     (a topological order) and edge insertion order survive a reload.
//   - scope: the single saved scope cursor (breadcrumbs and param inputs),
//     written with the tree.
//   - passes: append-only log of reconciliation passes, committed or
//     rejected, keyed by the logical pass sequence number.
//
// # Ordering
//
// Every read orders by ord or seq, never by wall time, so a reloaded tree
// dumps byte-identically to the one that was saved.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Deleting an environment cascades to its rows
package store
