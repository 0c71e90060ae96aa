// Package reconcile keeps the Environment tree consistent with snapshots
// pushed by the external execution engine.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Engine processes snapshots, server messages and dependency confirmations
// in one goroutine, in the order they were enqueued. Nothing else mutates
// the tree while Run is active.
//
// Reconciliation Pass (Reconciler.Apply):
// 1. Flatten the snapshot into records, nested modules included
// 2. Clone the committed tree; all work happens on the clone
// 3. Apply delete records first
// 4. Order the remaining records by their dependencies and apply them:
//    update known ids, create unknown ids (synthesizing missing module
//    Environments)
// 5. Reorder every touched Environment topologically
// 6. Infer edges for touched nodes
// 7. Lay out touched Environments
// 8. Swap the clone in, then checkpoint, record metrics and request
//    dependency confirmations
//
// A referential cycle rejects the pass at step 4 or 5 with CYCLE_DETECTED
// and the committed tree is left exactly as it was. Every other problem is
// recovered from and reported as a warning on PassResult.
//
// Confirmations:
// The external engine answers dependency requests asynchronously. Each
// answer is applied to one node, found by id anywhere in the tree. Answers
// for nodes that no longer exist are stale and ignored.
//
// Logical Clock:
// Passes are numbered by Clock.Next(), never by wall time, so the pass log
// orders identically on replay.
package reconcile
