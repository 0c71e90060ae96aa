// Package resolver orders pending records so that every dependency that is
// itself pending comes before its dependents.
//
// Order is a depth-first visit with "visiting" and "done" marks. References
// to ids outside the pending set count as satisfied and are not followed.
// Independent records keep their input order. Revisiting a record that is
// still being visited means a cycle: Order returns a *CycleError naming the
// record, with the full cycle path recovered from the strongly connected
// components of the pending graph.
package resolver
