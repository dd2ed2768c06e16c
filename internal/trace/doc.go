// Package trace records what the kernel did: one record per chain begin,
// activation, suspension, termination, and posted event.
//
// Recording is pure observability. The kernel never reads a trace back and
// runs identically with no recorder attached; kernel state is never
// persisted.
//
// Two recorders are provided: Memory (tests, harness assertions) and
// Journal (SQLite, for post-hoc inspection via the CLI trace command).
package trace
