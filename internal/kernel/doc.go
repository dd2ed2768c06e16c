// Package kernel implements a synchronous reactive kernel: a
// single-threaded scheduler over a dynamic dependency graph whose nodes are
// reactors (resumable units of computation) and whose edges encode causal
// dependencies.
//
// ARCHITECTURE:
//
// Single-Writer Activation Loop:
// All kernel state (registry, graph, queues) is mutated either by the engine
// between activations or by the currently running reactor body. Exactly one
// reactor body executes at any instant; the engine goroutine is parked while
// a body runs, and every body goroutine is parked while the engine runs.
// Control transfers over unbuffered channel pairs (see coro.go).
//
// Propagation Chains:
// An external stimulus (a named event with an optional payload) enters
// through the driver (app.go). The engine enqueues every reactor the event
// triggers and runs activations one at a time until the queue drains. Each
// activation may mutate the graph (spawn, link, await, kill) or post further
// events into the same chain. Only when the chain has drained may the next
// external event be admitted. From the outside, a chain takes zero logical
// time.
//
// Ordering:
// The main queue is FIFO. Resumes produced by Call are parked on a deferred
// queue that is only drained once the main queue is empty, which gives Call
// its "entire sub-chain finishes first" semantics. Within a single body,
// execution between two awaits is strictly sequential. Between concurrently
// pending activations, order is a scheduler policy, not a contract.
//
// When a trace recorder is attached, every trace record (chain begin, post,
// start, resume, suspend, termination) is stamped with a monotonic seq
// number from Clock.Next(). Wall-clock time is never used for ordering.
package kernel
