// Package harness runs kernel conformance scenarios: a root body plus a
// stimulus sequence, executed against a fresh application with
// deterministic chain tokens and an in-memory trace recorder.
//
// Scenarios assert on the resulting trace directly (assertions.go) or
// compare it against a golden file (golden.go).
package harness
